package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTemplateConfigWithDefaults(t *testing.T) {
	cfg := TemplateConfig{CompanyName: "Acme Rentals"}.WithDefaults()
	assert.Equal(t, "USD", cfg.Currency)
	assert.Equal(t, "#1f2937", cfg.PrimaryColor)
	assert.Equal(t, "INV", cfg.InvoicePrefix)
	assert.True(t, cfg.TaxRate.IsZero())

	kept := TemplateConfig{Currency: "EUR", PrimaryColor: "#fff", InvoicePrefix: "ACM", TaxRate: decimal.NewFromInt(16)}.WithDefaults()
	assert.Equal(t, "EUR", kept.Currency)
	assert.Equal(t, "ACM", kept.InvoicePrefix)
}
