package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"rentflow-system/internal/utils"
)

func n(v interface{}) utils.Number { return utils.NumberOf(v) }

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCalculateServicesTotal(t *testing.T) {
	tests := []struct {
		name     string
		services []ServiceCharge
		want     string
	}{
		{"nil", nil, "0"},
		{"empty", []ServiceCharge{}, "0"},
		{"single", []ServiceCharge{{Name: "Setup", Amount: n(30), Discount: n(5)}}, "25"},
		{"strings and garbage", []ServiceCharge{
			{Name: "Setup", Amount: n("100.50"), Discount: n("")},
			{Name: "Delivery", Amount: n("oops"), Discount: n(nil)},
			{Name: "Crew", Amount: n(40), Discount: n("10.25")},
		}, "130.25"},
		{"negative discount is kept", []ServiceCharge{{Name: "Tip", Amount: n(10), Discount: n(-5)}}, "15"},
		{"over discount goes negative", []ServiceCharge{{Name: "Promo", Amount: n(10), Discount: n(25)}}, "-15"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateServicesTotal(tt.services)
			assert.True(t, d(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestCalculateInvoiceTotals(t *testing.T) {
	got := CalculateInvoiceTotals(TotalsInput{
		EquipmentSubtotal: n("200.00"),
		TransportAmount:   n(50),
		TransportDiscount: n(10),
		VATAmount:         n(0),
		Services:          []ServiceCharge{{Name: "Setup", Amount: n(30), Discount: n(5)}},
	})

	assert.True(t, d("25").Equal(got.ServicesTotal))
	assert.True(t, d("265.00").Equal(got.InvoiceSubtotal))
	assert.True(t, d("265.00").Equal(got.TotalDue))
}

func TestCalculateInvoiceTotalsIdentity(t *testing.T) {
	inputs := []TotalsInput{
		{},
		{EquipmentSubtotal: n("0.1"), TransportAmount: n("0.2"), VATAmount: n("0.3")},
		{EquipmentSubtotal: n("1234.56"), TransportAmount: n("75"), TransportDiscount: n("12.34"), VATAmount: n("98.76"),
			Services: []ServiceCharge{{Amount: n("10.01"), Discount: n("0.02")}, {Amount: n("5")}}},
		{EquipmentSubtotal: n("bad"), TransportAmount: n(nil), VATAmount: n("-3")},
	}

	for _, in := range inputs {
		got := CalculateInvoiceTotals(in)
		want := got.EquipmentSubtotal.Add(got.TransportAmount).Sub(got.TransportDiscount).Add(got.ServicesTotal).Add(got.VATAmount)
		assert.True(t, want.Equal(got.TotalDue), "got %s want %s", got.TotalDue, want)
		assert.True(t, got.InvoiceSubtotal.Add(got.VATAmount).Equal(got.TotalDue))
	}
}

func TestValidateInvoiceCalculations(t *testing.T) {
	in := TotalsInput{
		EquipmentSubtotal: n("200.00"),
		TransportAmount:   n(50),
		TransportDiscount: n(10),
		Services:          []ServiceCharge{{Amount: n(30), Discount: n(5)}},
	}

	assert.True(t, ValidateInvoiceCalculations(in, n("265.00")))
	assert.True(t, ValidateInvoiceCalculations(in, n("265.009")))
	assert.False(t, ValidateInvoiceCalculations(in, n("265.02")))
	assert.False(t, ValidateInvoiceCalculations(in, n("264.98")))
	assert.False(t, ValidateInvoiceCalculations(in, n("265.01")))
	assert.False(t, ValidateInvoiceCalculations(in, n(nil)))
}

func TestCalculateLineTotal(t *testing.T) {
	tests := []struct {
		name string
		in   LineItemInput
		want string
	}{
		{"documented example", LineItemInput{Quantity: n(2), Rate: n("25.50"), Days: n(3), Discount: n(10)}, "143.00"},
		{"defaults", LineItemInput{Rate: n(40)}, "40"},
		{"unparseable quantity and days", LineItemInput{Quantity: n("x"), Rate: n("12.5"), Days: n("")}, "12.5"},
		{"missing rate", LineItemInput{Quantity: n(3), Days: n(2)}, "0"},
		{"over discount", LineItemInput{Quantity: n(1), Rate: n(10), Days: n(1), Discount: n(15)}, "-5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateLineTotal(tt.in)
			assert.True(t, d(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestCalculateEquipmentSubtotal(t *testing.T) {
	got := CalculateEquipmentSubtotal([]LineItemInput{
		{Quantity: n(2), Rate: n("25.50"), Days: n(3), Discount: n(10)},
		{Quantity: n(1), Rate: n(57), Days: n(1)},
	})
	assert.True(t, d("200").Equal(got))
	assert.True(t, CalculateEquipmentSubtotal(nil).IsZero())
}
