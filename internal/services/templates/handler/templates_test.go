package handler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"rentflow-system/internal/apperr"
	"rentflow-system/internal/database/dbtest"
	"rentflow-system/internal/database/models"
	"rentflow-system/internal/utils"
)

func TestCreateTemplateDefaults(t *testing.T) {
	h := NewTemplateHandler(dbtest.Open(t), nil)

	tpl, err := h.CreateTemplate(context.Background(), TemplateInput{
		Name:   "Standard",
		Config: TemplateConfigInput{CompanyName: "Acme Rentals", TaxRate: utils.NumberOf("11"), Currency: "idr"},
	})
	require.NoError(t, err)

	cfg := tpl.Config.Data()
	assert.Equal(t, "Acme Rentals", cfg.CompanyName)
	assert.Equal(t, "IDR", cfg.Currency)
	assert.Equal(t, "#1f2937", cfg.PrimaryColor)
	assert.Equal(t, "INV", cfg.InvoicePrefix)
	assert.True(t, decimal.NewFromInt(11).Equal(cfg.TaxRate))
}

func TestTemplateValidation(t *testing.T) {
	h := NewTemplateHandler(dbtest.Open(t), nil)

	_, err := h.CreateTemplate(context.Background(), TemplateInput{
		Name: "Bad",
		Config: TemplateConfigInput{
			TaxRate:       utils.NumberOf(120),
			Currency:      "dollars",
			PrimaryColor:  "blue",
			InvoicePrefix: "A B",
		},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
	assert.Len(t, apperr.Fields(err), 4)
}

func TestSetDefaultKeepsSingleDefault(t *testing.T) {
	db := dbtest.Open(t)
	h := NewTemplateHandler(db, nil)
	ctx := context.Background()

	a, err := h.CreateTemplate(ctx, TemplateInput{Name: "A", IsDefault: true})
	require.NoError(t, err)
	assert.True(t, a.IsDefault)

	b, err := h.CreateTemplate(ctx, TemplateInput{Name: "B", IsDefault: true})
	require.NoError(t, err)
	assert.True(t, b.IsDefault)

	var defaults int64
	require.NoError(t, db.Model(&models.InvoiceTemplate{}).Where("is_default = ?", true).Count(&defaults).Error)
	assert.Equal(t, int64(1), defaults)

	_, err = h.SetDefault(ctx, a.ID)
	require.NoError(t, err)

	def, err := h.DefaultTemplate(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.ID, def.ID)

	// setting the current default again is a no-op
	_, err = h.SetDefault(ctx, a.ID)
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.InvoiceTemplate{}).Where("is_default = ?", true).Count(&defaults).Error)
	assert.Equal(t, int64(1), defaults)

	_, err = h.SetDefault(ctx, 999)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	def, err = h.DefaultTemplate(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.ID, def.ID, "failed swap must roll back")
}

func TestSetDefaultAcrossTemplatesLeavesOneDefault(t *testing.T) {
	db := dbtest.Open(t)
	h := NewTemplateHandler(db, nil)
	ctx := context.Background()

	var ids []int64
	for _, name := range []string{"A", "B", "C"} {
		tpl, err := h.CreateTemplate(ctx, TemplateInput{Name: name})
		require.NoError(t, err)
		ids = append(ids, tpl.ID)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(ids)*2)
	for round := 0; round < 2; round++ {
		for _, id := range ids {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				_, err := h.SetDefault(ctx, id)
				errs <- err
			}(id)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var defaults int64
	require.NoError(t, db.Model(&models.InvoiceTemplate{}).Where("is_default = ?", true).Count(&defaults).Error)
	assert.Equal(t, int64(1), defaults)

	_, err := h.SetDefault(ctx, ids[0])
	require.NoError(t, err)
	_, err = h.SetDefault(ctx, ids[2])
	require.NoError(t, err)
	def, err := h.DefaultTemplate(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids[2], def.ID)
	require.NoError(t, db.Model(&models.InvoiceTemplate{}).Where("is_default = ?", true).Count(&defaults).Error)
	assert.Equal(t, int64(1), defaults)
}

func TestSecondDefaultRowIsRejected(t *testing.T) {
	db := dbtest.Open(t)
	h := NewTemplateHandler(db, nil)

	_, err := h.CreateTemplate(context.Background(), TemplateInput{Name: "A", IsDefault: true})
	require.NoError(t, err)

	err = db.Create(&models.InvoiceTemplate{Name: "Rogue", IsDefault: true}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestResolveConfig(t *testing.T) {
	db := dbtest.Open(t)
	h := NewTemplateHandler(db, nil)
	ctx := context.Background()

	cfg, tpl, err := h.ResolveConfig(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, tpl)
	assert.Equal(t, "USD", cfg.Currency)

	def, err := h.CreateTemplate(ctx, TemplateInput{Name: "Default", IsDefault: true, Config: TemplateConfigInput{InvoicePrefix: "DEF"}})
	require.NoError(t, err)
	other, err := h.CreateTemplate(ctx, TemplateInput{Name: "Other", Config: TemplateConfigInput{InvoicePrefix: "OTH"}})
	require.NoError(t, err)

	cfg, tpl, err = h.ResolveConfig(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, def.ID, tpl.ID)
	assert.Equal(t, "DEF", cfg.InvoicePrefix)

	cfg, _, err = h.ResolveConfig(ctx, &other.ID)
	require.NoError(t, err)
	assert.Equal(t, "OTH", cfg.InvoicePrefix)

	missing := int64(404)
	_, _, err = h.ResolveConfig(ctx, &missing)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestDeleteTemplateDetachesInvoices(t *testing.T) {
	db := dbtest.Open(t)
	h := NewTemplateHandler(db, nil)
	ctx := context.Background()

	tpl, err := h.CreateTemplate(ctx, TemplateInput{Name: "Gone"})
	require.NoError(t, err)

	inv := models.Invoice{InvoiceNumber: "INV-1", CustomerID: 1, TemplateID: &tpl.ID, RentalStartDate: time.Now(), RentalDays: 1, Status: "draft", Source: "manual"}
	require.NoError(t, db.Create(&inv).Error)

	require.NoError(t, h.DeleteTemplate(ctx, tpl.ID))

	var reloaded models.Invoice
	require.NoError(t, db.First(&reloaded, inv.ID).Error)
	assert.Nil(t, reloaded.TemplateID)
}
