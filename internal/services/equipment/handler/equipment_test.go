package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentflow-system/internal/apperr"
	"rentflow-system/internal/database/dbtest"
	"rentflow-system/internal/database/models"
	"rentflow-system/internal/utils"
)

func num(v interface{}) utils.Number { return utils.NumberOf(v) }

func TestEquipmentValidation(t *testing.T) {
	h := NewEquipmentHandler(dbtest.Open(t), nil)

	_, err := h.CreateEquipment(context.Background(), EquipmentInput{
		Name:       "Speaker",
		DailyRate:  num("abc"),
		WeeklyRate: num(-1),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))

	fields := map[string]string{}
	for _, f := range apperr.Fields(err) {
		fields[f.Field] = f.Message
	}
	assert.Equal(t, "must be a number", fields["daily_rate"])
	assert.Equal(t, "must not be negative", fields["weekly_rate"])
}

func TestActiveCatalogWithoutCache(t *testing.T) {
	db := dbtest.Open(t)
	h := NewEquipmentHandler(db, nil)
	ctx := context.Background()

	speaker, err := h.CreateEquipment(ctx, EquipmentInput{Name: "JBL Speaker", Description: "PA speaker", DailyRate: num("40.00")})
	require.NoError(t, err)
	mic, err := h.CreateEquipment(ctx, EquipmentInput{Name: "SM58", DailyRate: num(10)})
	require.NoError(t, err)
	_, err = h.SetActive(ctx, mic.ID, false)
	require.NoError(t, err)

	catalog, err := h.ActiveCatalog(ctx)
	require.NoError(t, err)
	require.Len(t, catalog, 1)
	assert.Equal(t, speaker.ID, catalog[0].ID)
	assert.True(t, decimal.NewFromInt(40).Equal(catalog[0].Rate))
}

func TestUpdateAndDeleteEquipment(t *testing.T) {
	db := dbtest.Open(t)
	h := NewEquipmentHandler(db, nil)
	ctx := context.Background()

	e, err := h.CreateEquipment(ctx, EquipmentInput{Name: "Fog Machine", DailyRate: num(25)})
	require.NoError(t, err)

	e, err = h.UpdateEquipment(ctx, e.ID, EquipmentInput{Name: "Fog Machine 1000W", DailyRate: num("27.5"), WeeklyRate: num(150)})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("27.5").Equal(e.DailyRate))
	assert.True(t, e.IsActive)

	item := models.InvoiceItem{InvoiceID: 1, EquipmentID: &e.ID, Description: "Fog Machine", Quantity: 1, RentalDays: 1, Rate: e.DailyRate, LineTotal: e.DailyRate, MatchStatus: models.MatchStatusMatched}
	require.NoError(t, db.Create(&item).Error)

	require.NoError(t, h.DeleteEquipment(ctx, e.ID))

	var reloaded models.InvoiceItem
	require.NoError(t, db.First(&reloaded, item.ID).Error)
	assert.Nil(t, reloaded.EquipmentID)
	assert.True(t, e.DailyRate.Equal(reloaded.Rate))
}

func TestLoadEquipmentMissing(t *testing.T) {
	db := dbtest.Open(t)
	h := NewEquipmentHandler(db, nil)

	e, err := h.CreateEquipment(context.Background(), EquipmentInput{Name: "Truss", DailyRate: num(15)})
	require.NoError(t, err)

	found, err := h.RatesByID(context.Background(), []int64{e.ID})
	require.NoError(t, err)
	assert.Contains(t, found, e.ID)

	_, err = h.RatesByID(context.Background(), []int64{e.ID, 404})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestListEquipment(t *testing.T) {
	db := dbtest.Open(t)
	h := NewEquipmentHandler(db, nil)
	ctx := context.Background()

	for _, name := range []string{"Speaker A", "Speaker B", "Light Bar"} {
		_, err := h.CreateEquipment(ctx, EquipmentInput{Name: name, DailyRate: num(1)})
		require.NoError(t, err)
	}

	items, meta, err := h.ListEquipment(ctx, ListEquipmentParams{Search: "speaker"})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, int64(2), meta.TotalCount)
}
