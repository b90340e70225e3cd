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
)

func boolPtr(b bool) *bool {
	return &b
}

func TestEmployeeCRUD(t *testing.T) {
	db := dbtest.Open(t)
	h := NewEmployeeHandler(db, nil)
	ctx := context.Background()

	e, err := h.CreateEmployee(ctx, EmployeeInput{Name: "Ali", Position: "Crew"})
	require.NoError(t, err)
	assert.True(t, e.IsActive)

	e, err = h.UpdateEmployee(ctx, e.ID, EmployeeInput{Name: "Ali K", IsActive: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, "Ali K", e.Name)
	assert.False(t, e.IsActive)

	_, err = h.CreateEmployee(ctx, EmployeeInput{Name: "Bo", IsActive: boolPtr(true)})
	require.NoError(t, err)

	active, meta, err := h.ListEmployees(ctx, ListEmployeesParams{IsActive: boolPtr(true)})
	require.NoError(t, err)
	assert.Len(t, active, 1)
	assert.Equal(t, int64(1), meta.TotalCount)

	require.NoError(t, h.DeleteEmployee(ctx, e.ID))
	_, err = h.GetEmployee(ctx, e.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestDeleteEmployeeWithAssignments(t *testing.T) {
	db := dbtest.Open(t)
	h := NewEmployeeHandler(db, nil)
	ctx := context.Background()

	e, err := h.CreateEmployee(ctx, EmployeeInput{Name: "Crew Lead"})
	require.NoError(t, err)

	invoiceID := int64(1)
	require.NoError(t, db.Create(&models.EmployeeAssignment{
		EmployeeID:           e.ID,
		InvoiceID:            &invoiceID,
		Role:                 "organizer",
		CommissionPercentage: decimal.NewFromInt(5),
		CommissionAmount:     decimal.NewFromInt(10),
	}).Error)

	err = h.DeleteEmployee(ctx, e.ID)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestCreateEmployeeValidation(t *testing.T) {
	h := NewEmployeeHandler(dbtest.Open(t), nil)
	_, err := h.CreateEmployee(context.Background(), EmployeeInput{Name: "X", Email: "not-an-email"})
	require.Error(t, err)
	fields := apperr.Fields(err)
	require.Len(t, fields, 1)
	assert.Equal(t, "email", fields[0].Field)
}
