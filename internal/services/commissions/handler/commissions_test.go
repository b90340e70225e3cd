package handler

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"rentflow-system/internal/apperr"
	"rentflow-system/internal/commission"
	"rentflow-system/internal/database/dbtest"
	"rentflow-system/internal/database/models"
	"rentflow-system/internal/utils"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	db        *gorm.DB
	h         *CommissionHandler
	invoice   models.Invoice
	service   models.InvoiceService
	employees []models.Employee
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)

	customer := models.Customer{Name: "Acme"}
	require.NoError(t, db.Create(&customer).Error)

	invoice := models.Invoice{
		InvoiceNumber:   "INV-123456-001",
		CustomerID:      customer.ID,
		RentalStartDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		RentalDays:      1,
		Subtotal:        d("1000"),
		TotalDue:        d("1000"),
		Status:          "unpaid",
		Source:          "manual",
	}
	require.NoError(t, db.Create(&invoice).Error)

	service := models.InvoiceService{InvoiceID: invoice.ID, Name: "Setup", Amount: d("200"), Discount: d("0"), Total: d("200")}
	require.NoError(t, db.Create(&service).Error)

	var employees []models.Employee
	for _, name := range []string{"Ana", "Ben", "Cid"} {
		e := models.Employee{Name: name, IsActive: true}
		require.NoError(t, db.Create(&e).Error)
		employees = append(employees, e)
	}

	h := NewCommissionHandler(db, nil, commission.DefaultPolicy())
	h.now = func() time.Time { return time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC) }

	return &fixture{db: db, h: h, invoice: invoice, service: service, employees: employees}
}

func byEmployee(rows []models.EmployeeAssignment) map[int64]models.EmployeeAssignment {
	out := map[int64]models.EmployeeAssignment{}
	for _, r := range rows {
		out[r.EmployeeID] = r
	}
	return out
}

func TestAssignInvoiceEmployees(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rows, err := f.h.AssignInvoiceEmployees(ctx, f.invoice.ID, []InvoiceAssigneeInput{
		{EmployeeID: f.employees[0].ID, Role: "organizer"},
		{EmployeeID: f.employees[1].ID, Role: "organizer"},
		{EmployeeID: f.employees[2].ID, Role: "setup"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	got := byEmployee(rows)
	assert.True(t, d("50").Equal(got[f.employees[0].ID].CommissionAmount))
	assert.True(t, d("50").Equal(got[f.employees[1].ID].CommissionAmount))
	assert.True(t, d("30").Equal(got[f.employees[2].ID].CommissionPercentage))
	assert.True(t, d("300").Equal(got[f.employees[2].ID].CommissionAmount))

	rows, err = f.h.AssignInvoiceEmployees(ctx, f.invoice.ID, []InvoiceAssigneeInput{
		{EmployeeID: f.employees[0].ID, Role: "setup"},
		{EmployeeID: f.employees[1].ID, Role: "setup"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.True(t, d("15").Equal(r.CommissionPercentage))
		assert.True(t, d("150").Equal(r.CommissionAmount))
	}
}

func TestAssignInvoiceEmployeesValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.h.AssignInvoiceEmployees(ctx, f.invoice.ID, []InvoiceAssigneeInput{{EmployeeID: f.employees[0].ID, Role: "driver"}})
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))

	_, err = f.h.AssignInvoiceEmployees(ctx, f.invoice.ID, []InvoiceAssigneeInput{{EmployeeID: 999, Role: "setup"}})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = f.h.AssignInvoiceEmployees(ctx, 999, nil)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestAssignServiceEmployeesOverAllocated(t *testing.T) {
	f := newFixture(t)

	res, err := f.h.AssignServiceEmployees(context.Background(), f.service.ID, []ServiceAssigneeInput{
		{EmployeeID: f.employees[0].ID, Percentage: utils.NumberOf(100)},
		{EmployeeID: f.employees[1].ID, Percentage: utils.NumberOf("50")},
	})
	require.NoError(t, err)
	assert.True(t, res.OverAllocated)
	assert.True(t, d("150").Equal(res.TotalPercentage))

	got := byEmployee(res.Assignments)
	assert.True(t, d("200").Equal(got[f.employees[0].ID].CommissionAmount))
	assert.True(t, d("100").Equal(got[f.employees[1].ID].CommissionAmount))
}

func TestAssignServiceEmployeesValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.h.AssignServiceEmployees(context.Background(), f.service.ID, []ServiceAssigneeInput{
		{EmployeeID: f.employees[0].ID},
		{EmployeeID: f.employees[1].ID, Percentage: utils.NumberOf(-5)},
	})
	require.Error(t, err)
	assert.Len(t, apperr.Fields(err), 2)
}

func TestRecalculateLeavesPaidRowsAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.h.AssignInvoiceEmployees(ctx, f.invoice.ID, []InvoiceAssigneeInput{
		{EmployeeID: f.employees[0].ID, Role: "organizer"},
		{EmployeeID: f.employees[1].ID, Role: "organizer"},
	})
	require.NoError(t, err)

	_, err = f.h.MarkEmployeePaid(ctx, f.employees[0].ID, "")
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&models.Invoice{}).Where("id = ?", f.invoice.ID).Update("total_due", d("2000")).Error)
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		return f.h.RecalculateInvoiceTx(tx, f.invoice.ID)
	}))

	rows, err := f.h.ListAssignments(ctx, AssignmentFilter{InvoiceID: f.invoice.ID})
	require.NoError(t, err)
	got := byEmployee(rows)
	assert.True(t, d("50").Equal(got[f.employees[0].ID].CommissionAmount), "paid row must not change")
	assert.True(t, d("100").Equal(got[f.employees[1].ID].CommissionAmount))
}

func TestRecalculateServiceAssignments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.h.AssignServiceEmployees(ctx, f.service.ID, []ServiceAssigneeInput{
		{EmployeeID: f.employees[2].ID, Percentage: utils.NumberOf(10)},
	})
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&models.InvoiceService{}).Where("id = ?", f.service.ID).Updates(map[string]interface{}{"amount": d("300"), "discount": d("50")}).Error)
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		return f.h.RecalculateInvoiceTx(tx, f.invoice.ID)
	}))

	rows, err := f.h.ListAssignments(ctx, AssignmentFilter{EmployeeID: f.employees[2].ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, d("25").Equal(rows[0].CommissionAmount))
}

func TestMarkEmployeePaidAndBatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	emp := f.employees[0].ID

	_, err := f.h.AssignInvoiceEmployees(ctx, f.invoice.ID, []InvoiceAssigneeInput{{EmployeeID: emp, Role: "organizer"}})
	require.NoError(t, err)
	_, err = f.h.AssignServiceEmployees(ctx, f.service.ID, []ServiceAssigneeInput{
		{EmployeeID: emp, Percentage: utils.NumberOf(10)},
		{EmployeeID: f.employees[1].ID, Percentage: utils.NumberOf(0)},
	})
	require.NoError(t, err)

	batch, err := f.h.MarkEmployeePaid(ctx, emp, "April payout")
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Count)
	assert.True(t, d("70").Equal(batch.Total))
	assert.NotEmpty(t, batch.BatchID)

	paid := true
	rows, err := f.h.ListAssignments(ctx, AssignmentFilter{EmployeeID: emp, Paid: &paid})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		require.NotNil(t, r.PaymentBatchID)
		assert.Equal(t, batch.BatchID, *r.PaymentBatchID)
		require.NotNil(t, r.PaidAt)
		assert.Equal(t, batch.PaidAt.Unix(), r.PaidAt.Unix())
	}

	_, err = f.h.MarkEmployeePaid(ctx, emp, "")
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	// zero-commission rows never qualify
	_, err = f.h.MarkEmployeePaid(ctx, f.employees[1].ID, "")
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	batches, err := f.h.ListBatches(ctx, emp)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, batch.BatchID, batches[0].BatchID)
	assert.Equal(t, 2, batches[0].Count)

	summary, err := f.h.EmployeeSummary(ctx, emp)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.PaidCount)
	assert.Equal(t, 0, summary.UnpaidCount)
	assert.True(t, d("70").Equal(summary.PaidTotal))

	_, err = f.h.MarkEmployeePaid(ctx, 999, "")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestRemoveAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rows, err := f.h.AssignInvoiceEmployees(ctx, f.invoice.ID, []InvoiceAssigneeInput{
		{EmployeeID: f.employees[0].ID, Role: "setup"},
		{EmployeeID: f.employees[1].ID, Role: "setup"},
	})
	require.NoError(t, err)
	got := byEmployee(rows)

	require.NoError(t, f.h.RemoveAssignment(ctx, got[f.employees[1].ID].ID))

	remaining, err := f.h.ListAssignments(ctx, AssignmentFilter{InvoiceID: f.invoice.ID})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.True(t, d("30").Equal(remaining[0].CommissionPercentage), "sole setup takes the whole pool")

	_, err = f.h.MarkEmployeePaid(ctx, f.employees[0].ID, "")
	require.NoError(t, err)
	err = f.h.RemoveAssignment(ctx, remaining[0].ID)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	err = f.h.RemoveAssignment(ctx, 999)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestExportXLSX(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.h.AssignInvoiceEmployees(ctx, f.invoice.ID, []InvoiceAssigneeInput{{EmployeeID: f.employees[0].ID, Role: "organizer"}})
	require.NoError(t, err)
	_, err = f.h.AssignServiceEmployees(ctx, f.service.ID, []ServiceAssigneeInput{{EmployeeID: f.employees[1].ID, Percentage: utils.NumberOf(25)}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.h.ExportXLSX(ctx, nil, &buf))

	wb, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer wb.Close()

	rows, err := wb.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Employee", rows[0][1])
	assert.Equal(t, "Ana", rows[1][1])
	assert.Equal(t, "INV-123456-001", rows[1][2])
	assert.Equal(t, "Setup", rows[2][3])
	assert.Equal(t, "INV-123456-001", rows[2][2])

	only := f.employees[1].ID
	buf.Reset()
	require.NoError(t, f.h.ExportXLSX(ctx, &only, &buf))
	wb2, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer wb2.Close()
	rows, err = wb2.GetRows(exportSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
