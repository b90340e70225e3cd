package handler

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"rentflow-system/internal/database/models"
)

const exportSheet = "Commissions"

var exportHeaders = []interface{}{
	"Assignment", "Employee", "Invoice", "Service", "Role", "Percentage", "Amount", "Status", "Paid At", "Batch",
}

// ExportXLSX writes a payout workbook for one employee, or everyone when employeeID is nil.
func (c *CommissionHandler) ExportXLSX(ctx context.Context, employeeID *int64, w io.Writer) error {
	filter := AssignmentFilter{}
	if employeeID != nil {
		filter.EmployeeID = *employeeID
	}
	rows, err := c.ListAssignments(ctx, filter)
	if err != nil {
		return err
	}

	invoiceNumbers, serviceNames, err := c.exportLookups(ctx, rows)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeaders); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, row := range rows {
		employee := ""
		if row.Employee != nil {
			employee = row.Employee.Name
		}

		invoice, service := "", ""
		if row.InvoiceID != nil {
			invoice = invoiceNumbers.invoices[*row.InvoiceID]
		}
		if row.ServiceID != nil {
			service = serviceNames[*row.ServiceID]
			invoice = invoiceNumbers.services[*row.ServiceID]
		}

		status, paidAt, batch := "unpaid", "", ""
		if row.IsPaid() {
			status = "paid"
			paidAt = row.PaidAt.Format("2006-01-02 15:04")
		}
		if row.PaymentBatchID != nil {
			batch = *row.PaymentBatchID
		}

		pct, _ := row.CommissionPercentage.Float64()
		amount, _ := row.CommissionAmount.Float64()
		values := []interface{}{row.ID, employee, invoice, service, row.Role, pct, amount, status, paidAt, batch}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

type invoiceNumberLookup struct {
	invoices map[int64]string
	services map[int64]string
}

func (c *CommissionHandler) exportLookups(ctx context.Context, rows []models.EmployeeAssignment) (invoiceNumberLookup, map[int64]string, error) {
	lookup := invoiceNumberLookup{invoices: map[int64]string{}, services: map[int64]string{}}
	serviceNames := map[int64]string{}

	var serviceIDs []int64
	invoiceIDs := map[int64]struct{}{}
	for _, row := range rows {
		if row.ServiceID != nil {
			serviceIDs = append(serviceIDs, *row.ServiceID)
		}
		if row.InvoiceID != nil {
			invoiceIDs[*row.InvoiceID] = struct{}{}
		}
	}

	var services []models.InvoiceService
	if len(serviceIDs) > 0 {
		if err := c.db.WithContext(ctx).Where("id IN ?", serviceIDs).Find(&services).Error; err != nil {
			return lookup, nil, fmt.Errorf("failed to load services: %w", err)
		}
	}
	for _, svc := range services {
		serviceNames[svc.ID] = svc.Name
		invoiceIDs[svc.InvoiceID] = struct{}{}
	}

	ids := make([]int64, 0, len(invoiceIDs))
	for id := range invoiceIDs {
		ids = append(ids, id)
	}
	var invoices []models.Invoice
	if len(ids) > 0 {
		if err := c.db.WithContext(ctx).Select("id", "invoice_number").Where("id IN ?", ids).Find(&invoices).Error; err != nil {
			return lookup, nil, fmt.Errorf("failed to load invoices: %w", err)
		}
	}
	for _, inv := range invoices {
		lookup.invoices[inv.ID] = inv.InvoiceNumber
	}
	for _, svc := range services {
		lookup.services[svc.ID] = lookup.invoices[svc.InvoiceID]
	}
	return lookup, serviceNames, nil
}
