package handler

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"rentflow-system/internal/billing"
	"rentflow-system/internal/database/models"
	"rentflow-system/internal/utils"
)

type LinePreview struct {
	EquipmentID *int64          `json:"equipment_id"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
	RentalDays  int             `json:"rental_days"`
	Discount    decimal.Decimal `json:"discount"`
	LineTotal   decimal.Decimal `json:"line_total"`
	MatchStatus string          `json:"match_status"`
}

type Preview struct {
	Items  []LinePreview  `json:"items"`
	Totals billing.Totals `json:"totals"`
}

// PreviewTotals prices a request exactly as CreateInvoice would, without writing anything.
func (h *InvoiceHandler) PreviewTotals(ctx context.Context, req InvoiceRequest) (*Preview, error) {
	if err := req.validate(true); err != nil {
		return nil, err
	}
	cfg, _, err := h.templates.ResolveConfig(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}
	c, err := h.compute(h.db.WithContext(ctx), req, cfg)
	if err != nil {
		return nil, err
	}

	preview := &Preview{Items: make([]LinePreview, 0, len(c.items)), Totals: c.totals}
	for _, it := range c.items {
		preview.Items = append(preview.Items, LinePreview{
			EquipmentID: it.EquipmentID,
			Description: it.Description,
			Quantity:    it.Quantity,
			Rate:        it.Rate,
			RentalDays:  it.RentalDays,
			Discount:    it.Discount,
			LineTotal:   it.LineTotal,
			MatchStatus: it.MatchStatus,
		})
	}
	return preview, nil
}

type AuditMismatch struct {
	InvoiceID     int64           `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	StoredTotal   decimal.Decimal `json:"stored_total_due"`
	ComputedTotal decimal.Decimal `json:"computed_total_due"`
	Fixed         bool            `json:"fixed"`
}

type AuditReport struct {
	Checked    int             `json:"checked"`
	Mismatches []AuditMismatch `json:"mismatches"`
}

const auditBatchSize = 100

// storedTotals recomputes an invoice from its persisted lines and services.
func storedTotals(inv models.Invoice) (billing.TotalsInput, []decimal.Decimal) {
	lines := make([]billing.LineItemInput, len(inv.Items))
	lineTotals := make([]decimal.Decimal, len(inv.Items))
	for i, it := range inv.Items {
		lines[i] = billing.LineItemInput{
			Quantity: utils.NumberOf(it.Quantity),
			Rate:     utils.NumberOf(it.Rate),
			Days:     utils.NumberOf(it.RentalDays),
			Discount: utils.NumberOf(it.Discount),
		}
		lineTotals[i] = billing.CalculateLineTotal(lines[i])
	}
	charges := make([]billing.ServiceCharge, len(inv.Services))
	for i, s := range inv.Services {
		charges[i] = billing.ServiceCharge{Name: s.Name, Amount: utils.NumberOf(s.Amount), Discount: utils.NumberOf(s.Discount)}
	}
	return billing.TotalsInput{
		EquipmentSubtotal: utils.NumberOf(billing.CalculateEquipmentSubtotal(lines)),
		TransportAmount:   utils.NumberOf(inv.TransportAmount),
		TransportDiscount: utils.NumberOf(inv.TransportDiscount),
		VATAmount:         utils.NumberOf(inv.TaxAmount),
		Services:          charges,
	}, lineTotals
}

// AuditTotals checks every stored total due against the calculator. With fix set,
// mismatching invoices get their stored totals and unpaid commissions rewritten.
func (h *InvoiceHandler) AuditTotals(ctx context.Context, fix bool) (*AuditReport, error) {
	report := &AuditReport{Mismatches: []AuditMismatch{}}
	var lastID int64

	for {
		var batch []models.Invoice
		err := h.db.WithContext(ctx).
			Preload("Items").Preload("Services").
			Where("id > ?", lastID).Order("id asc").Limit(auditBatchSize).
			Find(&batch).Error
		if err != nil {
			return nil, fmt.Errorf("failed to load invoices: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		lastID = batch[len(batch)-1].ID

		for _, inv := range batch {
			report.Checked++
			input, lineTotals := storedTotals(inv)
			if billing.ValidateInvoiceCalculations(input, utils.NumberOf(inv.TotalDue)) {
				continue
			}

			totals := billing.CalculateInvoiceTotals(input)
			mismatch := AuditMismatch{
				InvoiceID:     inv.ID,
				InvoiceNumber: inv.InvoiceNumber,
				StoredTotal:   inv.TotalDue,
				ComputedTotal: totals.TotalDue,
			}
			if fix {
				if err := h.fixTotals(ctx, inv, totals, lineTotals); err != nil {
					return nil, err
				}
				mismatch.Fixed = true
			}
			h.log.Warn().Int64("invoice_id", inv.ID).Str("stored", inv.TotalDue.StringFixed(2)).Str("computed", totals.TotalDue.StringFixed(2)).Bool("fixed", fix).Msg("invoice total mismatch")
			report.Mismatches = append(report.Mismatches, mismatch)
		}
	}

	if fix && len(report.Mismatches) > 0 {
		h.commissions.InvalidateCommissionCaches(ctx)
	}
	return report, nil
}

func (h *InvoiceHandler) fixTotals(ctx context.Context, inv models.Invoice, totals billing.Totals, lineTotals []decimal.Decimal) error {
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, it := range inv.Items {
			if it.LineTotal.Equal(lineTotals[i]) {
				continue
			}
			if err := tx.Model(&models.InvoiceItem{}).Where("id = ?", it.ID).Update("line_total", lineTotals[i]).Error; err != nil {
				return fmt.Errorf("failed to fix item %d: %w", it.ID, err)
			}
		}
		for _, s := range inv.Services {
			net := s.Amount.Sub(s.Discount)
			if s.Total.Equal(net) {
				continue
			}
			if err := tx.Model(&models.InvoiceService{}).Where("id = ?", s.ID).Update("total", net).Error; err != nil {
				return fmt.Errorf("failed to fix service %d: %w", s.ID, err)
			}
		}
		err := tx.Model(&models.Invoice{}).Where("id = ?", inv.ID).Updates(map[string]interface{}{
			"equipment_subtotal": totals.EquipmentSubtotal,
			"services_total":     totals.ServicesTotal,
			"subtotal":           totals.InvoiceSubtotal,
			"total_due":          totals.TotalDue,
		}).Error
		if err != nil {
			return fmt.Errorf("failed to fix invoice %d: %w", inv.ID, err)
		}
		return h.commissions.RecalculateInvoiceTx(tx, inv.ID)
	})
	if err != nil {
		return err
	}
	h.publishInvoiceEvent(ctx, EventInvoiceTotalsFixed, &models.Invoice{ID: inv.ID, InvoiceNumber: inv.InvoiceNumber, TotalDue: totals.TotalDue})
	return nil
}
