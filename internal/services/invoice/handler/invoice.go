package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"rentflow-system/internal/apperr"
	"rentflow-system/internal/billing"
	"rentflow-system/internal/database/models"
	"rentflow-system/internal/logger"
	"rentflow-system/internal/pdf"
	commissionhandler "rentflow-system/internal/services/commissions/handler"
	equipmenthandler "rentflow-system/internal/services/equipment/handler"
	templatehandler "rentflow-system/internal/services/templates/handler"
	"rentflow-system/internal/utils"
)

const (
	EventInvoiceCreated       = "invoice.created"
	EventInvoiceUpdated       = "invoice.updated"
	EventInvoiceDeleted       = "invoice.deleted"
	EventInvoiceStatusChanged = "invoice.status_changed"
	EventInvoiceTotalsFixed   = "invoice.totals_fixed"

	SourceManual = "manual"
	SourceScan   = "scan"
)

// PDFRenderer turns a resolved invoice view into document bytes.
type PDFRenderer interface {
	Render(ctx context.Context, view pdf.InvoiceView) ([]byte, error)
}

type Options struct {
	NumberPrefix  string
	NumberRetries int
	ShareSecret   string
	ShareTTL      time.Duration
}

type ListInvoicesParams struct {
	Status     string `form:"status"`
	CustomerID int64  `form:"customer_id"`
	Search     string `form:"search"`
	utils.PageRequest
}

type InvoiceHandler struct {
	db          *gorm.DB
	redis       *redis.Client
	templates   *templatehandler.TemplateHandler
	commissions *commissionhandler.CommissionHandler
	renderer    PDFRenderer
	nextNumber  func(prefix string) string
	opts        Options
	log         zerolog.Logger
}

func NewInvoiceHandler(
	db *gorm.DB,
	redisClient *redis.Client,
	templates *templatehandler.TemplateHandler,
	commissions *commissionhandler.CommissionHandler,
	renderer PDFRenderer,
	opts Options,
) *InvoiceHandler {
	if opts.NumberRetries < 1 {
		opts.NumberRetries = 1
	}
	if opts.ShareTTL <= 0 {
		opts.ShareTTL = 7 * 24 * time.Hour
	}
	return &InvoiceHandler{
		db:          db,
		redis:       redisClient,
		templates:   templates,
		commissions: commissions,
		renderer:    renderer,
		nextNumber:  billing.NewNumberGenerator().Next,
		opts:        opts,
		log:         logger.WithComponent("invoice"),
	}
}

// computed is a request resolved against the catalog and run through the calculator.
type computed struct {
	startDate  time.Time
	rentalDays int
	items      []models.InvoiceItem
	services   []models.InvoiceService
	serviceIDs []*int64
	totals     billing.Totals
}

func (h *InvoiceHandler) compute(tx *gorm.DB, req InvoiceRequest, cfg models.TemplateConfig) (*computed, error) {
	one := decimal.NewFromInt(1)
	c := &computed{rentalDays: int(req.RentalDays.Or(one).IntPart())}
	if strings.TrimSpace(req.RentalStartDate) != "" {
		start, err := parseDate(req.RentalStartDate)
		if err != nil {
			return nil, (&apperr.ValidationError{}).Add("rental_start_date", "must be a date in YYYY-MM-DD format")
		}
		c.startDate = start
	}

	var ids []int64
	for _, it := range req.Items {
		if it.EquipmentID != nil {
			ids = append(ids, *it.EquipmentID)
		}
	}
	catalog, err := equipmenthandler.LoadEquipment(tx, ids)
	if err != nil {
		return nil, err
	}

	lines := make([]billing.LineItemInput, 0, len(req.Items))
	for i, in := range req.Items {
		days := in.RentalDays.Or(decimal.NewFromInt(int64(c.rentalDays)))
		qty := in.Quantity.Or(one)
		rate := money(in.Rate)
		discount := money(in.Discount)
		description := strings.TrimSpace(in.Description)
		status := in.MatchStatus

		var equipmentID *int64
		if in.EquipmentID != nil {
			eq := catalog[*in.EquipmentID]
			id := eq.ID
			equipmentID = &id
			if !in.ManualRate {
				rate = eq.DailyRate
			}
			if description == "" {
				description = eq.Name
			}
			if status == "" || status == models.MatchStatusNoMatch {
				status = models.MatchStatusMatched
			}
		} else if status == "" || status == models.MatchStatusMatched {
			status = models.MatchStatusManual
		}

		line := billing.LineItemInput{
			Quantity: utils.NumberOf(qty),
			Rate:     utils.NumberOf(rate),
			Days:     utils.NumberOf(days),
			Discount: utils.NumberOf(discount),
		}
		lines = append(lines, line)
		c.items = append(c.items, models.InvoiceItem{
			EquipmentID: equipmentID,
			Description: description,
			Quantity:    int(qty.IntPart()),
			Rate:        rate,
			RentalDays:  int(days.IntPart()),
			Discount:    discount,
			LineTotal:   billing.CalculateLineTotal(line),
			ManualRate:  in.ManualRate,
			MatchStatus: status,
			Position:    i,
		})
	}

	charges := make([]billing.ServiceCharge, 0, len(req.Services))
	for i, in := range req.Services {
		charge := billing.ServiceCharge{
			Name:     strings.TrimSpace(in.Name),
			Amount:   utils.NumberOf(money(in.Amount)),
			Discount: utils.NumberOf(money(in.Discount)),
		}
		charges = append(charges, charge)
		c.services = append(c.services, models.InvoiceService{
			Name:     charge.Name,
			Amount:   charge.Amount.Decimal(),
			Discount: charge.Discount.Decimal(),
			Total:    charge.Net(),
			Position: i,
		})
		c.serviceIDs = append(c.serviceIDs, in.ID)
	}

	input := billing.TotalsInput{
		EquipmentSubtotal: utils.NumberOf(billing.CalculateEquipmentSubtotal(lines)),
		TransportAmount:   utils.NumberOf(money(req.TransportAmount)),
		TransportDiscount: utils.NumberOf(money(req.TransportDiscount)),
		Services:          charges,
	}
	if req.TaxAmount.Provided() {
		input.VATAmount = utils.NumberOf(money(req.TaxAmount))
	} else if cfg.TaxRate.IsPositive() {
		subtotal := billing.CalculateInvoiceTotals(input).InvoiceSubtotal
		input.VATAmount = utils.NumberOf(subtotal.Mul(cfg.TaxRate).Div(decimal.NewFromInt(100)).Round(2))
	}
	c.totals = billing.CalculateInvoiceTotals(input)
	return c, nil
}

func (c *computed) apply(inv *models.Invoice) {
	inv.RentalStartDate = c.startDate
	inv.RentalDays = c.rentalDays
	inv.TransportAmount = c.totals.TransportAmount
	inv.TransportDiscount = c.totals.TransportDiscount
	inv.TaxAmount = c.totals.VATAmount
	inv.EquipmentSubtotal = c.totals.EquipmentSubtotal
	inv.ServicesTotal = c.totals.ServicesTotal
	inv.Subtotal = c.totals.InvoiceSubtotal
	inv.TotalDue = c.totals.TotalDue
}

func ensureCustomer(tx *gorm.DB, id int64) error {
	var customer models.Customer
	if err := tx.Select("id").First(&customer, id).Error; err != nil {
		return apperr.FromDB(err, "customer", id)
	}
	return nil
}

// CreateInvoice validates, prices and stores an invoice with its lines, services and
// role assignments in one transaction. A colliding invoice number is regenerated.
func (h *InvoiceHandler) CreateInvoice(ctx context.Context, req InvoiceRequest) (*models.Invoice, error) {
	if err := req.validate(false); err != nil {
		return nil, err
	}

	cfg, tpl, err := h.templates.ResolveConfig(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}
	prefix := h.opts.NumberPrefix
	if tpl != nil && cfg.InvoicePrefix != "" {
		prefix = cfg.InvoicePrefix
	}

	var created *models.Invoice
	for attempt := 1; ; attempt++ {
		number := h.nextNumber(prefix)
		created, err = h.createTx(ctx, number, req, cfg)
		if err == nil {
			break
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		h.log.Warn().Str("invoice_number", number).Int("attempt", attempt).Msg("invoice number collision")
		if attempt >= h.opts.NumberRetries {
			return nil, apperr.Conflict("could not allocate a unique invoice number after %d attempts", attempt)
		}
	}

	if len(req.Assignments) > 0 {
		h.commissions.InvalidateCommissionCaches(ctx)
	}
	invoice, err := h.GetInvoice(ctx, created.ID)
	if err != nil {
		return nil, err
	}
	h.publishInvoiceEvent(ctx, EventInvoiceCreated, invoice)
	h.log.Info().Int64("invoice_id", invoice.ID).Str("invoice_number", invoice.InvoiceNumber).Str("total_due", invoice.TotalDue.StringFixed(2)).Msg("invoice created")
	return invoice, nil
}

func (h *InvoiceHandler) createTx(ctx context.Context, number string, req InvoiceRequest, cfg models.TemplateConfig) (*models.Invoice, error) {
	status := billing.StatusUnpaid
	if req.Status != "" {
		status, _ = billing.ParseStatus(req.Status)
	}
	source := req.Source
	if source == "" {
		source = SourceManual
	}

	invoice := &models.Invoice{
		InvoiceNumber: number,
		CustomerID:    req.CustomerID,
		TemplateID:    req.TemplateID,
		Status:        status.String(),
		Source:        source,
		Notes:         strings.TrimSpace(req.Notes),
	}

	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureCustomer(tx, req.CustomerID); err != nil {
			return err
		}
		c, err := h.compute(tx, req, cfg)
		if err != nil {
			return err
		}
		c.apply(invoice)

		if err := tx.Create(invoice).Error; err != nil {
			return fmt.Errorf("failed to create invoice: %w", err)
		}
		if err := insertLines(tx, invoice.ID, c); err != nil {
			return err
		}
		if len(req.Assignments) > 0 {
			return h.commissions.ReplaceInvoiceAssignmentsTx(tx, invoice.ID, req.Assignments)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

func insertLines(tx *gorm.DB, invoiceID int64, c *computed) error {
	if len(c.items) > 0 {
		for i := range c.items {
			c.items[i].InvoiceID = invoiceID
		}
		if err := tx.Create(&c.items).Error; err != nil {
			return fmt.Errorf("failed to create invoice items: %w", err)
		}
	}
	for i := range c.services {
		c.services[i].InvoiceID = invoiceID
		if err := tx.Create(&c.services[i]).Error; err != nil {
			return fmt.Errorf("failed to create invoice service: %w", err)
		}
	}
	return nil
}

// UpdateInvoice replaces the line items, reconciles services by id and recomputes
// totals and unpaid commissions in one transaction.
func (h *InvoiceHandler) UpdateInvoice(ctx context.Context, id int64, req InvoiceRequest) (*models.Invoice, error) {
	if err := req.validate(false); err != nil {
		return nil, err
	}
	cfg, _, err := h.templates.ResolveConfig(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invoice models.Invoice
		if err := tx.First(&invoice, id).Error; err != nil {
			return apperr.FromDB(err, "invoice", id)
		}
		if err := ensureCustomer(tx, req.CustomerID); err != nil {
			return err
		}
		c, err := h.compute(tx, req, cfg)
		if err != nil {
			return err
		}

		if err := tx.Where("invoice_id = ?", id).Delete(&models.InvoiceItem{}).Error; err != nil {
			return fmt.Errorf("failed to clear invoice items: %w", err)
		}
		if len(c.items) > 0 {
			for i := range c.items {
				c.items[i].InvoiceID = id
			}
			if err := tx.Create(&c.items).Error; err != nil {
				return fmt.Errorf("failed to create invoice items: %w", err)
			}
		}
		if err := reconcileServices(tx, id, c); err != nil {
			return err
		}

		c.apply(&invoice)
		updates := map[string]interface{}{
			"customer_id":        req.CustomerID,
			"template_id":        req.TemplateID,
			"rental_start_date":  invoice.RentalStartDate,
			"rental_days":        invoice.RentalDays,
			"transport_amount":   invoice.TransportAmount,
			"transport_discount": invoice.TransportDiscount,
			"tax_amount":         invoice.TaxAmount,
			"equipment_subtotal": invoice.EquipmentSubtotal,
			"services_total":     invoice.ServicesTotal,
			"subtotal":           invoice.Subtotal,
			"total_due":          invoice.TotalDue,
			"notes":              strings.TrimSpace(req.Notes),
		}
		if req.Status != "" {
			status, _ := billing.ParseStatus(req.Status)
			updates["status"] = status.String()
		}
		if err := tx.Model(&models.Invoice{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update invoice: %w", err)
		}

		if req.Assignments != nil {
			return h.commissions.ReplaceInvoiceAssignmentsTx(tx, id, req.Assignments)
		}
		return h.commissions.RecalculateInvoiceTx(tx, id)
	})
	if err != nil {
		return nil, err
	}

	h.commissions.InvalidateCommissionCaches(ctx)
	invoice, err := h.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	h.publishInvoiceEvent(ctx, EventInvoiceUpdated, invoice)
	return invoice, nil
}

// reconcileServices updates services named by id, inserts new ones and deletes the rest.
// A service with paid commission cannot be removed.
func reconcileServices(tx *gorm.DB, invoiceID int64, c *computed) error {
	var existing []models.InvoiceService
	if err := tx.Where("invoice_id = ?", invoiceID).Find(&existing).Error; err != nil {
		return fmt.Errorf("failed to load services: %w", err)
	}
	keep := make(map[int64]bool, len(existing))
	for _, s := range existing {
		keep[s.ID] = false
	}

	for i, svc := range c.services {
		svc.InvoiceID = invoiceID
		if ref := c.serviceIDs[i]; ref != nil {
			if _, ok := keep[*ref]; !ok {
				return apperr.NotFound("service", *ref)
			}
			keep[*ref] = true
			err := tx.Model(&models.InvoiceService{}).Where("id = ?", *ref).Updates(map[string]interface{}{
				"name":     svc.Name,
				"amount":   svc.Amount,
				"discount": svc.Discount,
				"total":    svc.Total,
				"position": svc.Position,
			}).Error
			if err != nil {
				return fmt.Errorf("failed to update service %d: %w", *ref, err)
			}
			continue
		}
		if err := tx.Create(&svc).Error; err != nil {
			return fmt.Errorf("failed to create invoice service: %w", err)
		}
	}

	for serviceID, kept := range keep {
		if kept {
			continue
		}
		var paid int64
		if err := tx.Model(&models.EmployeeAssignment{}).Where("service_id = ? AND paid_at IS NOT NULL", serviceID).Count(&paid).Error; err != nil {
			return fmt.Errorf("failed to count paid assignments: %w", err)
		}
		if paid > 0 {
			return apperr.Conflict("service %d has paid commission and cannot be removed", serviceID)
		}
		if err := tx.Where("service_id = ?", serviceID).Delete(&models.EmployeeAssignment{}).Error; err != nil {
			return fmt.Errorf("failed to delete service assignments: %w", err)
		}
		if err := tx.Delete(&models.InvoiceService{}, serviceID).Error; err != nil {
			return fmt.Errorf("failed to delete service %d: %w", serviceID, err)
		}
	}
	return nil
}

func withDetails(db *gorm.DB) *gorm.DB {
	byPosition := func(db *gorm.DB) *gorm.DB { return db.Order("position asc, id asc") }
	byID := func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }
	return db.
		Preload("Customer").
		Preload("Items", byPosition).
		Preload("Services", byPosition).
		Preload("Services.Assignments", byID).
		Preload("Assignments", byID)
}

func (h *InvoiceHandler) GetInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := withDetails(h.db.WithContext(ctx)).First(&invoice, id).Error; err != nil {
		return nil, apperr.FromDB(err, "invoice", id)
	}
	return &invoice, nil
}

func (h *InvoiceHandler) ListInvoices(ctx context.Context, params ListInvoicesParams) ([]models.Invoice, utils.PageMeta, error) {
	var invoices []models.Invoice
	var total int64

	query := h.db.WithContext(ctx).Model(&models.Invoice{})
	if params.Status != "" {
		status, err := billing.ParseStatus(params.Status)
		if err != nil {
			return nil, utils.PageMeta{}, (&apperr.ValidationError{}).Add("status", "must be one of draft, unpaid, paid, cancelled")
		}
		query = query.Where("invoices.status = ?", status.String())
	}
	if params.CustomerID > 0 {
		query = query.Where("invoices.customer_id = ?", params.CustomerID)
	}
	if params.Search != "" {
		term := utils.LikePattern(params.Search)
		query = query.Joins("LEFT JOIN customers ON customers.id = invoices.customer_id").
			Where("LOWER(invoices.invoice_number) LIKE ? OR LOWER(customers.name) LIKE ?", term, term)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, utils.PageMeta{}, fmt.Errorf("failed to count invoices: %w", err)
	}

	page := params.PageRequest.Normalize()
	err := query.Select("invoices.*").Preload("Customer").
		Order("invoices.created_at desc, invoices.id desc").
		Offset(page.Offset()).Limit(page.PageSize).
		Find(&invoices).Error
	if err != nil {
		return nil, utils.PageMeta{}, fmt.Errorf("failed to list invoices: %w", err)
	}

	return invoices, utils.NewPageMeta(page, total), nil
}

// DeleteInvoice removes the invoice with its lines, services and unpaid assignments.
// Paid commission anywhere on the invoice blocks the delete.
func (h *InvoiceHandler) DeleteInvoice(ctx context.Context, id int64) error {
	var number string
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invoice models.Invoice
		if err := tx.Select("id", "invoice_number").First(&invoice, id).Error; err != nil {
			return apperr.FromDB(err, "invoice", id)
		}
		number = invoice.InvoiceNumber

		services := tx.Model(&models.InvoiceService{}).Select("id").Where("invoice_id = ?", id)
		var paid int64
		err := tx.Model(&models.EmployeeAssignment{}).
			Where("paid_at IS NOT NULL AND (invoice_id = ? OR service_id IN (?))", id, services).
			Count(&paid).Error
		if err != nil {
			return fmt.Errorf("failed to count paid assignments: %w", err)
		}
		if paid > 0 {
			return apperr.Conflict("invoice %d has %d paid commission assignment(s)", id, paid)
		}

		if err := tx.Where("invoice_id = ? OR service_id IN (?)", id, services).Delete(&models.EmployeeAssignment{}).Error; err != nil {
			return fmt.Errorf("failed to delete assignments: %w", err)
		}
		if err := tx.Where("invoice_id = ?", id).Delete(&models.InvoiceService{}).Error; err != nil {
			return fmt.Errorf("failed to delete services: %w", err)
		}
		if err := tx.Where("invoice_id = ?", id).Delete(&models.InvoiceItem{}).Error; err != nil {
			return fmt.Errorf("failed to delete items: %w", err)
		}
		return tx.Delete(&models.Invoice{}, id).Error
	})
	if err != nil {
		return err
	}

	h.commissions.InvalidateCommissionCaches(ctx)
	h.publishInvoiceEvent(ctx, EventInvoiceDeleted, &models.Invoice{ID: id, InvoiceNumber: number})
	return nil
}

// ToggleStatus advances draft→unpaid→paid→cancelled→unpaid.
func (h *InvoiceHandler) ToggleStatus(ctx context.Context, id int64) (*models.Invoice, error) {
	return h.changeStatus(ctx, id, func(current billing.Status) billing.Status {
		return current.Next()
	})
}

func (h *InvoiceHandler) SetStatus(ctx context.Context, id int64, status string) (*models.Invoice, error) {
	target, err := billing.ParseStatus(status)
	if err != nil {
		return nil, (&apperr.ValidationError{}).Add("status", "must be one of draft, unpaid, paid, cancelled")
	}
	return h.changeStatus(ctx, id, func(billing.Status) billing.Status { return target })
}

func (h *InvoiceHandler) changeStatus(ctx context.Context, id int64, next func(billing.Status) billing.Status) (*models.Invoice, error) {
	var from, to billing.Status
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invoice models.Invoice
		if err := tx.Select("id", "status").First(&invoice, id).Error; err != nil {
			return apperr.FromDB(err, "invoice", id)
		}
		from = billing.Status(invoice.Status)
		to = next(from)
		return tx.Model(&models.Invoice{}).Where("id = ?", id).Update("status", to.String()).Error
	})
	if err != nil {
		return nil, err
	}

	invoice, err := h.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	h.log.Info().Int64("invoice_id", id).Str("from", from.String()).Str("to", to.String()).Msg("invoice status changed")
	h.publishInvoiceEvent(ctx, EventInvoiceStatusChanged, invoice)
	return invoice, nil
}
