package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"rentflow-system/internal/apperr"
	"rentflow-system/internal/database/models"
	"rentflow-system/internal/logger"
	"rentflow-system/internal/matching"
	"rentflow-system/internal/scanner"
	customerhandler "rentflow-system/internal/services/customer/handler"
	equipmenthandler "rentflow-system/internal/services/equipment/handler"
	invoicehandler "rentflow-system/internal/services/invoice/handler"
	"rentflow-system/internal/utils"
)

const (
	ConfidenceMatched = "matched"
	ConfidenceNoMatch = "no_match"
)

// EngineSource hands out configured extraction engines by name.
type EngineSource interface {
	Engine(name string) (scanner.Extractor, error)
}

type ResolvedItem struct {
	Name          string          `json:"name"`
	Quantity      int             `json:"quantity"`
	EquipmentID   *int64          `json:"equipment_id"`
	EquipmentName string          `json:"equipment_name,omitempty"`
	Rate          decimal.Decimal `json:"rate"`
	Confidence    string          `json:"confidence"`
	Score         float64         `json:"score"`
}

type ScanResult struct {
	Engine          string         `json:"engine"`
	CustomerName    string         `json:"customer_name"`
	CustomerPhone   string         `json:"customer_phone"`
	RentalStartDate string         `json:"rental_start_date"`
	RentalDays      int            `json:"rental_days"`
	Items           []ResolvedItem `json:"items"`
}

// ReviewedItem is a scanned line after a person has checked it. A nil
// EquipmentID keeps the line unmatched at rate 0.
type ReviewedItem struct {
	Name        string       `json:"name"`
	Quantity    utils.Number `json:"quantity"`
	EquipmentID *int64       `json:"equipment_id"`
	Rate        utils.Number `json:"rate"`
}

type ReviewedDraft struct {
	CustomerName    string         `json:"customer_name"`
	CustomerPhone   string         `json:"customer_phone"`
	RentalStartDate string         `json:"rental_start_date"`
	RentalDays      utils.Number   `json:"rental_days"`
	TemplateID      *int64         `json:"template_id"`
	Notes           string         `json:"notes"`
	Items           []ReviewedItem `json:"items"`
}

type ScannerHandler struct {
	engines       EngineSource
	equipment     *equipmenthandler.EquipmentHandler
	customers     *customerhandler.CustomerHandler
	invoices      *invoicehandler.InvoiceHandler
	defaultEngine string
	timeout       time.Duration
	now           func() time.Time
	log           zerolog.Logger
}

func NewScannerHandler(
	engines EngineSource,
	equipment *equipmenthandler.EquipmentHandler,
	customers *customerhandler.CustomerHandler,
	invoices *invoicehandler.InvoiceHandler,
	defaultEngine string,
	timeout time.Duration,
) *ScannerHandler {
	if defaultEngine == "" {
		defaultEngine = scanner.EngineGemini
	}
	return &ScannerHandler{
		engines:       engines,
		equipment:     equipment,
		customers:     customers,
		invoices:      invoices,
		defaultEngine: defaultEngine,
		timeout:       timeout,
		now:           time.Now,
		log:           logger.WithComponent("scanner"),
	}
}

// Scan runs exactly one engine over the image and resolves every extracted line
// against the active catalog. Lines without a match are kept, in order, at rate 0.
func (h *ScannerHandler) Scan(ctx context.Context, img scanner.Image, engine string) (*ScanResult, error) {
	if err := scanner.ValidateImage(&img); err != nil {
		return nil, err
	}
	engine = strings.ToLower(strings.TrimSpace(engine))
	if engine == "" {
		engine = h.defaultEngine
	}
	extractor, err := h.engines.Engine(engine)
	if err != nil {
		return nil, err
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	started := time.Now()
	draft, err := extractor.Extract(ctx, img)
	if err != nil {
		var scanErr *scanner.ScanError
		if !errors.As(err, &scanErr) {
			err = &scanner.ScanError{Engine: engine, Op: "extract", Err: err}
		}
		h.log.Warn().Err(err).Str("engine", engine).Msg("scan failed")
		return nil, err
	}
	normalized := draft.Normalize()

	catalog, err := h.equipment.ActiveCatalog(ctx)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{
		Engine:          engine,
		CustomerName:    normalized.CustomerName,
		CustomerPhone:   normalized.CustomerPhone,
		RentalStartDate: normalized.RentalStartDate,
		RentalDays:      normalized.RentalDays,
		Items:           make([]ResolvedItem, 0, len(normalized.Items)),
	}
	matched := 0
	for _, it := range normalized.Items {
		resolved := ResolvedItem{
			Name:       it.Name,
			Quantity:   it.Quantity,
			Rate:       decimal.Zero,
			Confidence: ConfidenceNoMatch,
		}
		if m, ok := matching.BestMatch(it.Name, catalog); ok {
			id := m.Item.ID
			resolved.EquipmentID = &id
			resolved.EquipmentName = m.Item.Name
			resolved.Rate = m.Item.Rate
			resolved.Confidence = ConfidenceMatched
			resolved.Score = m.Score
			matched++
		}
		result.Items = append(result.Items, resolved)
	}

	h.log.Info().
		Str("engine", engine).
		Int("items", len(result.Items)).
		Int("matched", matched).
		Dur("took", time.Since(started)).
		Msg("scan completed")
	return result, nil
}

func (d ReviewedDraft) validate() error {
	v := &apperr.ValidationError{}
	if strings.TrimSpace(d.CustomerName) == "" && strings.TrimSpace(d.CustomerPhone) == "" {
		v.Add("customer_name", "customer name or phone is required")
	}
	checkCount(v, "rental_days", d.RentalDays)
	for i, it := range d.Items {
		if strings.TrimSpace(it.Name) == "" && it.EquipmentID == nil {
			v.Add(fmt.Sprintf("items[%d].name", i), "is required")
		}
		checkCount(v, fmt.Sprintf("items[%d].quantity", i), it.Quantity)
	}
	return v.OrNil()
}

// checkCount rejects counts the invoice cannot store. Missing or small values are
// coerced to 1 later.
func checkCount(v *apperr.ValidationError, field string, n utils.Number) {
	if n.IsSet() && n.Decimal().GreaterThan(decimal.NewFromInt(utils.MaxCount)) {
		v.Add(field, "is too large")
	}
}

// CreateInvoiceFromScan stores a reviewed draft as a draft invoice. The customer is
// looked up by phone, then name, and created when neither matches.
func (h *ScannerHandler) CreateInvoiceFromScan(ctx context.Context, draft ReviewedDraft) (*models.Invoice, error) {
	if err := draft.validate(); err != nil {
		return nil, err
	}

	customer, created, err := h.customers.FindOrCreate(ctx, draft.CustomerName, draft.CustomerPhone)
	if err != nil {
		return nil, err
	}
	if created {
		h.log.Info().Int64("customer_id", customer.ID).Str("name", customer.Name).Msg("customer created from scan")
	}

	start := scanner.NormalizeDate(draft.RentalStartDate)
	if start == "" {
		start = h.now().Format("2006-01-02")
	}
	days := draft.RentalDays
	if !days.IsSet() || days.Decimal().LessThan(decimal.NewFromInt(1)) {
		days = utils.NumberOf(1)
	}

	req := invoicehandler.InvoiceRequest{
		CustomerID:      customer.ID,
		TemplateID:      draft.TemplateID,
		RentalStartDate: start,
		RentalDays:      utils.NumberOf(days.Decimal().IntPart()),
		Status:          "draft",
		Notes:           draft.Notes,
		Source:          invoicehandler.SourceScan,
		Items:           make([]invoicehandler.ItemInput, 0, len(draft.Items)),
	}
	for _, it := range draft.Items {
		qty := it.Quantity
		if !qty.IsSet() || qty.Decimal().LessThan(decimal.NewFromInt(1)) {
			qty = utils.NumberOf(1)
		}
		line := invoicehandler.ItemInput{
			EquipmentID: it.EquipmentID,
			Description: strings.TrimSpace(it.Name),
			Quantity:    utils.NumberOf(qty.Decimal().IntPart()),
		}
		if it.EquipmentID == nil {
			line.Rate = utils.NumberOf(0)
			line.MatchStatus = models.MatchStatusNoMatch
		} else {
			line.MatchStatus = models.MatchStatusMatched
			if it.Rate.IsSet() {
				line.Rate = it.Rate
				line.ManualRate = true
			}
		}
		req.Items = append(req.Items, line)
	}

	return h.invoices.CreateInvoice(ctx, req)
}
