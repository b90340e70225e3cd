package pdf

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/shopspring/decimal"

	"rentflow-system/internal/billing"
	"rentflow-system/internal/database/models"
	"rentflow-system/internal/utils"
)

//go:embed templates/invoice.html
var templateFS embed.FS

// Converter turns a finished HTML document into PDF bytes.
type Converter interface {
	Convert(ctx context.Context, html []byte) ([]byte, error)
}

type LineView struct {
	Description string
	Quantity    int
	Rate        decimal.Decimal
	Days        int
	Discount    decimal.Decimal
	LineTotal   decimal.Decimal
	Unmatched   bool
}

type ServiceView struct {
	Name     string
	Amount   decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// InvoiceView is everything the invoice template reads. Totals always come
// from the billing calculator.
type InvoiceView struct {
	Number          string
	Status          string
	IssuedAt        time.Time
	RentalStartDate time.Time
	RentalDays      int
	Customer        models.Customer
	Company         models.TemplateConfig
	Items           []LineView
	Services        []ServiceView
	Totals          billing.Totals
	Notes           string
}

func NewInvoiceView(inv *models.Invoice, cfg models.TemplateConfig) InvoiceView {
	view := InvoiceView{
		Number:          inv.InvoiceNumber,
		Status:          inv.Status,
		IssuedAt:        inv.CreatedAt,
		RentalStartDate: inv.RentalStartDate,
		RentalDays:      inv.RentalDays,
		Company:         cfg.WithDefaults(),
		Notes:           inv.Notes,
	}
	if inv.Customer != nil {
		view.Customer = *inv.Customer
	}

	// stored line_total and total columns are ignored; every figure is recomputed
	lines := make([]billing.LineItemInput, 0, len(inv.Items))
	for _, it := range inv.Items {
		line := billing.LineItemInput{
			Quantity: utils.NumberOf(it.Quantity),
			Rate:     utils.NumberOf(it.Rate),
			Days:     utils.NumberOf(it.RentalDays),
			Discount: utils.NumberOf(it.Discount),
		}
		lines = append(lines, line)
		view.Items = append(view.Items, LineView{
			Description: it.Description,
			Quantity:    it.Quantity,
			Rate:        it.Rate,
			Days:        it.RentalDays,
			Discount:    it.Discount,
			LineTotal:   billing.CalculateLineTotal(line),
			Unmatched:   it.MatchStatus == models.MatchStatusNoMatch,
		})
	}

	charges := make([]billing.ServiceCharge, 0, len(inv.Services))
	for _, s := range inv.Services {
		charge := billing.ServiceCharge{
			Name:     s.Name,
			Amount:   utils.NumberOf(s.Amount),
			Discount: utils.NumberOf(s.Discount),
		}
		charges = append(charges, charge)
		view.Services = append(view.Services, ServiceView{
			Name:     s.Name,
			Amount:   s.Amount,
			Discount: s.Discount,
			Total:    charge.Net(),
		})
	}

	view.Totals = billing.CalculateInvoiceTotals(billing.TotalsInput{
		EquipmentSubtotal: utils.NumberOf(billing.CalculateEquipmentSubtotal(lines)),
		TransportAmount:   utils.NumberOf(inv.TransportAmount),
		TransportDiscount: utils.NumberOf(inv.TransportDiscount),
		VATAmount:         utils.NumberOf(inv.TaxAmount),
		Services:          charges,
	})
	return view
}

type Renderer struct {
	tmpl      *template.Template
	converter Converter
}

// NewRenderer parses the embedded invoice template with the formatter's helpers.
func NewRenderer(f Formatter, converter Converter) (*Renderer, error) {
	funcs := template.FuncMap{
		"money": f.FormatCurrency,
		"date":  f.FormatDate,
		"inc":   func(i int) int { return i + 1 },
	}
	tmpl, err := template.New("invoice.html").Funcs(funcs).ParseFS(templateFS, "templates/invoice.html")
	if err != nil {
		return nil, fmt.Errorf("parse invoice template: %w", err)
	}
	return &Renderer{tmpl: tmpl, converter: converter}, nil
}

func (r *Renderer) RenderHTML(view InvoiceView) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", view.Number, err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) Render(ctx context.Context, view InvoiceView) ([]byte, error) {
	html, err := r.RenderHTML(view)
	if err != nil {
		return nil, err
	}
	out, err := r.converter.Convert(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("convert invoice %s: %w", view.Number, err)
	}
	return out, nil
}
