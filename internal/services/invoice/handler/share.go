package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rentflow-system/internal/apperr"
	"rentflow-system/internal/database/models"
	"rentflow-system/internal/pdf"
	"rentflow-system/internal/utils"
)

// RenderPDF renders an invoice with the explicit template, else the invoice's own,
// else the default one, else built-in branding.
func (h *InvoiceHandler) RenderPDF(ctx context.Context, id int64, templateID *int64) ([]byte, *models.Invoice, error) {
	invoice, err := h.GetInvoice(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if templateID == nil {
		templateID = invoice.TemplateID
	}
	cfg, _, err := h.templates.ResolveConfig(ctx, templateID)
	if err != nil {
		return nil, nil, err
	}

	out, err := h.renderer.Render(ctx, pdf.NewInvoiceView(invoice, cfg))
	if err != nil {
		return nil, nil, err
	}
	return out, invoice, nil
}

type ShareLink struct {
	InvoiceID int64     `json:"invoice_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Path      string    `json:"path"`
}

const PublicPDFPath = "/api/v1/public/invoices/pdf"

func (h *InvoiceHandler) ShareLink(ctx context.Context, id int64) (*ShareLink, error) {
	if h.opts.ShareSecret == "" {
		return nil, fmt.Errorf("%w: share links are not configured", apperr.ErrUnavailable)
	}
	var invoice models.Invoice
	if err := h.db.WithContext(ctx).Select("id").First(&invoice, id).Error; err != nil {
		return nil, apperr.FromDB(err, "invoice", id)
	}

	token, exp, err := utils.GenerateShareToken([]byte(h.opts.ShareSecret), id, h.opts.ShareTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign share token: %w", err)
	}
	return &ShareLink{
		InvoiceID: id,
		Token:     token,
		ExpiresAt: exp,
		Path:      PublicPDFPath + "?token=" + token,
	}, nil
}

// PublicPDF renders the invoice named by a share token.
func (h *InvoiceHandler) PublicPDF(ctx context.Context, token string) ([]byte, *models.Invoice, error) {
	if h.opts.ShareSecret == "" {
		return nil, nil, fmt.Errorf("%w: share links are not configured", apperr.ErrUnavailable)
	}
	claims, err := utils.ParseShareToken([]byte(h.opts.ShareSecret), token)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err)
	}
	out, invoice, err := h.RenderPDF(ctx, claims.InvoiceID, nil)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: invoice no longer exists", apperr.ErrUnauthorized)
	}
	return out, invoice, err
}

// -- Pub/Sub Related --
type InvoiceEvent struct {
	EventType     string          `json:"event_type"`
	InvoiceID     int64           `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	CustomerID    int64           `json:"customer_id,omitempty"`
	Status        string          `json:"status,omitempty"`
	TotalDue      string          `json:"total_due"`
	Timestamp     time.Time       `json:"timestamp"`
	InvoiceData   *models.Invoice `json:"invoice_data,omitempty"`
}

// publishInvoiceEvent is best effort; failures are logged, never returned.
func (h *InvoiceHandler) publishInvoiceEvent(ctx context.Context, eventType string, invoice *models.Invoice) {
	if h.redis == nil {
		return
	}
	event := InvoiceEvent{
		EventType:     eventType,
		InvoiceID:     invoice.ID,
		InvoiceNumber: invoice.InvoiceNumber,
		CustomerID:    invoice.CustomerID,
		Status:        invoice.Status,
		TotalDue:      invoice.TotalDue.StringFixed(2),
		Timestamp:     time.Now(),
	}
	if eventType != EventInvoiceDeleted {
		event.InvoiceData = invoice
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to marshal invoice event")
		return
	}

	channel := fmt.Sprintf("invoices:events:%s", eventType)
	if err := h.redis.Publish(ctx, channel, eventJSON).Err(); err != nil {
		h.log.Warn().Err(err).Str("channel", channel).Msg("failed to publish invoice event")
		return
	}
	if err := h.redis.Publish(ctx, "invoices:events:all", eventJSON).Err(); err != nil {
		h.log.Warn().Err(err).Msg("failed to publish to all channel")
	}
}
