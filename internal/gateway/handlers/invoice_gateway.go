package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rentflow-system/internal/database/models"
	invoicehandler "rentflow-system/internal/services/invoice/handler"
)

type InvoiceHTTPHandler struct {
	invoices *invoicehandler.InvoiceHandler
}

func NewInvoiceHTTPHandler(invoices *invoicehandler.InvoiceHandler) *InvoiceHTTPHandler {
	return &InvoiceHTTPHandler{
		invoices: invoices,
	}
}

type SetStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *InvoiceHTTPHandler) CreateInvoice(c *gin.Context) {
	var req invoicehandler.InvoiceRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	invoice, err := h.invoices.CreateInvoice(ctx, req)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, successResponse("Invoice created successfully", invoice))
}

func (h *InvoiceHTTPHandler) GetInvoice(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	invoice, err := h.invoices.GetInvoice(ctx, id)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Invoice retrieved successfully", invoice))
}

func (h *InvoiceHTTPHandler) UpdateInvoice(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req invoicehandler.InvoiceRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	invoice, err := h.invoices.UpdateInvoice(ctx, id, req)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Invoice updated successfully", invoice))
}

func (h *InvoiceHTTPHandler) DeleteInvoice(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if handleServiceError(c, h.invoices.DeleteInvoice(ctx, id)) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Invoice deleted successfully", nil))
}

func (h *InvoiceHTTPHandler) ListInvoices(c *gin.Context) {
	var query invoicehandler.ListInvoicesParams
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid query parameters: "+err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	invoices, meta, err := h.invoices.ListInvoices(ctx, query)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Invoices retrieved successfully", invoices, meta))
}

func (h *InvoiceHTTPHandler) PreviewTotals(c *gin.Context) {
	var req invoicehandler.InvoiceRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	preview, err := h.invoices.PreviewTotals(ctx, req)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Totals calculated", preview))
}

// ToggleStatus advances the invoice one step through the status cycle.
func (h *InvoiceHTTPHandler) ToggleStatus(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	invoice, err := h.invoices.ToggleStatus(ctx, id)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Invoice status changed to "+invoice.Status, invoice))
}

func (h *InvoiceHTTPHandler) SetStatus(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req SetStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	invoice, err := h.invoices.SetStatus(ctx, id, req.Status)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Invoice status changed to "+invoice.Status, invoice))
}

func (h *InvoiceHTTPHandler) AuditTotals(c *gin.Context) {
	fix := false
	if v := parseBoolQuery(c, "fix"); v != nil {
		fix = *v
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()

	report, err := h.invoices.AuditTotals(ctx, fix)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse(fmt.Sprintf("Checked %d invoices, %d mismatched", report.Checked, len(report.Mismatches)), report))
}

func (h *InvoiceHTTPHandler) DownloadPDF(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	out, invoice, err := h.invoices.RenderPDF(ctx, id, parseInt64Query(c, "template_id"))
	if handleServiceError(c, err) {
		return
	}
	writePDF(c, out, invoice)
}

func (h *InvoiceHTTPHandler) ShareLink(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	link, err := h.invoices.ShareLink(ctx, id)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, successResponse("Share link created", link))
}

// PublicPDF serves a shared invoice to holders of a valid token, without other credentials.
func (h *InvoiceHTTPHandler) PublicPDF(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, errorResponse("token is required"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	out, invoice, err := h.invoices.PublicPDF(ctx, token)
	if handleServiceError(c, err) {
		return
	}
	writePDF(c, out, invoice)
}

func writePDF(c *gin.Context, out []byte, invoice *models.Invoice) {
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", invoice.InvoiceNumber+".pdf"))
	c.Data(http.StatusOK, "application/pdf", out)
}
