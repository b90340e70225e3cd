package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rentflow-system/internal/apperr"
	"rentflow-system/internal/scanner"
	scannerhandler "rentflow-system/internal/services/scanner/handler"
)

type ScannerHTTPHandler struct {
	scans   *scannerhandler.ScannerHandler
	timeout time.Duration
}

func NewScannerHTTPHandler(scans *scannerhandler.ScannerHandler, timeout time.Duration) *ScannerHTTPHandler {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ScannerHTTPHandler{
		scans:   scans,
		timeout: timeout,
	}
}

// Scan reads the multipart "image" file and runs the engine named by the "engine" field.
func (h *ScannerHTTPHandler) Scan(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		handleServiceError(c, (&apperr.ValidationError{}).Add("image", "is required"))
		return
	}
	if file.Size > scanner.MaxImageBytes {
		handleServiceError(c, (&apperr.ValidationError{}).Add("image", "must not exceed %d MB", scanner.MaxImageBytes>>20))
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Unable to read upload: "+err.Error()))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, scanner.MaxImageBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Unable to read upload: "+err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	img := scanner.Image{Data: data, MIMEType: file.Header.Get("Content-Type")}
	result, err := h.scans.Scan(ctx, img, c.PostForm("engine"))
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Scan completed", result))
}

func (h *ScannerHTTPHandler) CreateInvoice(c *gin.Context) {
	var req scannerhandler.ReviewedDraft
	if !bindJSON(c, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	invoice, err := h.scans.CreateInvoiceFromScan(ctx, req)
	if handleServiceError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, successResponse("Draft invoice created from scan", invoice))
}
