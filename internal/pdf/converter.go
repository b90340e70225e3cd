package pdf

import (
	"bytes"
	"context"
	"fmt"

	"github.com/SebastiaanKlippert/go-wkhtmltopdf"

	"rentflow-system/internal/apperr"
)

// WkhtmltopdfConverter shells out to the wkhtmltopdf binary.
type WkhtmltopdfConverter struct {
	Path string
	DPI  uint
}

func NewWkhtmltopdfConverter(path string, dpi uint) *WkhtmltopdfConverter {
	if path != "" {
		wkhtmltopdf.SetPath(path)
	}
	if dpi == 0 {
		dpi = 300
	}
	return &WkhtmltopdfConverter{Path: path, DPI: dpi}
}

func (c *WkhtmltopdfConverter) Convert(ctx context.Context, html []byte) ([]byte, error) {
	pdfg, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return nil, fmt.Errorf("%w: wkhtmltopdf: %v", apperr.ErrUnavailable, err)
	}
	pdfg.Dpi.Set(c.DPI)
	pdfg.PageSize.Set(wkhtmltopdf.PageSizeA4)

	page := wkhtmltopdf.NewPageReader(bytes.NewReader(html))
	pdfg.AddPage(page)

	if err := pdfg.CreateContext(ctx); err != nil {
		return nil, fmt.Errorf("wkhtmltopdf create: %w", err)
	}
	return pdfg.Bytes(), nil
}

// UnavailableConverter is used when no PDF backend is configured.
type UnavailableConverter struct{}

func (UnavailableConverter) Convert(context.Context, []byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: pdf converter not configured", apperr.ErrUnavailable)
}
