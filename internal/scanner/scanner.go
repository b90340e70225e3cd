// Package scanner extracts rental-slip drafts from images. Engines never
// report prices; rates are resolved from the equipment catalog afterwards.
package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rentflow-system/internal/apperr"
	"rentflow-system/internal/utils"
)

const (
	EngineGemini = "gemini"
	EngineOpenAI = "openai"
	EngineOCR    = "ocr"

	MaxImageBytes = 10 << 20
)

type Image struct {
	Data     []byte
	MIMEType string
}

type DraftItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Draft is the normalized extraction result. RentalStartDate is YYYY-MM-DD or empty.
type Draft struct {
	CustomerName    string      `json:"customer_name"`
	CustomerPhone   string      `json:"customer_phone"`
	RentalStartDate string      `json:"rental_start_date"`
	RentalDays      int         `json:"rental_days"`
	Items           []DraftItem `json:"items"`
}

type Extractor interface {
	Name() string
	Extract(ctx context.Context, img Image) (*Draft, error)
}

type ScanError struct {
	Engine string
	Op     string
	Err    error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %s: %v", e.Engine, e.Op, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

func wrap(engine, op string, err error) error {
	if err == nil {
		return nil
	}
	var se *ScanError
	if errors.As(err, &se) {
		return err
	}
	return &ScanError{Engine: engine, Op: op, Err: err}
}

var ErrEmptyResponse = errors.New("engine returned no content")

// ValidateImage checks size and type and fills MIMEType from the content when missing.
func ValidateImage(img *Image) error {
	v := &apperr.ValidationError{}
	if len(img.Data) == 0 {
		return v.Add("image", "is required")
	}
	if len(img.Data) > MaxImageBytes {
		return v.Add("image", "must not exceed %d MB", MaxImageBytes>>20)
	}

	mt := img.MIMEType
	if mt == "" || mt == "application/octet-stream" {
		mt = http.DetectContentType(img.Data)
	}
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		mt = parsed
	}
	if !strings.HasPrefix(mt, "image/") && mt != "application/pdf" {
		return v.Add("image", "unsupported content type %q", mt)
	}
	img.MIMEType = mt
	return nil
}

const extractionPrompt = `You read photographs of equipment rental slips.
Return only a JSON object with this shape:
{"customer_name": "", "customer_phone": "", "rental_start_date": "YYYY-MM-DD", "rental_days": 1,
 "items": [{"name": "", "quantity": 1}]}
Rules: copy equipment names as written, one entry per line item. Do not include prices.
Use an empty string for unknown text fields and 1 for unknown numbers.`

// flexString accepts a JSON string or number.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = flexString(str)
		return nil
	}
	*s = flexString(trimmed)
	return nil
}

type rawItem struct {
	Name      string       `json:"name"`
	Equipment string       `json:"equipment"`
	Quantity  utils.Number `json:"quantity"`
	Qty       utils.Number `json:"qty"`
}

type rawDraft struct {
	CustomerName    string       `json:"customer_name"`
	Customer        string       `json:"customer"`
	CustomerPhone   flexString   `json:"customer_phone"`
	Phone           flexString   `json:"phone"`
	RentalStartDate string       `json:"rental_start_date"`
	StartDate       string       `json:"start_date"`
	RentalDays      utils.Number `json:"rental_days"`
	Days            utils.Number `json:"days"`
	Items           []rawItem    `json:"items"`
	Equipment       []rawItem    `json:"equipment"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// positiveInt reads a count from engine output. Anything outside 1..utils.MaxCount is
// treated as unreadable and becomes 1.
func positiveInt(n utils.Number, alt utils.Number) int {
	one := decimal.NewFromInt(1)
	d := n.Or(alt.Or(one))
	if d.LessThan(one) || d.GreaterThan(decimal.NewFromInt(utils.MaxCount)) {
		return 1
	}
	return int(d.IntPart())
}

func (r rawDraft) normalize() *Draft {
	d := &Draft{
		CustomerName:    firstNonEmpty(r.CustomerName, r.Customer),
		CustomerPhone:   firstNonEmpty(string(r.CustomerPhone), string(r.Phone)),
		RentalStartDate: NormalizeDate(firstNonEmpty(r.RentalStartDate, r.StartDate)),
		RentalDays:      positiveInt(r.RentalDays, r.Days),
		Items:           []DraftItem{},
	}
	items := r.Items
	if len(items) == 0 {
		items = r.Equipment
	}
	for _, it := range items {
		name := firstNonEmpty(it.Name, it.Equipment)
		if name == "" {
			continue
		}
		d.Items = append(d.Items, DraftItem{Name: name, Quantity: positiveInt(it.Quantity, it.Qty)})
	}
	return d
}

// Normalize applies the same defaults to a draft edited by a user.
func (d Draft) Normalize() Draft {
	out := Draft{
		CustomerName:    strings.TrimSpace(d.CustomerName),
		CustomerPhone:   strings.TrimSpace(d.CustomerPhone),
		RentalStartDate: NormalizeDate(d.RentalStartDate),
		RentalDays:      d.RentalDays,
		Items:           []DraftItem{},
	}
	if out.RentalDays < 1 {
		out.RentalDays = 1
	}
	for _, it := range d.Items {
		name := strings.TrimSpace(it.Name)
		if name == "" {
			continue
		}
		if it.Quantity < 1 {
			it.Quantity = 1
		}
		out.Items = append(out.Items, DraftItem{Name: name, Quantity: it.Quantity})
	}
	return out
}

// ParseDraft decodes an engine's JSON answer. Markdown fences and surrounding
// prose are tolerated.
func ParseDraft(text string) (*Draft, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in response")
	}
	var raw rawDraft
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	return raw.normalize(), nil
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	time.RFC3339,
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
}

// NormalizeDate returns value as YYYY-MM-DD, or "" when it is not a recognizable date.
func NormalizeDate(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}
