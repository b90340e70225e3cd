package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentflow-system/internal/apperr"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func TestParseDraft(t *testing.T) {
	text := "```json\n" + `{
		"customer_name": " Maria Lopez ",
		"customer_phone": 5550101,
		"rental_start_date": "2024-06-01",
		"rental_days": "3",
		"items": [
			{"name": "JBL Speaker", "quantity": 2, "price": 99},
			{"name": "  ", "quantity": 1},
			{"name": "Mic stand", "quantity": "0"}
		]
	}` + "\n```"

	d, err := ParseDraft(text)
	require.NoError(t, err)
	assert.Equal(t, "Maria Lopez", d.CustomerName)
	assert.Equal(t, "5550101", d.CustomerPhone)
	assert.Equal(t, "2024-06-01", d.RentalStartDate)
	assert.Equal(t, 3, d.RentalDays)
	assert.Equal(t, []DraftItem{
		{Name: "JBL Speaker", Quantity: 2},
		{Name: "Mic stand", Quantity: 1},
	}, d.Items)
}

func TestParseDraftAlternateKeysAndDefaults(t *testing.T) {
	d, err := ParseDraft(`Here you go: {"customer": "Ben", "phone": "555-0199", "start_date": "June 1, 2024",
		"equipment": [{"equipment": "Fog machine", "qty": 1.7}]}`)
	require.NoError(t, err)
	assert.Equal(t, "Ben", d.CustomerName)
	assert.Equal(t, "555-0199", d.CustomerPhone)
	assert.Equal(t, "2024-06-01", d.RentalStartDate)
	assert.Equal(t, 1, d.RentalDays)
	assert.Equal(t, []DraftItem{{Name: "Fog machine", Quantity: 1}}, d.Items)
}

func TestParseDraftOutOfRangeCounts(t *testing.T) {
	d, err := ParseDraft(`{"customer_name": "Ben", "rental_days": 99999999999,
		"items": [{"name": "Speaker", "quantity": 18446744073709551617}, {"name": "Mixer", "quantity": "3"}]}`)
	require.NoError(t, err)
	assert.Equal(t, 1, d.RentalDays)
	assert.Equal(t, []DraftItem{{Name: "Speaker", Quantity: 1}, {Name: "Mixer", Quantity: 3}}, d.Items)
}

func TestParseDraftRejectsNonJSON(t *testing.T) {
	_, err := ParseDraft("sorry, I cannot read this image")
	assert.Error(t, err)

	_, err = ParseDraft(`{"items": [}`)
	assert.Error(t, err)
}

func TestNormalizeDate(t *testing.T) {
	assert.Equal(t, "2024-06-01", NormalizeDate("2024-06-01"))
	assert.Equal(t, "2024-06-01", NormalizeDate("2024/06/01"))
	assert.Equal(t, "2024-06-01", NormalizeDate("1 Jun 2024"))
	assert.Equal(t, "2024-06-01", NormalizeDate("2024-06-01T09:30:00Z"))
	assert.Equal(t, "", NormalizeDate("next tuesday"))
	assert.Equal(t, "", NormalizeDate(""))
}

func TestDraftNormalize(t *testing.T) {
	d := Draft{
		CustomerName:    "  Ana ",
		RentalStartDate: "garbage",
		RentalDays:      0,
		Items:           []DraftItem{{Name: "Mixer", Quantity: 0}, {Name: ""}},
	}.Normalize()

	assert.Equal(t, "Ana", d.CustomerName)
	assert.Equal(t, "", d.RentalStartDate)
	assert.Equal(t, 1, d.RentalDays)
	assert.Equal(t, []DraftItem{{Name: "Mixer", Quantity: 1}}, d.Items)
}

func TestValidateImage(t *testing.T) {
	img := Image{Data: pngHeader}
	require.NoError(t, ValidateImage(&img))
	assert.Equal(t, "image/png", img.MIMEType)

	pdf := Image{Data: []byte("%PDF-1.4 ..."), MIMEType: "application/pdf"}
	require.NoError(t, ValidateImage(&pdf))

	withParams := Image{Data: pngHeader, MIMEType: "image/jpeg; q=0.9"}
	require.NoError(t, ValidateImage(&withParams))
	assert.Equal(t, "image/jpeg", withParams.MIMEType)

	empty := Image{}
	err := ValidateImage(&empty)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	text := Image{Data: []byte("hello"), MIMEType: "text/plain"}
	err = ValidateImage(&text)
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Equal(t, "image", apperr.Fields(err)[0].Field)

	big := Image{Data: make([]byte, MaxImageBytes+1), MIMEType: "image/png"}
	assert.ErrorIs(t, ValidateImage(&big), apperr.ErrInvalidInput)
}

func TestParseSlipText(t *testing.T) {
	text := `RENTAL SLIP
Customer: Maria Lopez
Tel: +1 555 010 1234
Date: 2024/06/01
Duration: 3 days
- 2 x JBL Speaker
- Shure SM58 x3
Fog machine x 1
Total 1500`

	d := ParseSlipText(text)
	assert.Equal(t, "Maria Lopez", d.CustomerName)
	assert.Equal(t, "+1 555 010 1234", d.CustomerPhone)
	assert.Equal(t, "2024-06-01", d.RentalStartDate)
	assert.Equal(t, 3, d.RentalDays)
	assert.Equal(t, []DraftItem{
		{Name: "JBL Speaker", Quantity: 2},
		{Name: "Shure SM58", Quantity: 3},
		{Name: "Fog machine", Quantity: 1},
	}, d.Items)
}

func TestParseSlipTextUnlabelled(t *testing.T) {
	d := ParseSlipText("555-0101\n2024-07-15\n5 days\n1 x Mixer\n")
	assert.Equal(t, "555-0101", d.CustomerPhone)
	assert.Equal(t, "2024-07-15", d.RentalStartDate)
	assert.Equal(t, 5, d.RentalDays)
	assert.Equal(t, []DraftItem{{Name: "Mixer", Quantity: 1}}, d.Items)
}

type fakeDetector struct {
	text string
	err  error
}

func (f fakeDetector) DetectText(context.Context, Image) (string, error) {
	return f.text, f.err
}

func TestOCRExtractor(t *testing.T) {
	ex := NewOCRExtractor(fakeDetector{text: "Name: Ben\n2 x Speaker Stand"})
	d, err := ex.Extract(context.Background(), Image{Data: pngHeader, MIMEType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, "Ben", d.CustomerName)
	assert.Equal(t, []DraftItem{{Name: "Speaker Stand", Quantity: 2}}, d.Items)

	_, err = NewOCRExtractor(fakeDetector{text: "  "}).Extract(context.Background(), Image{})
	assert.ErrorIs(t, err, ErrEmptyResponse)

	_, err = NewOCRExtractor(fakeDetector{err: errors.New("quota")}).Extract(context.Background(), Image{})
	var se *ScanError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, EngineOCR, se.Engine)
	assert.Equal(t, "detect text", se.Op)
}

func openAIServer(t *testing.T, status int, content string, seen *[]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		if seen != nil {
			*seen = body
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error": {"message": "upstream failure", "type": "server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]interface{}{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIExtractor(t *testing.T) {
	var body []byte
	srv := openAIServer(t, http.StatusOK, `{"customer_name":"Cid","rental_days":2,"items":[{"name":"Mixer","quantity":1}]}`, &body)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	ex := NewOpenAIExtractorWithConfig(cfg, "gpt-4o-mini")

	d, err := ex.Extract(context.Background(), Image{Data: pngHeader, MIMEType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, "Cid", d.CustomerName)
	assert.Equal(t, 2, d.RentalDays)
	assert.Equal(t, []DraftItem{{Name: "Mixer", Quantity: 1}}, d.Items)

	assert.True(t, bytes.Contains(body, []byte(`"json_object"`)))
	assert.True(t, bytes.Contains(body, []byte(`data:image/png;base64,`)))
}

func TestOpenAIExtractorFailure(t *testing.T) {
	srv := openAIServer(t, http.StatusInternalServerError, "", nil)
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"

	_, err := NewOpenAIExtractorWithConfig(cfg, "gpt-4o-mini").Extract(context.Background(), Image{Data: pngHeader, MIMEType: "image/png"})
	var se *ScanError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, EngineOpenAI, se.Engine)
}
