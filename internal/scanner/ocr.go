package scanner

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"
)

// TextDetector returns the raw text found in an image.
type TextDetector interface {
	DetectText(ctx context.Context, img Image) (string, error)
}

// VisionDetector runs Google Cloud Vision document text detection.
type VisionDetector struct {
	client *vision.ImageAnnotatorClient
}

func NewVisionDetector(ctx context.Context, credentialsFile string) (*VisionDetector, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, wrap(EngineOCR, "new client", err)
	}
	return &VisionDetector{client: client}, nil
}

func (v *VisionDetector) DetectText(ctx context.Context, img Image) (string, error) {
	features := []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}}

	if img.MIMEType == "application/pdf" {
		resp, err := v.client.BatchAnnotateFiles(ctx, &visionpb.BatchAnnotateFilesRequest{
			Requests: []*visionpb.AnnotateFileRequest{{
				InputConfig: &visionpb.InputConfig{Content: img.Data, MimeType: img.MIMEType},
				Features:    features,
			}},
		})
		if err != nil {
			return "", err
		}
		var sb strings.Builder
		for _, file := range resp.GetResponses() {
			if file.GetError() != nil {
				return "", fmt.Errorf("vision: %s", file.GetError().GetMessage())
			}
			for _, page := range file.GetResponses() {
				if page.GetFullTextAnnotation() != nil {
					sb.WriteString(page.GetFullTextAnnotation().GetText())
					sb.WriteString("\n")
				}
			}
		}
		return sb.String(), nil
	}

	resp, err := v.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: img.Data},
			Features: features,
		}},
	})
	if err != nil {
		return "", err
	}
	if len(resp.GetResponses()) == 0 {
		return "", nil
	}
	first := resp.GetResponses()[0]
	if first.GetError() != nil {
		return "", fmt.Errorf("vision: %s", first.GetError().GetMessage())
	}
	return first.GetFullTextAnnotation().GetText(), nil
}

func (v *VisionDetector) Close() error {
	return v.client.Close()
}

// OCRExtractor reads slip text and applies line heuristics instead of an LLM.
type OCRExtractor struct {
	detector TextDetector
}

func NewOCRExtractor(detector TextDetector) *OCRExtractor {
	return &OCRExtractor{detector: detector}
}

func (o *OCRExtractor) Name() string { return EngineOCR }

func (o *OCRExtractor) Extract(ctx context.Context, img Image) (*Draft, error) {
	text, err := o.detector.DetectText(ctx, img)
	if err != nil {
		return nil, wrap(EngineOCR, "detect text", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, wrap(EngineOCR, "detect text", ErrEmptyResponse)
	}
	draft := ParseSlipText(text)
	return &draft, nil
}

func (o *OCRExtractor) Close() error {
	if c, ok := o.detector.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

var (
	labelPattern     = regexp.MustCompile(`(?i)^(customer name|customer|client|name|phone|tel|mobile|start date|date|start|days|duration)\s*:\s*(.+)$`)
	qtyFirstPattern  = regexp.MustCompile(`^(\d+)\s*[xX×]\s*(.+)$`)
	qtyLastPattern   = regexp.MustCompile(`^(.+?)\s*[xX×]\s*(\d+)$`)
	isoDatePattern   = regexp.MustCompile(`\b(\d{4}[-/]\d{2}[-/]\d{2})\b`)
	daysPattern      = regexp.MustCompile(`(?i)\b(\d+)\s*days?\b`)
	phonePattern     = regexp.MustCompile(`\+?\d[\d\s().-]{5,}\d`)
	firstIntPattern  = regexp.MustCompile(`\d+`)
	bulletTrimCutset = "-*•· \t"
)

// ParseSlipText turns OCR text into a draft. Recognized lines: labelled fields
// ("Name: ...", "Phone: ...", "Date: ...", "Days: ..."), item lines in the
// forms "2 x Speaker" and "Speaker x2", bare ISO dates, "N days" and phone numbers.
func ParseSlipText(text string) Draft {
	var d Draft
	for _, line := range strings.Split(text, "\n") {
		line = strings.Trim(strings.TrimSpace(line), bulletTrimCutset)
		if line == "" {
			continue
		}

		if m := labelPattern.FindStringSubmatch(line); m != nil {
			applyLabel(&d, strings.ToLower(m[1]), strings.TrimSpace(m[2]))
			continue
		}
		if m := qtyFirstPattern.FindStringSubmatch(line); m != nil {
			d.Items = append(d.Items, DraftItem{Name: m[2], Quantity: atoi(m[1])})
			continue
		}
		if m := qtyLastPattern.FindStringSubmatch(line); m != nil && !isoDatePattern.MatchString(line) {
			d.Items = append(d.Items, DraftItem{Name: m[1], Quantity: atoi(m[2])})
			continue
		}
		if m := isoDatePattern.FindStringSubmatch(line); m != nil {
			if d.RentalStartDate == "" {
				d.RentalStartDate = NormalizeDate(strings.ReplaceAll(m[1], "/", "-"))
			}
			continue
		}
		if m := daysPattern.FindStringSubmatch(line); m != nil {
			if d.RentalDays == 0 {
				d.RentalDays = atoi(m[1])
			}
			continue
		}
		if d.CustomerPhone == "" {
			if m := phonePattern.FindString(line); m != "" {
				d.CustomerPhone = strings.TrimSpace(m)
			}
		}
	}
	return d.Normalize()
}

func applyLabel(d *Draft, label, value string) {
	switch label {
	case "customer name", "customer", "client", "name":
		if d.CustomerName == "" {
			d.CustomerName = value
		}
	case "phone", "tel", "mobile":
		if d.CustomerPhone == "" {
			d.CustomerPhone = value
		}
	case "start date", "date", "start":
		if d.RentalStartDate == "" {
			d.RentalStartDate = NormalizeDate(strings.ReplaceAll(value, "/", "-"))
		}
	case "days", "duration":
		if d.RentalDays == 0 {
			d.RentalDays = atoi(firstIntPattern.FindString(value))
		}
	}
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
