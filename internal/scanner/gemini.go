package scanner

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type GeminiExtractor struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiExtractor(ctx context.Context, apiKey, modelName string) (*GeminiExtractor, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, wrap(EngineGemini, "new client", err)
	}
	model := client.GenerativeModel(modelName)
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0.1)
	return &GeminiExtractor{client: client, model: model}, nil
}

func (g *GeminiExtractor) Name() string { return EngineGemini }

func (g *GeminiExtractor) Extract(ctx context.Context, img Image) (*Draft, error) {
	resp, err := g.model.GenerateContent(ctx,
		genai.Text(extractionPrompt),
		genai.Blob{MIMEType: img.MIMEType, Data: img.Data},
	)
	if err != nil {
		return nil, wrap(EngineGemini, "generate", err)
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		if sb.Len() > 0 {
			break
		}
	}
	if sb.Len() == 0 {
		return nil, wrap(EngineGemini, "generate", ErrEmptyResponse)
	}

	draft, err := ParseDraft(sb.String())
	if err != nil {
		return nil, wrap(EngineGemini, "parse", err)
	}
	return draft, nil
}

func (g *GeminiExtractor) Close() error {
	return g.client.Close()
}
