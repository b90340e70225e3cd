package scanner

import (
	"context"
	"encoding/base64"

	"github.com/sashabaranov/go-openai"
)

type OpenAIExtractor struct {
	client *openai.Client
	model  string
}

func NewOpenAIExtractor(apiKey, model string) *OpenAIExtractor {
	return NewOpenAIExtractorWithConfig(openai.DefaultConfig(apiKey), model)
}

// NewOpenAIExtractorWithConfig allows pointing the client at another base URL.
func NewOpenAIExtractorWithConfig(cfg openai.ClientConfig, model string) *OpenAIExtractor {
	return &OpenAIExtractor{client: openai.NewClientWithConfig(cfg), model: model}
}

func (o *OpenAIExtractor) Name() string { return EngineOpenAI }

func (o *OpenAIExtractor) Extract(ctx context.Context, img Image) (*Draft, error) {
	dataURL := "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: 0.1,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: extractionPrompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: "Extract the rental slip."},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
		MaxTokens: 1000,
	})
	if err != nil {
		return nil, wrap(EngineOpenAI, "chat completion", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, wrap(EngineOpenAI, "chat completion", ErrEmptyResponse)
	}

	draft, err := ParseDraft(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, wrap(EngineOpenAI, "parse", err)
	}
	return draft, nil
}
