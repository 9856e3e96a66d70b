package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultMistralBaseURL is Mistral's OpenAI-compatible endpoint
	DefaultMistralBaseURL = "https://api.mistral.ai/v1"
	visionMaxTokens       = 150
)

// MistralClient describes images through Mistral's chat completions API
type MistralClient struct {
	client *openai.Client
	model  string
}

// NewMistralClient creates a new Mistral vision client
func NewMistralClient(apiKey, model, baseURL string) (*MistralClient, error) {
	if apiKey == "" {
		return nil, ErrVisionUnavailable
	}
	if model == "" {
		return nil, errors.New("vision model is required")
	}
	if baseURL == "" {
		baseURL = DefaultMistralBaseURL
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimSuffix(baseURL, "/")

	return &MistralClient{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// DescribeImages sends the prompt and every image in one message
func (m *MistralClient) DescribeImages(ctx context.Context, urls []string, prompt string) (string, error) {
	if len(urls) == 0 {
		return "", NewFatalError(errors.New("no image URLs to describe"))
	}

	parts := make([]openai.ChatMessagePart, 0, len(urls)+1)
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: prompt,
	})
	for _, url := range urls {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: url},
		})
	}

	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     m.model,
		MaxTokens: visionMaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
	})
	if err != nil {
		return "", classifyMistralError(err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", NewFatalError(fmt.Errorf("mistral: %w", ErrEmptyResponse))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func classifyMistralError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus("mistral", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus("mistral", reqErr.HTTPStatusCode, reqErr.Error())
	}
	return classifyTransport("mistral", err)
}
