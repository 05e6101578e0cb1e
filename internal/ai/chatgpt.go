package ai

import (
	"context"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/nhle/mailai/internal/model"
)

// ChatGPT queries the OpenAI chat completions API, or any compatible
// server when a base URL is configured.
type ChatGPT struct {
	client    *openai.Client
	apiKey    string
	model     string
	maxTokens int
}

// NewChatGPT creates the OpenAI provider.
func NewChatGPT(cfg model.ProviderConfig, httpClient *http.Client) *ChatGPT {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}

	m := cfg.Model
	if m == "" {
		m = "gpt-5-mini"
	}

	return &ChatGPT{
		client:    openai.NewClientWithConfig(clientCfg),
		apiKey:    cfg.APIKey,
		model:     m,
		maxTokens: cfg.MaxTokens,
	}
}

func (c *ChatGPT) Name() string         { return model.ProviderChatGPT }
func (c *ChatGPT) Label() string        { return "ChatGPT (OpenAI)" }
func (c *ChatGPT) DefaultModel() string { return c.model }

func (c *ChatGPT) Available(context.Context) error {
	if c.apiKey == "" {
		return ErrMissingKey
	}
	return nil
}

func (c *ChatGPT) Query(ctx context.Context, prompt, modelName string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxCompletionTokens: c.maxTokens,
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
