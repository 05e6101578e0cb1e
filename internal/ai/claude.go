package ai

import (
	"context"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/nhle/mailai/internal/model"
)

const (
	defaultClaudeURL       = "https://api.anthropic.com/v1"
	defaultClaudeModel     = "claude-sonnet-4-5-20250929"
	defaultClaudeMaxTokens = 2048
	anthropicVersion       = "2023-06-01"
)

// Claude queries the Anthropic Messages API.
type Claude struct {
	apiKey    string
	model     string
	maxTokens int
	baseURL   string
	client    *http.Client
}

// NewClaude creates the Claude provider.
func NewClaude(cfg model.ProviderConfig, client *http.Client) *Claude {
	c := &Claude{
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		client:    client,
	}
	if c.model == "" {
		c.model = defaultClaudeModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultClaudeMaxTokens
	}
	if c.baseURL == "" {
		c.baseURL = defaultClaudeURL
	}
	return c
}

func (c *Claude) Name() string         { return model.ProviderClaude }
func (c *Claude) Label() string        { return "Anthropic Claude" }
func (c *Claude) DefaultModel() string { return c.model }

func (c *Claude) Available(context.Context) error {
	if c.apiKey == "" {
		return ErrMissingKey
	}
	return nil
}

type apiContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type apiMessage struct {
	Role    string            `json:"role"`
	Content []apiContentBlock `json:"content"`
}

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	Messages  []apiMessage `json:"messages"`
}

type apiResponse struct {
	Content    []apiContentBlock `json:"content"`
	StopReason string            `json:"stop_reason"`
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Query makes a single request to the Claude Messages API.
func (c *Claude) Query(ctx context.Context, prompt, modelName string) (string, error) {
	reqBody := apiRequest{
		Model:     modelName,
		MaxTokens: c.maxTokens,
		Messages: []apiMessage{{
			Role:    "user",
			Content: []apiContentBlock{{Type: "text", Text: prompt}},
		}},
	}

	var resp apiResponse
	err := doJSON(ctx, c.client, c.Name(), http.MethodPost, c.baseURL+"/messages",
		map[string]string{
			"x-api-key":         c.apiKey,
			"anthropic-version": anthropicVersion,
		},
		reqBody, &resp,
		func(body []byte) string {
			var apiErr apiErrorResponse
			if json.Unmarshal(body, &apiErr) == nil {
				return apiErr.Error.Message
			}
			return ""
		},
	)
	if err != nil {
		return "", err
	}

	var textParts []string
	for _, block := range resp.Content {
		if block.Type == "text" {
			textParts = append(textParts, block.Text)
		}
	}

	text := strings.TrimSpace(strings.Join(textParts, ""))
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
