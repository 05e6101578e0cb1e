// Package ai queries AI backends with ordered fallback.
package ai

import (
	"context"
	"net/http"

	"github.com/nhle/mailai/internal/model"
)

// Provider is one AI backend.
type Provider interface {
	// Name is the identifier used in configuration, e.g. "chatgpt".
	Name() string

	// Label is the display name shown in replies.
	Label() string

	// DefaultModel is used when the caller does not override the model.
	DefaultModel() string

	// Available is a cheap readiness check: a credential is present or
	// a local server answers. It returns nil when the provider can be
	// queried.
	Available(ctx context.Context) error

	// Query sends prompt and returns the response text.
	Query(ctx context.Context, prompt, model string) (string, error)
}

// NewProviders builds every supported provider from configuration.
func NewProviders(cfg model.ProvidersConfig, client *http.Client) []Provider {
	if client == nil {
		client = &http.Client{}
	}
	return []Provider{
		NewChatGPT(cfg.ChatGPT, client),
		NewGemini(cfg.Gemini, client),
		NewClaude(cfg.Claude, client),
		NewOllama(cfg.Ollama, client),
	}
}
