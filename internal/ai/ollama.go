package ai

import (
	"context"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/nhle/mailai/internal/model"
)

const defaultOllamaURL = "http://localhost:11434"

// Ollama queries a local Ollama server. It needs no credential; it is
// available when the server answers.
type Ollama struct {
	model   string
	baseURL string
	client  *http.Client
}

// NewOllama creates the Ollama provider.
func NewOllama(cfg model.ProviderConfig, client *http.Client) *Ollama {
	o := &Ollama{
		model:   cfg.Model,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		client:  client,
	}
	if o.model == "" {
		o.model = "gpt-oss:20b"
	}
	if o.baseURL == "" {
		o.baseURL = defaultOllamaURL
	}
	return o
}

func (o *Ollama) Name() string         { return model.ProviderOllama }
func (o *Ollama) Label() string        { return "Ollama (local)" }
func (o *Ollama) DefaultModel() string { return o.model }

type ollamaTags struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Models lists the models installed on the server.
func (o *Ollama) Models(ctx context.Context) ([]string, error) {
	var tags ollamaTags
	if err := doJSON(ctx, o.client, o.Name(), http.MethodGet, o.baseURL+"/api/tags",
		nil, nil, &tags, nil); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (o *Ollama) Available(ctx context.Context) error {
	_, err := o.Models(ctx)
	return err
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (o *Ollama) Query(ctx context.Context, prompt, modelName string) (string, error) {
	var resp ollamaResponse
	err := doJSON(ctx, o.client, o.Name(), http.MethodPost, o.baseURL+"/api/generate",
		nil,
		ollamaRequest{Model: modelName, Prompt: prompt},
		&resp,
		func(body []byte) string {
			var e struct {
				Error string `json:"error"`
			}
			if json.Unmarshal(body, &e) == nil {
				return e.Error
			}
			return ""
		},
	)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(resp.Response)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
