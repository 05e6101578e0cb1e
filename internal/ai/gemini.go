package ai

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"github.com/nhle/mailai/internal/model"
)

const defaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta"

// Gemini queries Google's generateContent endpoint.
type Gemini struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewGemini creates the Gemini provider.
func NewGemini(cfg model.ProviderConfig, client *http.Client) *Gemini {
	g := &Gemini{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		client:  client,
	}
	if g.model == "" {
		g.model = "gemini-1.5-flash"
	}
	if g.baseURL == "" {
		g.baseURL = defaultGeminiURL
	}
	return g
}

func (g *Gemini) Name() string         { return model.ProviderGemini }
func (g *Gemini) Label() string        { return "Google Gemini" }
func (g *Gemini) DefaultModel() string { return g.model }

func (g *Gemini) Available(context.Context) error {
	if g.apiKey == "" {
		return ErrMissingKey
	}
	return nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (g *Gemini) Query(ctx context.Context, prompt, modelName string) (string, error) {
	endpoint := g.baseURL + "/models/" + url.PathEscape(modelName) + ":generateContent"

	var resp geminiResponse
	err := doJSON(ctx, g.client, g.Name(), http.MethodPost, endpoint,
		map[string]string{"x-goog-api-key": g.apiKey},
		geminiRequest{Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}}},
		&resp,
		func(body []byte) string {
			var e geminiErrorResponse
			if json.Unmarshal(body, &e) == nil {
				return e.Error.Message
			}
			return ""
		},
	)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, c := range resp.Candidates {
		for _, p := range c.Content.Parts {
			sb.WriteString(p.Text)
		}
		if sb.Len() > 0 {
			break
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
