package ai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
)

// maxResponseBytes bounds a provider response body.
const maxResponseBytes = 8 << 20

// errorMessage extracts a human readable message from an error body.
type errorMessage func(body []byte) string

// doJSON sends body (if non-nil) as JSON and decodes a 2xx response into
// out. Non-2xx responses become a *StatusError.
func doJSON(
	ctx context.Context,
	client *http.Client,
	provider, method, url string,
	headers map[string]string,
	body, out any,
	extract errorMessage,
) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", provider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := ""
		if extract != nil {
			msg = extract(respBody)
		}
		if msg == "" {
			msg = string(respBody)
		}
		return &StatusError{Provider: provider, StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
