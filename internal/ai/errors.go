package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"github.com/nhle/mailai/internal/failure"
)

var (
	// ErrMissingKey is returned by Available when no API key is set.
	ErrMissingKey = errors.New("no API key configured")

	// ErrEmptyResponse is returned when a provider answers with no text.
	ErrEmptyResponse = errors.New("empty response")

	// ErrUnknownProvider marks a requested name with no registered
	// provider.
	ErrUnknownProvider = errors.New("unknown provider")
)

// Class is the coarse reason a provider attempt failed.
type Class string

const (
	ClassTimeout       Class = "timeout"
	ClassRateLimit     Class = "rate-limit"
	ClassAuth          Class = "auth"
	ClassTransport     Class = "transport"
	ClassEmptyResponse Class = "empty-response"
	ClassCircuitOpen   Class = "circuit-open"
	ClassUnavailable   Class = "unavailable"
	ClassProvider      Class = "provider-error"
)

// StatusError is a non-2xx response from a provider's HTTP API.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error (%d): %s", e.Provider, e.StatusCode, e.Message)
}

// statusCode digs the HTTP status out of any provider error.
func statusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// Classify maps a provider error to its failure class.
func Classify(err error) Class {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return ClassCircuitOpen
	case errors.Is(err, ErrEmptyResponse):
		return ClassEmptyResponse
	case errors.Is(err, ErrMissingKey), errors.Is(err, ErrUnknownProvider):
		return ClassUnavailable
	}

	switch code := statusCode(err); {
	case code == http.StatusTooManyRequests:
		return ClassRateLimit
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ClassAuth
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return ClassTimeout
	case code != 0:
		return ClassProvider
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ClassTimeout
		}
		return ClassTransport
	}
	return ClassTransport
}

// Attempt records one candidate considered during a query.
type Attempt struct {
	Provider string
	Model    string
	Class    Class
	Err      error
}

func (a Attempt) String() string {
	if a.Err == nil {
		return fmt.Sprintf("%s: %s", a.Provider, a.Class)
	}
	return fmt.Sprintf("%s: %s (%v)", a.Provider, a.Class, a.Err)
}

// QueryError is returned when no candidate produced an answer. It names
// every provider that was considered.
type QueryError struct {
	Attempts []Attempt
}

func (e *QueryError) Error() string {
	if len(e.Attempts) == 0 {
		return "no AI provider was tried"
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.String()
	}
	return "all AI providers failed: " + strings.Join(parts, "; ")
}

// Kind classifies the aggregate as a provider query failure.
func (e *QueryError) Kind() failure.Kind {
	return failure.KindProviderQuery
}

// Providers lists the names in attempt order.
func (e *QueryError) Providers() []string {
	out := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		out[i] = a.Provider
	}
	return out
}
