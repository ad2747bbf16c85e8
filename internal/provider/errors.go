package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"github.com/ppiankov/clausewise/internal/model"
)

// ErrMalformed marks provider output that could not be used
var ErrMalformed = errors.New("malformed provider output")

// StatusError is a non-2xx response from a provider API
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error (%d)", e.StatusCode)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

func malformedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// Wrap converts err into a ProviderError with a classified kind.
// Errors that already are ProviderErrors pass through unchanged.
func Wrap(provider string, capability model.Capability, err error) error {
	if err == nil {
		return nil
	}
	var pe *model.ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &model.ProviderError{
		Provider:   provider,
		Capability: capability,
		Kind:       Classify(err),
		Err:        err,
	}
}

// Classify maps an error to a provider error kind
func Classify(err error) model.ProviderErrorKind {
	var pe *model.ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return model.ProviderTimeout
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return model.ProviderUnavailable
	case errors.Is(err, ErrMalformed):
		return model.ProviderMalformed
	}

	if code := statusCode(err); code != 0 {
		switch {
		case code == http.StatusTooManyRequests:
			return model.ProviderQuota
		case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
			return model.ProviderTimeout
		case code >= 500:
			return model.ProviderUnavailable
		}
		return model.ProviderFailed
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return model.ProviderMalformed
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.ProviderTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		strings.Contains(strings.ToLower(err.Error()), "connection refused") {
		return model.ProviderUnavailable
	}

	return model.ProviderFailed
}

// statusCode extracts an HTTP status code from provider client errors
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
