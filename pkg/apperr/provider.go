package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ProviderError is returned by the embedding and generation clients.
// StatusCode is zero for transport failures.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider error (status %d): %s", e.Provider, e.StatusCode, truncate(e.Body, 300))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s provider error: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s provider error", e.Provider)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Transient reports whether retrying the same call may succeed.
func (e *ProviderError) Transient() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	case 0:
		if e.Err == nil {
			return false
		}
		if errors.Is(e.Err, context.Canceled) || errors.Is(e.Err, context.DeadlineExceeded) {
			return false
		}
		var netErr net.Error
		if errors.As(e.Err, &netErr) {
			return true
		}
		var opErr *net.OpError
		return errors.As(e.Err, &opErr)
	}
	return e.StatusCode >= 500
}

// Misconfigured reports a rejection no input could avoid: bad credentials,
// missing permission or an unknown model or endpoint.
func (e *ProviderError) Misconfigured() bool {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// NewStatusError builds a ProviderError from a non-2xx response.
func NewStatusError(provider string, res *http.Response, body []byte) *ProviderError {
	pe := &ProviderError{
		Provider:   provider,
		StatusCode: res.StatusCode,
		Body:       string(body),
	}
	if ra := res.Header.Get("Retry-After"); ra != "" {
		if d, err := time.ParseDuration(ra + "s"); err == nil {
			pe.RetryAfter = d
		}
	}
	return pe
}

// NewTransportError wraps a failure that happened before a response arrived.
func NewTransportError(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Err: err}
}

// IsTransient reports whether err is a retryable provider failure.
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient()
	}
	return false
}

// IsMisconfigured reports whether err is a provider rejecting every call.
func IsMisconfigured(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Misconfigured()
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
