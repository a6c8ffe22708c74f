package llmtypes

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a provider failure.
type ErrorKind string

const (
	ErrorKindAuth      ErrorKind = "auth"
	ErrorKindRateLimit ErrorKind = "rate_limit"
	ErrorKindMalformed ErrorKind = "malformed"
	ErrorKindServer    ErrorKind = "server"
	ErrorKindTransport ErrorKind = "transport"
)

// ErrConfiguration matches every *ConfigurationError via errors.Is.
var ErrConfiguration = errors.New("configuration error")

// ProviderError is a structured error from an LLM provider.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s error (%d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsAuth returns true for 401/403 authentication errors.
func (e *ProviderError) IsAuth() bool { return e.Kind == ErrorKindAuth }

// IsRateLimit returns true for 429 quota/rate-limit errors.
func (e *ProviderError) IsRateLimit() bool { return e.Kind == ErrorKindRateLimit }

// IsRetryable returns true if the error is worth retrying.
func (e *ProviderError) IsRetryable() bool {
	return e.Kind == ErrorKindRateLimit || e.Kind == ErrorKindServer || e.Kind == ErrorKindTransport
}

// KindForStatus maps an HTTP status code to an error kind.
// Zero means no response was received.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == 0:
		return ErrorKindTransport
	case status == 401 || status == 403:
		return ErrorKindAuth
	case status == 429:
		return ErrorKindRateLimit
	case status >= 500:
		return ErrorKindServer
	default:
		return ErrorKindMalformed
	}
}

// NewProviderError wraps err for provider, classifying it by status code.
// Context cancellation is returned unchanged so callers can match it directly.
func NewProviderError(provider string, status int, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Provider: provider, Kind: KindForStatus(status), StatusCode: status, Err: err}
}

// MalformedResponse reports a response that could not be interpreted.
func MalformedResponse(provider string, format string, args ...any) error {
	return &ProviderError{Provider: provider, Kind: ErrorKindMalformed, Err: fmt.Errorf(format, args...)}
}

// AsProviderError extracts a *ProviderError from err.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// ConfigurationError reports missing or invalid settings. It is fatal.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// MissingSetting builds a ConfigurationError for a required value that is absent.
func MissingSetting(field, hint string) error {
	return &ConfigurationError{Field: field, Reason: "required but not set (" + hint + ")"}
}
