package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error kinds. Match with errors.Is.
var (
	ErrValidation                = errors.New("validation failed")
	ErrConnectionNotFound        = errors.New("connection not found")
	ErrAuthentication            = errors.New("authentication failed")
	ErrNotFound                  = errors.New("resource not found")
	ErrRateLimitExceeded         = errors.New("rate limit exceeded")
	ErrClientStatus              = errors.New("request rejected")
	ErrNetwork                   = errors.New("network error")
	ErrTimeout                   = errors.New("request timed out")
	ErrServerStatus              = errors.New("server error")
	ErrRequestFailedAfterRetries = errors.New("request failed after retries")
)

// ValidationError reports a malformed connection definition.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// RequestError describes a failed request against a connection.
type RequestError struct {
	Kind         error
	ConnectionID string
	Method       string
	Endpoint     string
	StatusCode   int
	Attempts     int
	RetryAfter   time.Duration
	// Provider is set when a 429 came from the upstream rather than the local limiter.
	Provider bool
	Err      error
}

func (e *RequestError) Error() string {
	var sb strings.Builder
	if e.Kind != nil {
		sb.WriteString(e.Kind.Error())
	} else {
		sb.WriteString("request error")
	}
	if e.Method != "" || e.Endpoint != "" {
		sb.WriteString(fmt.Sprintf(" (%s %s)", e.Method, e.Endpoint))
	}
	if e.StatusCode > 0 {
		sb.WriteString(fmt.Sprintf(": status %d", e.StatusCode))
	}
	if e.Attempts > 0 && errors.Is(e.Kind, ErrRequestFailedAfterRetries) {
		sb.WriteString(fmt.Sprintf(" after %d attempts", e.Attempts))
	}
	if e.RetryAfter > 0 {
		sb.WriteString(fmt.Sprintf(", retry in %s", e.RetryAfter.Round(time.Second)))
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *RequestError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Retryable reports whether another attempt could change the outcome.
func (e *RequestError) Retryable() bool {
	if e == nil {
		return false
	}
	return errors.Is(e.Kind, ErrNetwork) || errors.Is(e.Kind, ErrTimeout) || errors.Is(e.Kind, ErrServerStatus)
}

// IsRetryable reports whether err is a retryable request failure.
func IsRetryable(err error) bool {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Retryable()
	}
	return false
}
