package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrTransport           = errors.New("transport error")
	ErrTimeout             = errors.New("timeout")
	ErrProtocol            = errors.New("protocol error")
	ErrParse               = errors.New("parse error")
	ErrAuthorizationDenied = errors.New("authorization denied")
	ErrValidation          = errors.New("validation error")
	ErrConfiguration       = errors.New("configuration error")
	ErrNotFound            = errors.New("not found")
)

// StatusError carries the HTTP status of a non-2xx response. It unwraps to
// ErrProtocol so callers can classify it with errors.Is.
type StatusError struct {
	Code   int
	Reason string
}

func (e *StatusError) Error() string {
	reason := strings.TrimSpace(e.Reason)
	if reason == "" {
		reason = http.StatusText(e.Code)
	}
	if reason == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, reason)
}

func (e *StatusError) Unwrap() error { return ErrProtocol }

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransport
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify returns a short reason suitable for the "operation failed" text
// shown to users.
func Classify(err error) string {
	var status *StatusError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthorizationDenied):
		return "no permission"
	case errors.As(err, &status):
		return status.Error()
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	case errors.Is(err, ErrParse):
		return "unreadable response"
	case errors.Is(err, ErrNotFound):
		return "not found"
	case errors.Is(err, ErrValidation):
		return "invalid input"
	case errors.Is(err, ErrConfiguration):
		return "configuration problem"
	default:
		return "network unavailable"
	}
}

// Retryable reports whether a consumer may reasonably reissue the request.
// Nothing inside the pipeline retries on its own.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthorizationDenied) || errors.Is(err, ErrParse) || errors.Is(err, ErrValidation) {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code == http.StatusTooManyRequests || status.Code >= 500
	}
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrTimeout)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
