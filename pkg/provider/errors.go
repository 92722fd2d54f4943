package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/finsight-ai/finsight/pkg/models"
)

// Error is the typed failure every adapter returns: a taxonomy kind plus the
// provider/model pair that produced it.
type Error struct {
	Kind     models.ErrorKind
	Provider models.Provider
	Model    string
	Err      error
}

// NewError wraps an underlying failure with its taxonomy kind.
func NewError(kind models.ErrorKind, provider models.Provider, model string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Model: model, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s/%s: %s", e.Provider, e.Model, e.Kind)
	}
	return fmt.Sprintf("%s/%s: %s: %v", e.Provider, e.Model, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the taxonomy kind from any error. Context errors map to
// timeout/cancelled; everything untyped is internal_error.
func KindOf(err error) models.ErrorKind {
	if err == nil {
		return models.ErrKindNone
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.ErrKindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return models.ErrKindCancelled
	}
	return models.ErrKindInternal
}

// KindFromHTTPStatus maps a provider HTTP status to the taxonomy.
func KindFromHTTPStatus(status int) models.ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return models.ErrKindAPIKeyInvalid
	case status == http.StatusTooManyRequests:
		return models.ErrKindRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return models.ErrKindTimeout
	case status == http.StatusNotFound:
		return models.ErrKindModelUnavailable
	default:
		return models.ErrKindHTTPError
	}
}

// TranslateContextErr maps context termination into a typed adapter error,
// or nil when err is not a context error.
func TranslateContextErr(provider models.Provider, model string, err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(models.ErrKindTimeout, provider, model, err)
	case errors.Is(err, context.Canceled):
		return NewError(models.ErrKindCancelled, provider, model, err)
	}
	return nil
}
