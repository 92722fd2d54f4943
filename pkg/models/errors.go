package models

// ErrorKind is the stable error taxonomy shared by adapters, the manager,
// the coordinator, and the API layer. Values are bit-exact on the wire.
type ErrorKind string

// Error kinds.
const (
	ErrKindNone             ErrorKind = ""
	ErrKindAPIKeyMissing    ErrorKind = "api_key_missing"
	ErrKindAPIKeyInvalid    ErrorKind = "api_key_invalid"
	ErrKindRateLimited      ErrorKind = "rate_limited"
	ErrKindHTTPError        ErrorKind = "http_error"
	ErrKindTimeout          ErrorKind = "timeout"
	ErrKindEmptyResponse    ErrorKind = "empty_response"
	ErrKindValidation       ErrorKind = "validation_error"
	ErrKindModelUnavailable ErrorKind = "model_unavailable"
	ErrKindNoModelAvailable ErrorKind = "no_model_available"
	ErrKindBudgetExceeded   ErrorKind = "budget_exceeded"
	ErrKindSystemOverload   ErrorKind = "system_overload"
	ErrKindCancelled        ErrorKind = "cancelled"
	ErrKindInternal         ErrorKind = "internal_error"
)

// Retryable reports whether the manager may retry a task that failed with
// this kind. Auth, validation, budget, and cancellation failures are final.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrKindRateLimited, ErrKindHTTPError, ErrKindTimeout,
		ErrKindEmptyResponse, ErrKindModelUnavailable, ErrKindSystemOverload:
		return true
	}
	return false
}

// Terminal reports whether the kind represents a terminal task state that
// must not be masked by fallback attempts.
func (k ErrorKind) Terminal() bool {
	switch k {
	case ErrKindAPIKeyMissing, ErrKindValidation, ErrKindNoModelAvailable,
		ErrKindBudgetExceeded, ErrKindCancelled:
		return true
	}
	return false
}

// UserCategory groups error kinds for user-facing messages.
type UserCategory string

// User-facing error categories.
const (
	CategoryUserAction UserCategory = "user_action_required"
	CategoryRetryable  UserCategory = "retryable"
	CategoryTerminal   UserCategory = "terminal"
	CategoryFatal      UserCategory = "fatal"
)

// Category maps an error kind to its user-facing category.
func (k ErrorKind) Category() UserCategory {
	switch k {
	case ErrKindAPIKeyMissing, ErrKindAPIKeyInvalid, ErrKindValidation, ErrKindBudgetExceeded:
		return CategoryUserAction
	case ErrKindRateLimited, ErrKindHTTPError, ErrKindTimeout, ErrKindEmptyResponse,
		ErrKindModelUnavailable, ErrKindSystemOverload:
		return CategoryRetryable
	case ErrKindCancelled:
		return CategoryTerminal
	default:
		return CategoryFatal
	}
}

// UserError is the user-friendly error object surfaced at the API boundary.
// Technical details stay in logs.
type UserError struct {
	Kind       ErrorKind    `json:"kind"`
	Category   UserCategory `json:"category"`
	Message    string       `json:"message"`
	Suggestion string       `json:"suggestion,omitempty"`
	Retryable  bool         `json:"retryable"`
}

// Error makes UserError usable as a plain error at the API boundary.
func (e *UserError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// NewUserError builds a UserError with a canned suggestion per kind.
func NewUserError(kind ErrorKind, message string) *UserError {
	return &UserError{
		Kind:       kind,
		Category:   kind.Category(),
		Message:    message,
		Suggestion: suggestionFor(kind),
		Retryable:  kind.Retryable(),
	}
}

func suggestionFor(kind ErrorKind) string {
	switch kind {
	case ErrKindAPIKeyMissing, ErrKindAPIKeyInvalid:
		return "check the provider API key configuration"
	case ErrKindRateLimited:
		return "wait a moment and retry, or switch provider preference"
	case ErrKindBudgetExceeded:
		return "raise the session budget cap or reduce research depth"
	case ErrKindValidation:
		return "correct the request parameters and resubmit"
	case ErrKindNoModelAvailable:
		return "verify at least one provider passes its health check"
	case ErrKindSystemOverload:
		return "the worker pool is saturated; retry shortly"
	case ErrKindTimeout, ErrKindHTTPError, ErrKindEmptyResponse:
		return "retry; a fallback model will be attempted automatically"
	default:
		return ""
	}
}
