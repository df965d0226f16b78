package models

import "fmt"

// Error codes surfaced on the transport boundary (spec §6).
const (
	ErrCodeInvalidURL          = "INVALID_URL"
	ErrCodeSSRFBlocked         = "SSRF_BLOCKED"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeTierBudgetExceeded  = "TIER_BUDGET_EXCEEDED"
	ErrCodeAllTiersFailed      = "ALL_TIERS_FAILED"
	ErrCodeValidationFailed    = "VALIDATION_FAILED"
	ErrCodeAnomalyUnrecoverable = "ANOMALY_UNRECOVERABLE"
	ErrCodeRendererUnavailable = "RENDERER_UNAVAILABLE"
	ErrCodeCancelled           = "CANCELLED"
	ErrCodeInvalidInput        = "INVALID_INPUT"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error shape returned at the transport boundary.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CoreError is the internal error type threaded through every pipeline layer.
// Only the transport shim (api/, cmd/browsecore-mcp) ever maps it to an
// HTTP status or a JSON-RPC error; everywhere else it is an explicit return
// value, never raised as a panic.
type CoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CoreError) Unwrap() error { return e.Err }

// NewCoreError constructs a CoreError wrapping an optional cause.
func NewCoreError(code, message string, err error) *CoreError {
	return &CoreError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to its transport-facing shape.
func (e *CoreError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// AsCoreError unwraps err into a *CoreError, wrapping it as an internal
// error if it isn't one already.
func AsCoreError(err error) *CoreError {
	if ce, ok := err.(*CoreError); ok {
		return ce
	}
	return NewCoreError(ErrCodeInternal, err.Error(), err)
}
