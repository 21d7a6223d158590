package models

import (
	"context"
	"errors"
	"fmt"
)

// Error codes used in API responses, run reports and internal error handling.
const (
	ErrCodeSchemaLoad   = "SCHEMA_LOAD_FAILED"
	ErrCodeNavigation   = "NAVIGATION_FAILED"
	ErrCodeSelectorWait = "SELECTOR_TIMEOUT"
	ErrCodeAction       = "ACTION_FAILED"
	ErrCodeExtraction   = "EXTRACTION_FAILED"
	ErrCodeBrowserCrash = "BROWSER_CRASH"
	ErrCodeSiteTimeout  = "SITE_TIMEOUT"
	ErrCodePersist      = "PERSIST_FAILED"
	ErrCodeCanceled     = "CANCELED"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses and site statuses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return &ErrorDetail{Code: e.Code, Message: msg}
}

// AsScrapeError returns err as a *ScrapeError, wrapping unknown errors as
// INTERNAL_ERROR and context errors as CANCELED.
func AsScrapeError(err error) *ScrapeError {
	if err == nil {
		return nil
	}
	var se *ScrapeError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewScrapeError(ErrCodeCanceled, "operation canceled", err)
	}
	return NewScrapeError(ErrCodeInternal, err.Error(), err)
}

// CodeOf returns the error code of the first ScrapeError in err's chain,
// or "" when there is none.
func CodeOf(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsRetryable reports whether err is a transient scrape failure worth
// retrying. Action and extraction failures point at a configuration
// mismatch and are never retried.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case ErrCodeNavigation, ErrCodeSelectorWait:
		return true
	default:
		return false
	}
}
