package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
)

// Extraction pipeline errors.
var (
	// ErrExtractionInsufficient: a cascade stage produced too little text. Non-fatal.
	ErrExtractionInsufficient = errors.New("extraction insufficient")
	// ErrExtractionExhausted: every cascade stage failed.
	ErrExtractionExhausted = errors.New("no extractable text")
	// ErrUnreadableText: readability gate rejected the text before any LLM call.
	ErrUnreadableText = errors.New("text not readable enough")
	// ErrOracleUnavailable: OCR or LLM backend failed (transport, non-2xx, empty body).
	ErrOracleUnavailable = errors.New("extraction backend unavailable")
	// ErrMalformedResponse: LLM output did not parse even after repairs. Recovered by scraping.
	ErrMalformedResponse = errors.New("malformed llm response")
)

// Error codes carried by AppError.
const (
	CodeConfig      = "CONFIG_ERROR"
	CodeExtraction  = "EXTRACTION_ERROR"
	CodeUnreadable  = "UNREADABLE_TEXT"
	CodeOracle      = "ORACLE_UNAVAILABLE"
	CodeStatus      = "INVALID_STATUS_TRANSITION"
	CodeUnsupported = "UNSUPPORTED_DOCUMENT"
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// OracleError tags err as an ErrOracleUnavailable failure of the named backend.
func OracleError(backend string, err error) error {
	if err == nil {
		return nil
	}
	return NewAppError(CodeOracle, backend, fmt.Errorf("%w: %v", ErrOracleUnavailable, err))
}

// UserMessage renders err as the human readable errorMessage of a failed record.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Cause != nil {
			return appErr.Message + ": " + appErr.Cause.Error()
		}
		return appErr.Message
	}
	return err.Error()
}
