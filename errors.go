package tablesmasher

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeStore      ErrorType = "store"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeJoin       ErrorType = "join"
	ErrorTypeTruncation ErrorType = "truncation"
	ErrorTypeInternal   ErrorType = "internal"
)

// Error codes used across the consolidation engine
const (
	ErrCodeInvalidSpecification = "INVALID_SPECIFICATION"
	ErrCodeTransientStore       = "TRANSIENT_STORE_ERROR"
	ErrCodeTableNotFound        = "TABLE_NOT_FOUND"
	ErrCodeJoinKey              = "JOIN_KEY_ERROR"
	ErrCodeTruncation           = "TABLE_TRUNCATION"
	ErrCodeUploadFailed         = "UPLOAD_FAILED"
	ErrCodeInternalError        = "INTERNAL_ERROR"
)

// SmasherError is the unified error type of the consolidation engine.
type SmasherError struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Table   string         `json:"table,omitempty"`
	Column  string         `json:"column,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *SmasherError) Error() string {
	if e.Table != "" && e.Column != "" {
		return fmt.Sprintf("[%s:%s] table %q column %q: %s", e.Type, e.Code, e.Table, e.Column, e.Message)
	}
	if e.Table != "" {
		return fmt.Sprintf("[%s:%s] table %q: %s", e.Type, e.Code, e.Table, e.Message)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

func (e *SmasherError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a single contextual detail.
func (e *SmasherError) WithDetail(key string, value any) *SmasherError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause attaches the underlying error.
func (e *SmasherError) WithCause(cause error) *SmasherError {
	e.Cause = cause
	return e
}

// WithTable adds table context.
func (e *SmasherError) WithTable(table string) *SmasherError {
	e.Table = table
	return e
}

// NewInvalidSpecificationError reports a malformed or incomplete merge
// specification. Fatal, never retried.
func NewInvalidSpecificationError(message string) *SmasherError {
	return &SmasherError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeInvalidSpecification,
		Message: message,
	}
}

// NewTransientStoreError reports a network or server-side store failure
// that may succeed on retry.
func NewTransientStoreError(message string, cause error) *SmasherError {
	return &SmasherError{
		Type:    ErrorTypeStore,
		Code:    ErrCodeTransientStore,
		Message: message,
		Cause:   cause,
	}
}

// NewTableNotFoundError reports a missing table. Not retried.
func NewTableNotFoundError(table string) *SmasherError {
	return &SmasherError{
		Type:    ErrorTypeNotFound,
		Code:    ErrCodeTableNotFound,
		Message: "table not found in workspace",
		Table:   table,
	}
}

// NewJoinKeyError reports a resolved join key missing from one side of a join.
func NewJoinKeyError(column, table string) *SmasherError {
	return &SmasherError{
		Type:    ErrorTypeJoin,
		Code:    ErrCodeJoinKey,
		Message: "join key column not present",
		Table:   table,
		Column:  column,
	}
}

// NewTruncationError reports a store-side table smaller than the uploaded one.
func NewTruncationError(table string, memRows, memCols, storeRows, storeCols int) *SmasherError {
	e := &SmasherError{
		Type:    ErrorTypeTruncation,
		Code:    ErrCodeTruncation,
		Message: fmt.Sprintf("uploaded table (%dx%d) is larger than the store reports (%dx%d)", memRows, memCols, storeRows, storeCols),
		Table:   table,
	}
	return e.WithDetail("memory_rows", memRows).
		WithDetail("memory_columns", memCols).
		WithDetail("store_rows", storeRows).
		WithDetail("store_columns", storeCols)
}

// NewInternalError reports an unexpected internal failure.
func NewInternalError(message string, cause error) *SmasherError {
	return &SmasherError{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeInternalError,
		Message: message,
		Cause:   cause,
	}
}

func hasCode(err error, code string) bool {
	var se *SmasherError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsInvalidSpecification reports whether err is an invalid-specification error.
func IsInvalidSpecification(err error) bool {
	return hasCode(err, ErrCodeInvalidSpecification)
}

// IsTransientStoreError reports whether err is a retryable store error.
func IsTransientStoreError(err error) bool {
	return hasCode(err, ErrCodeTransientStore)
}

// IsTableNotFound reports whether err is a table-not-found error.
func IsTableNotFound(err error) bool {
	return hasCode(err, ErrCodeTableNotFound)
}

// IsJoinKeyError reports whether err is a join-key error.
func IsJoinKeyError(err error) bool {
	return hasCode(err, ErrCodeJoinKey)
}

// IsTruncationError reports whether err is a truncation error.
func IsTruncationError(err error) bool {
	return hasCode(err, ErrCodeTruncation)
}
