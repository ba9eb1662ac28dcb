// Package errors provides severity-aware error types.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Severity indicates error impact level.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// VerifyError is a structured error with context.
type VerifyError struct {
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Severity   Severity `json:"severity"`
	ResourceID string   `json:"resource_id,omitempty"`
	Err        error    `json:"-"`
}

func (e *VerifyError) Error() string {
	if e.ResourceID != "" {
		return fmt.Sprintf("[%s] %s: %s (resource: %s)", e.Severity, e.Code, e.Message, e.ResourceID)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Code, e.Message)
}

func (e *VerifyError) Unwrap() error {
	return e.Err
}

// Error codes
const (
	ErrCodeUnresolvedLookup = "UNRESOLVED_LOOKUP"
	ErrCodeCountMismatch    = "COUNT_MISMATCH"
	ErrCodeFetchFailed      = "FETCH_FAILED"
	ErrCodeMissingRule      = "MISSING_RULE"
)

// NewUnresolvedLookupError reports an instance type absent from the flavor table.
func NewUnresolvedLookupError(flavor, resourceID string, cause error) *VerifyError {
	return &VerifyError{
		Code:       ErrCodeUnresolvedLookup,
		Message:    fmt.Sprintf("instance type %q not found in flavor table", flavor),
		Severity:   SeverityFatal,
		ResourceID: resourceID,
		Err:        cause,
	}
}

// NewFetchError wraps a document retrieval failure.
func NewFetchError(kind string, cause error) *VerifyError {
	return &VerifyError{
		Code:     ErrCodeFetchFailed,
		Message:  fmt.Sprintf("failed to fetch %s: %v", kind, cause),
		Severity: SeverityFatal,
		Err:      cause,
	}
}

// NewMissingRuleError reports an entity type without a derivation rule.
func NewMissingRuleError(entityType string) *VerifyError {
	return &VerifyError{
		Code:     ErrCodeMissingRule,
		Message:  fmt.Sprintf("no derivation rule registered for entity type: %s", entityType),
		Severity: SeverityFatal,
	}
}

// HasCode reports whether err, or any error it wraps, is a VerifyError with code.
func HasCode(err error, code string) bool {
	var ve *VerifyError
	for err != nil {
		if !stderrors.As(err, &ve) {
			return false
		}
		if ve.Code == code {
			return true
		}
		err = ve.Err
	}
	return false
}
