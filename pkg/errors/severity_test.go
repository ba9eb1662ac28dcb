package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyError_Error(t *testing.T) {
	err := NewUnresolvedLookupError("m9.huge", "i-0abc", nil)
	assert.Equal(t, `[fatal] UNRESOLVED_LOOKUP: instance type "m9.huge" not found in flavor table (resource: i-0abc)`, err.Error())

	err = NewMissingRuleError("vm")
	assert.Equal(t, "[fatal] MISSING_RULE: no derivation rule registered for entity type: vm", err.Error())
}

func TestHasCode(t *testing.T) {
	sentinel := stderrors.New("unknown flavor")
	lookup := NewUnresolvedLookupError("x", "", sentinel)
	wrapped := fmt.Errorf("derivation failed: %w", lookup)

	assert.True(t, HasCode(wrapped, ErrCodeUnresolvedLookup))
	assert.False(t, HasCode(wrapped, ErrCodeFetchFailed))
	assert.True(t, stderrors.Is(wrapped, sentinel))
	assert.False(t, HasCode(sentinel, ErrCodeUnresolvedLookup))
	assert.False(t, HasCode(nil, ErrCodeUnresolvedLookup))
}

func TestSeverity_String(t *testing.T) {
	tests := map[Severity]string{
		SeverityInfo:    "info",
		SeverityWarning: "warning",
		SeverityError:   "error",
		SeverityFatal:   "fatal",
		Severity(42):    "unknown",
	}
	for sev, want := range tests {
		assert.Equal(t, want, sev.String())
	}
}
