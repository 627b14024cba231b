package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSetsSeverityError(t *testing.T) {
	err := New(CodeMalformedLog, "bad event stream")
	assert.Equal(t, SeverityError, err.Severity)
	assert.Equal(t, "[MALFORMED_LOG] bad event stream", err.Error())
}

func TestNewWarningIsNeverAnError(t *testing.T) {
	warn := NewWarning(CodeUnknownOrigin, "no RTT sample for origin")
	assert.True(t, IsWarning(warn))
	assert.False(t, IsWarning(New(CodeInternal, "boom")))
}

func TestWithDetailsChains(t *testing.T) {
	err := New(CodeGraphCycle, "cycle detected").
		WithDetails("node", int64(42)).
		WithDetails("chain", []int64{1, 2, 42})

	require.Equal(t, int64(42), err.Details["node"])
	assert.Equal(t, []int64{1, 2, 42}, err.Details["chain"])
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("underlying failure")
	err := Wrap(cause, CodeInternal, "wrapped")

	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, errors.Is(err, cause))
}

func TestIsAndCode(t *testing.T) {
	err := New(CodeSimulationBudgetExceeded, "too many iterations")

	assert.True(t, Is(err, CodeSimulationBudgetExceeded))
	assert.False(t, Is(err, CodeGraphCycle))
	assert.Equal(t, CodeSimulationBudgetExceeded, Code(err))
	assert.Equal(t, CodeInternal, Code(errors.New("plain error")))
}

func TestValidationErrorsSeparatesWarningsFromErrors(t *testing.T) {
	v := NewValidationErrors()
	v.Add(New(CodeMalformedLog, "hard failure"))
	v.AddWarning(CodeUnknownOrigin, "origin a.test has no RTT sample")

	require.Len(t, v.Errors, 1)
	require.Len(t, v.Warnings, 1)
	assert.True(t, v.HasErrors())
	assert.True(t, v.HasWarnings())
}

func TestValidationErrorsMerge(t *testing.T) {
	a := NewValidationErrors()
	a.AddWarning(CodeUnknownOrigin, "origin a")

	b := NewValidationErrors()
	b.AddWarning(CodeUnknownOrigin, "origin b")
	b.Add(New(CodeGraphCycle, "cycle"))

	a.Merge(b)

	assert.Len(t, a.Warnings, 2)
	assert.Len(t, a.Errors, 1)
}

func TestValidationErrorsMergeNilIsNoop(t *testing.T) {
	a := NewValidationErrors()
	a.Merge(nil)
	assert.False(t, a.HasErrors())
	assert.False(t, a.HasWarnings())
}
