package apperror

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	withField := NewWithField(CodeValidation, "bounds invalid", "checker_height")
	assert.Equal(t, "[VALIDATION_ERROR] bounds invalid (field: checker_height)", withField.Error())

	withStage := Wrap(errors.New("boom"), CodeOptimization, "solver", "solver failed")
	assert.Equal(t, "[OPTIMIZATION_ERROR] solver: solver failed", withStage.Error())

	plain := New(CodeInternal, "unexpected")
	assert.Equal(t, "[INTERNAL_ERROR] unexpected", plain.Error())
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := Wrap(cause, CodeOptimization, "physics evaluation", "non-finite result")

	assert.Same(t, cause, err.Unwrap())
	assert.ErrorIs(t, err, cause)
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeValidation, 422},
		{CodeOptimization, 500},
		{CodeInternal, 500},
		{CodeCancelled, 500},
	}
	for _, tt := range tests {
		err := New(tt.code, "x")
		assert.Equal(t, tt.want, err.StatusCode())
	}
}

func TestIsAndGetCode(t *testing.T) {
	err := NewWithField(CodeValidation, "bad", "field")

	assert.True(t, Is(err, CodeValidation))
	assert.False(t, Is(err, CodeInternal))
	assert.False(t, Is(errors.New("plain"), CodeValidation))

	assert.Equal(t, CodeValidation, GetCode(err))
	assert.Equal(t, CodeInternal, GetCode(errors.New("plain")))
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "warning", SeverityWarning.String())
	assert.Equal(t, "error", SeverityError.String())
	assert.Equal(t, "critical", SeverityCritical.String())
	assert.Equal(t, "error", Severity(99).String())
}

func TestWithDetails(t *testing.T) {
	err := New(CodeValidation, "invalid").
		WithDetails("field_count", 2).
		WithDetails("attempted", "checker_height")

	assert.Equal(t, 2, err.Details["field_count"])
	assert.Equal(t, "checker_height", err.Details["attempted"])
}

func TestValidationErrorsCollector(t *testing.T) {
	t.Run("empty collector has no errors", func(t *testing.T) {
		ve := NewValidationErrors()
		assert.False(t, ve.HasErrors())
		assert.Nil(t, ve.Err())
	})

	t.Run("single error is returned unwrapped", func(t *testing.T) {
		ve := NewValidationErrors()
		ve.AddField("bounds invalid", "checker_height")

		err := ve.Err()
		assert.Equal(t, "checker_height", err.Field)
	})

	t.Run("multiple errors are combined with one detail per field", func(t *testing.T) {
		ve := NewValidationErrors()
		ve.AddField("bounds invalid", "checker_height")
		ve.AddField("tolerance must be positive", "tolerance")

		err := ve.Err()
		assert.Equal(t, "2 validation errors", err.Message)
		assert.Len(t, err.Details, 2)
		assert.Len(t, ve.Messages(), 2)
	})
}
