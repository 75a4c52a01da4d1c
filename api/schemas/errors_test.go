// File: api/schemas/errors_test.go
package schemas

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineErrorTaxonomy(t *testing.T) {
	t.Run("service failures are retryable", func(t *testing.T) {
		for _, code := range []ErrorCode{ErrCodePerceptionService, ErrCodeSemanticService, ErrCodeAnswerGeneration} {
			err := NewPipelineError(code, "stage", "transient upstream failure", nil)
			assert.True(t, err.Retryable(), string(code))
		}
	})

	t.Run("contract violations and browser failures are not", func(t *testing.T) {
		for _, code := range []ErrorCode{ErrCodeMalformedPerception, ErrCodeInvalidInventory, ErrCodeBrowserAction, ErrCodeBrowserCapture, ErrCodeStatePersistence} {
			err := NewPipelineError(code, "stage", "hard failure", nil)
			assert.False(t, err.Retryable(), string(code))
		}
	})

	t.Run("CodeOf walks wrapped chains", func(t *testing.T) {
		inner := NewPipelineError(ErrCodeBrowserAction, "browser", "click failed", errors.New("node detached"))
		wrapped := fmt.Errorf("executing batch: %w", inner)
		assert.Equal(t, ErrCodeBrowserAction, CodeOf(wrapped))
	})

	t.Run("CodeOf on plain errors is empty", func(t *testing.T) {
		assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
	})

	t.Run("Unwrap exposes the cause", func(t *testing.T) {
		cause := errors.New("deadline exceeded")
		err := NewPipelineError(ErrCodePerceptionService, "perception", "call failed", cause)
		require.ErrorIs(t, err, cause)
	})
}
