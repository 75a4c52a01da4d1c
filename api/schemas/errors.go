// File: api/schemas/errors.go
package schemas

import (
	"errors"
	"fmt"
)

// ErrorCode is a string type for structured pipeline error reporting. Using a
// custom type ensures only predefined constants appear where a code is
// expected.
type ErrorCode string

const (
	// -- Transient model-side failures (retryable with backoff) --
	ErrCodePerceptionService ErrorCode = "PERCEPTION_SERVICE_ERROR"
	ErrCodeSemanticService   ErrorCode = "SEMANTIC_SERVICE_ERROR"
	ErrCodeAnswerGeneration  ErrorCode = "ANSWER_GENERATION_ERROR"

	// -- Contract violations (never retried, escalate immediately) --
	ErrCodeMalformedPerception ErrorCode = "MALFORMED_PERCEPTION_OUTPUT"
	ErrCodeInvalidInventory    ErrorCode = "INVALID_INVENTORY"

	// -- Browser-side failures --
	ErrCodeBrowserAction  ErrorCode = "BROWSER_ACTION_FAILURE"
	ErrCodeBrowserCapture ErrorCode = "BROWSER_CAPTURE_FAILURE"

	// -- Internal --
	ErrCodeStatePersistence ErrorCode = "STATE_PERSISTENCE_FAILURE"
)

// PipelineError carries a stable code plus the originating stage so the
// orchestrator can pick a recovery policy without string matching.
type PipelineError struct {
	Code    ErrorCode
	Stage   string
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Stage, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Stage, e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// NewPipelineError builds a typed pipeline error.
func NewPipelineError(code ErrorCode, stage, message string, err error) *PipelineError {
	return &PipelineError{Code: code, Stage: stage, Message: message, Err: err}
}

// Retryable reports whether the code denotes a transient service failure
// that the orchestrator may retry with backoff.
func (e *PipelineError) Retryable() bool {
	switch e.Code {
	case ErrCodePerceptionService, ErrCodeSemanticService, ErrCodeAnswerGeneration:
		return true
	default:
		return false
	}
}

// CodeOf extracts the ErrorCode from err, or "" if err is not a
// PipelineError anywhere in its chain.
func CodeOf(err error) ErrorCode {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
