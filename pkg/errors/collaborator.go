package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a classified collaborator failure.
type ErrorCode string

const (
	ErrTimeout          ErrorCode = "timeout"
	ErrContextCancelled ErrorCode = "context_cancelled"
	ErrRateLimit        ErrorCode = "rate_limit"
	ErrModelUnavailable ErrorCode = "model_unavailable"
	ErrParseError       ErrorCode = "parse_error"
	ErrEmptyContent     ErrorCode = "empty_content"
	ErrSinkUnavailable  ErrorCode = "sink_unavailable"
	ErrProcessingError  ErrorCode = "processing_error"
)

// Stage names used when classifying collaborator failures.
const (
	StageSemantic = "semantic_classifier"
	StageSink     = "report_sink"
)

// CollaboratorError is a structured error for failures of external collaborators
// (semantic classifier, report sinks). The engine never surfaces these to tick callers;
// they are logged and counted.
type CollaboratorError struct {
	Code     ErrorCode
	Stage    string
	Message  string
	Duration time.Duration
	Timeout  time.Duration
	Cause    error
}

func (e *CollaboratorError) Error() string {
	if e.Timeout > 0 && e.Duration > 0 {
		return fmt.Sprintf("%s: %s timed out after %s (limit: %s)", e.Code, e.Stage, e.Duration.Truncate(time.Millisecond), e.Timeout.Truncate(time.Millisecond))
	}
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Cause
}

// ClassifyError inspects an error and returns a *CollaboratorError with the appropriate code.
// If the error doesn't match any known pattern, it returns ErrProcessingError, or
// ErrSinkUnavailable when the stage is a report sink.
func ClassifyError(err error, stage string) *CollaboratorError {
	if err == nil {
		return nil
	}

	var existing *CollaboratorError
	if errors.As(err, &existing) {
		return existing
	}

	ce := &CollaboratorError{
		Stage: stage,
		Cause: err,
	}

	if errors.Is(err, context.DeadlineExceeded) {
		ce.Code = ErrTimeout
		ce.Message = "operation timed out"
		return ce
	}

	if errors.Is(err, context.Canceled) {
		ce.Code = ErrContextCancelled
		ce.Message = "operation cancelled"
		return ce
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	ce.Message = msg

	switch {
	case strings.Contains(lower, "deadlineexceeded") || strings.Contains(lower, "deadline exceeded"):
		ce.Code = ErrTimeout
	case strings.Contains(lower, "malformed") || strings.Contains(lower, "parse") || strings.Contains(lower, "unmarshal") || strings.Contains(lower, "invalid character"):
		ce.Code = ErrParseError
	case strings.Contains(lower, "empty content") || strings.Contains(lower, "empty excerpt") || strings.Contains(lower, "no content"):
		ce.Code = ErrEmptyContent
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "429") || strings.Contains(lower, "too many requests") || strings.Contains(lower, "resource_exhausted") || strings.Contains(lower, "resourceexhausted"):
		ce.Code = ErrRateLimit
	case stage == StageSink:
		ce.Code = ErrSinkUnavailable
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "unavailable") || strings.Contains(lower, "503") || strings.Contains(lower, "no such host"):
		ce.Code = ErrModelUnavailable
	default:
		ce.Code = ErrProcessingError
	}

	return ce
}

// IsTimeout returns true if the error is a classified timeout.
func IsTimeout(err error) bool {
	var ce *CollaboratorError
	if errors.As(err, &ce) {
		return ce.Code == ErrTimeout
	}
	return false
}

// IsErrorRetryable returns true if the error is likely transient.
// Nothing in meetiq retries internally; the flag is reported so collaborators can.
func IsErrorRetryable(err error) bool {
	var ce *CollaboratorError
	if errors.As(err, &ce) {
		return ce.Code.Retryable()
	}
	return false
}
