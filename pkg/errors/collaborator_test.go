package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		stage string
		want  ErrorCode
	}{
		{"deadline", context.DeadlineExceeded, StageSemantic, ErrTimeout},
		{"wrapped deadline", fmt.Errorf("invoke: %w", context.DeadlineExceeded), StageSemantic, ErrTimeout},
		{"grpc deadline text", errors.New("rpc error: code = DeadlineExceeded desc = slow"), StageSemantic, ErrTimeout},
		{"cancelled", context.Canceled, StageSemantic, ErrContextCancelled},
		{"malformed", errors.New("malformed classifier response"), StageSemantic, ErrParseError},
		{"json", errors.New("invalid character 'x' looking for beginning of value"), StageSemantic, ErrParseError},
		{"empty", errors.New("empty excerpt"), StageSemantic, ErrEmptyContent},
		{"rate limit", errors.New("rpc error: code = ResourceExhausted desc = quota"), StageSemantic, ErrRateLimit},
		{"unavailable", errors.New("rpc error: code = Unavailable desc = connection refused"), StageSemantic, ErrModelUnavailable},
		{"sink refused", errors.New("dial tcp 127.0.0.1:6379: connect: connection refused"), StageSink, ErrSinkUnavailable},
		{"other", errors.New("boom"), StageSemantic, ErrProcessingError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := ClassifyError(tt.err, tt.stage)
			require.NotNil(t, ce)
			assert.Equal(t, tt.want, ce.Code)
			assert.Equal(t, tt.stage, ce.Stage)
			assert.ErrorIs(t, ce, tt.err)
		})
	}
}

func TestClassifyError_Nil(t *testing.T) {
	assert.Nil(t, ClassifyError(nil, StageSink))
}

func TestClassifyError_PassesThroughExisting(t *testing.T) {
	orig := &CollaboratorError{Code: ErrRateLimit, Stage: StageSemantic, Message: "slow down"}
	got := ClassifyError(fmt.Errorf("wrap: %w", orig), StageSink)
	assert.Same(t, orig, got)
}

func TestCollaboratorError_Error(t *testing.T) {
	ce := &CollaboratorError{Code: ErrTimeout, Stage: StageSemantic, Duration: 5200 * time.Millisecond, Timeout: 5 * time.Second}
	assert.Equal(t, "timeout: semantic_classifier timed out after 5.2s (limit: 5s)", ce.Error())

	ce = &CollaboratorError{Code: ErrParseError, Stage: StageSemantic, Message: "bad json"}
	assert.Equal(t, "parse_error: semantic_classifier: bad json", ce.Error())

	ce = &CollaboratorError{Code: ErrProcessingError, Message: "x"}
	assert.Equal(t, "processing_error: x", ce.Error())
}

func TestIsTimeoutAndRetryable(t *testing.T) {
	timeout := ClassifyError(context.DeadlineExceeded, StageSemantic)
	assert.True(t, IsTimeout(timeout))
	assert.True(t, IsErrorRetryable(timeout))

	parse := ClassifyError(errors.New("parse failure"), StageSemantic)
	assert.False(t, IsTimeout(parse))
	assert.False(t, IsErrorRetryable(parse))

	assert.False(t, IsTimeout(errors.New("plain")))
}
