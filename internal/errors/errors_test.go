package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	err := PreconditionFailed("gate G2 requires an approved G1")
	assert.Equal(t, "precondition failed: gate G2 requires an approved G1", err.Error())
}

func TestErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Upstream("agent runtime call failed", cause)

	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, cause, stderrors.Unwrap(err))
}

func TestIsMatchesKind(t *testing.T) {
	err := SpecLocked("openapi")

	assert.True(t, stderrors.Is(err, &Error{Kind: KindConflict}))
	assert.False(t, stderrors.Is(err, &Error{Kind: KindNotFound}))
}

func TestKindOfWrappedError(t *testing.T) {
	err := fmt.Errorf("tool dispatch: %w", NotFound("task", "T-042"))

	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, IsKind(err, KindNotFound))
	assert.Equal(t, Kind(""), KindOf(fmt.Errorf("plain")))
}

func TestRetryablePolicy(t *testing.T) {
	// Only transient errors are retryable; protocol and precondition
	// failures require human resolution.
	assert.True(t, KindTransient.Retryable())
	assert.False(t, KindPreconditionFailed.Retryable())
	assert.False(t, KindProtocolViolation.Retryable())
	assert.False(t, KindUpstreamFailure.Retryable())
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindNotFound, 404},
		{KindUnauthorized, 403},
		{KindPreconditionFailed, 412},
		{KindInvalidInput, 400},
		{KindConflict, 409},
		{KindIntegrityFailure, 422},
		{KindUpstreamFailure, 502},
		{KindTransient, 503},
		{Kind("bogus"), 500},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.HTTPStatus(), string(tt.kind))
	}
}

func TestMarshalJSONIncludesCause(t *testing.T) {
	err := Transient("rate limited", fmt.Errorf("429 from provider"))

	data, merr := json.Marshal(err)
	require.NoError(t, merr)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "transient", decoded["kind"])
	assert.Equal(t, "429 from provider", decoded["cause"])
}

func TestInvalidApprovalCoaching(t *testing.T) {
	err := InvalidApproval("ok")

	assert.Equal(t, KindInvalidInput, err.Kind)
	assert.Contains(t, err.Fix, `"approved" or "yes"`)
}

func TestUserMessageListsFieldIssues(t *testing.T) {
	err := InvalidInput("bad tool arguments",
		FieldIssue{Field: "projectId", Message: "required"},
		FieldIssue{Field: "gate", Message: "must be G1..G9"},
	)

	msg := err.UserMessage()
	assert.Contains(t, msg, "projectId: required")
	assert.Contains(t, msg, "gate: must be G1..G9")
}
