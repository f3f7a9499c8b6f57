package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/convoflow/pkg/convoflow/llm"
)

var routes = []string{"BILLING", "TECHNICAL", "RESPOND"}

func TestDecodeClassification_WellFormed(t *testing.T) {
	got, err := llm.DecodeClassification(`{"decision": "BILLING"}`, routes)
	require.NoError(t, err)
	assert.Equal(t, "BILLING", got)
}

func TestDecodeClassification_FencedOutput(t *testing.T) {
	raw := "```json\n{\"decision\": \"TECHNICAL\"}\n```"
	got, err := llm.DecodeClassification(raw, routes)
	require.NoError(t, err)
	assert.Equal(t, "TECHNICAL", got)
}

// Unquoted keys and trailing commas are repairable; the label check stays
// strict afterwards.
func TestDecodeClassification_RepairableJSON(t *testing.T) {
	got, err := llm.DecodeClassification(`{decision: "RESPOND",}`, routes)
	require.NoError(t, err)
	assert.Equal(t, "RESPOND", got)
}

func TestDecodeClassification_UnknownLabel(t *testing.T) {
	_, err := llm.DecodeClassification(`{"decision": "ESCALATE"}`, routes)

	var cerr *llm.ClassificationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, `{"decision": "ESCALATE"}`, cerr.Raw)
	assert.Contains(t, cerr.Error(), "ESCALATE")
}

func TestDecodeClassification_Garbage(t *testing.T) {
	_, err := llm.DecodeClassification("I think this is a billing question.", routes)

	var cerr *llm.ClassificationError
	require.ErrorAs(t, err, &cerr)
}

func TestClassify_UsesClientAndDecodes(t *testing.T) {
	mock := llm.NewMock(`{"decision": "BILLING"}`)

	got, err := llm.Classify(context.Background(), mock, "Route the conversation.", "My invoice is wrong", routes)
	require.NoError(t, err)
	assert.Equal(t, "BILLING", got)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].SystemPrompt, "BILLING, TECHNICAL, RESPOND")
	assert.Equal(t, llm.RoleUser, calls[0].Messages[0].Role)
}

// A transport failure must come back as the client error, not as a
// classification error.
func TestClassify_ClientErrorPassesThrough(t *testing.T) {
	boom := llm.NewError("complete", errors.New("connection refused"), true)
	mock := llm.NewMock("").WithError(boom)

	_, err := llm.Classify(context.Background(), mock, "Route.", "hi", routes)
	require.Error(t, err)

	var cerr *llm.ClassificationError
	assert.False(t, errors.As(err, &cerr))
	assert.True(t, llm.IsRetryable(err))
}

// Retrying after a malformed response with a valid one succeeds (the mock
// advances through its script the way a retried stage would).
func TestClassify_RetryAfterDecodeFailure(t *testing.T) {
	mock := llm.NewMock("").WithResponses("not json at all", `{"decision": "RESPOND"}`)

	_, err := llm.Classify(context.Background(), mock, "Route.", "hi", routes)
	var cerr *llm.ClassificationError
	require.ErrorAs(t, err, &cerr)
	assert.True(t, llm.IsRetryable(err))

	got, err := llm.Classify(context.Background(), mock, "Route.", "hi", routes)
	require.NoError(t, err)
	assert.Equal(t, "RESPOND", got)
}
