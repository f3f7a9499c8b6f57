package support

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/convoflow/pkg/convoflow/approval"
	"github.com/convoflow/convoflow/pkg/convoflow/checkpoint"
	"github.com/convoflow/convoflow/pkg/convoflow/event"
	"github.com/convoflow/convoflow/pkg/convoflow/llm"
)

func newTestRunner(t *testing.T, client llm.Client) (*Runner, checkpoint.Store, *approval.Inbox, event.Bus) {
	t.Helper()

	store := checkpoint.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	bus := event.NewBus(event.BusConfig{})
	t.Cleanup(bus.Close)

	inbox := approval.NewInbox()

	r, err := NewRunner(store, client, bus, inbox)
	require.NoError(t, err)
	return r, store, inbox, bus
}

// TestWorkflow_TechnicalPath routes a malfunction to the technical
// specialist and closes the thread.
func TestWorkflow_TechnicalPath(t *testing.T) {
	mock := llm.NewMock("").WithResponses(
		"Sorry to hear that!\nSUMMARY: laptop will not boot",
		`{"decision": "TECHNICAL"}`,
		"Try holding the power button for ten seconds.",
		"Anything else I can help with?",
	)

	r, _, inbox, _ := newTestRunner(t, mock)

	err := r.Start(context.Background(), "thread-tech", "my laptop will not boot")
	require.NoError(t, err)

	cp, err := r.Thread("thread-tech")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusCompleted, cp.Status)
	assert.Empty(t, inbox.Pending())

	var s State
	require.NoError(t, json.Unmarshal(cp.State, &s))
	assert.Equal(t, CategoryTechnical, s.Category)
	assert.Equal(t, "troubleshooting", s.Resolution)
	assert.Equal(t, "laptop will not boot", s.Summary)
	assert.Equal(t, "Anything else I can help with?", s.LastReply())
}

// TestWorkflow_RefundPausesForAuthorization verifies the billing interrupt
// opens a pending approval and the checkpoint pends on billing.
func TestWorkflow_RefundPausesForAuthorization(t *testing.T) {
	mock := llm.NewMock("").WithResponses(
		"Let me look into that refund.\nSUMMARY: refund for damaged item",
		`{"decision": "BILLING"}`,
	)

	r, _, inbox, _ := newTestRunner(t, mock)

	err := r.Start(context.Background(), "thread-refund", "I want a refund, the item arrived broken")
	require.NoError(t, err)

	cp, err := r.Thread("thread-refund")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusInterrupted, cp.Status)
	assert.Equal(t, "billing", cp.PendingStage)

	pending := inbox.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "thread-refund", pending[0].ThreadID)
	assert.Equal(t, FlagRefundAuthorization, pending[0].Flag)
	assert.Equal(t, approval.StatusPending, pending[0].Status)
}

// TestWorkflow_RefundApprovedCompletes verifies the full approve cycle.
func TestWorkflow_RefundApprovedCompletes(t *testing.T) {
	mock := llm.NewMock("").WithResponses(
		"Let me look into that refund.\nSUMMARY: refund for damaged item",
		`{"decision": "BILLING"}`,
		"Your refund has been processed and will arrive in 3-5 days.",
		"Anything else I can help with?",
	)

	r, _, inbox, _ := newTestRunner(t, mock)

	require.NoError(t, r.Start(context.Background(), "thread-refund", "I want a refund"))
	require.NoError(t, r.Resume(context.Background(), "thread-refund", true, ""))

	cp, err := r.Thread("thread-refund")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusCompleted, cp.Status)

	var s State
	require.NoError(t, json.Unmarshal(cp.State, &s))
	assert.True(t, s.RefundAuthorized)
	assert.Equal(t, "refund_issued", s.Resolution)

	assert.Empty(t, inbox.Pending())
	history := inbox.History()
	require.Len(t, history, 1)
	assert.Equal(t, approval.StatusGranted, history[0].Status)
}

// TestWorkflow_RefundDeniedClosesPolitely verifies the deny cycle finishes
// without a refund and without a second model call for billing.
func TestWorkflow_RefundDeniedClosesPolitely(t *testing.T) {
	mock := llm.NewMock("").WithResponses(
		"Let me look into that refund.\nSUMMARY: refund request",
		`{"decision": "BILLING"}`,
		"Anything else I can help with?",
	)

	r, _, _, _ := newTestRunner(t, mock)

	require.NoError(t, r.Start(context.Background(), "thread-refund", "refund please"))
	require.NoError(t, r.Resume(context.Background(), "thread-refund", false, ""))

	cp, err := r.Thread("thread-refund")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StatusCompleted, cp.Status)

	var s State
	require.NoError(t, json.Unmarshal(cp.State, &s))
	assert.True(t, s.RefundDenied)
	assert.Equal(t, "refund_declined", s.Resolution)
}

// TestWorkflow_StreamsStepEvents verifies bus delivery in stage order.
func TestWorkflow_StreamsStepEvents(t *testing.T) {
	mock := llm.NewMock("").WithResponses(
		"Hello!\nSUMMARY: general question",
		`{"decision": "RESPOND"}`,
		"Happy to help. Anything else?",
	)

	r, _, _, bus := newTestRunner(t, mock)

	sub := bus.Subscribe("thread-q")
	defer sub.Cancel()

	require.NoError(t, r.Start(context.Background(), "thread-q", "what are your hours?"))

	var types []event.Type
	var stages []string
	for i := 0; i < 4; i++ {
		ev := <-sub.Events()
		types = append(types, ev.Type)
		if ev.Type == event.TypeStep {
			stages = append(stages, ev.Stage)
		}
	}

	assert.Equal(t, []event.Type{event.TypeStep, event.TypeStep, event.TypeStep, event.TypeCompleted}, types)
	assert.Equal(t, []string{"frontline", "classify", "respond"}, stages)
}

// TestWorkflow_ClassifierGarbageFailsRun verifies garbage model output
// halts the thread instead of routing on a guess.
func TestWorkflow_ClassifierGarbageFailsRun(t *testing.T) {
	mock := llm.NewMock("").WithResponses(
		"Hello!\nSUMMARY: something",
		"I think this is probably a billing matter?",
	)

	r, _, _, _ := newTestRunner(t, mock)

	err := r.Start(context.Background(), "thread-bad", "help")

	require.Error(t, err)
	var classErr *llm.ClassificationError
	assert.ErrorAs(t, err, &classErr)
}

func TestSplitSummary(t *testing.T) {
	reply, summary := splitSummary("Hi there.\nSUMMARY: user needs a refund")
	assert.Equal(t, "Hi there.", reply)
	assert.Equal(t, "user needs a refund", summary)

	reply, summary = splitSummary("no marker at all")
	assert.Equal(t, "no marker at all", reply)
	assert.Equal(t, "no marker at all", summary)
}
