package convoflow

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/convoflow/pkg/convoflow/checkpoint"
	"github.com/convoflow/convoflow/pkg/convoflow/llm"
)

// draftState drives the revision-loop acceptance test.
type draftState struct {
	Topic     string   `json:"topic" merge:"replace"`
	Draft     string   `json:"draft" merge:"replace"`
	Revisions []string `json:"revisions" merge:"append"`
	Verdict   string   `json:"verdict" merge:"replace"`
}

// TestAcceptance_RevisionLoop runs a generate/check/improve/polish workflow
// end to end against the mock model: the checker routes back to improve
// until it passes, then a final polish stage completes the run.
func TestAcceptance_RevisionLoop(t *testing.T) {
	mock := llm.NewMock("").WithResponses(
		"first draft",
		`{"decision": "FAIL"}`,
		"second draft",
		`{"decision": "PASS"}`,
		"polished draft",
	)

	generate := func(ctx Context, s draftState) (draftState, error) {
		resp, err := ctx.Model().Complete(ctx, llm.CompletionRequest{
			Messages: []llm.Message{llm.User("write about " + s.Topic)},
		})
		if err != nil {
			return draftState{}, err
		}
		return draftState{Draft: resp.Content, Revisions: []string{resp.Content}}, nil
	}

	check := func(ctx Context, s draftState) (draftState, error) {
		verdict, err := llm.Classify(ctx, ctx.Model(),
			"judge the draft", s.Draft, []string{"PASS", "FAIL"})
		if err != nil {
			return draftState{}, err
		}
		return draftState{Verdict: verdict}, nil
	}

	improve := func(ctx Context, s draftState) (draftState, error) {
		resp, err := ctx.Model().Complete(ctx, llm.CompletionRequest{
			Messages: []llm.Message{llm.User("improve: " + s.Draft)},
		})
		if err != nil {
			return draftState{}, err
		}
		return draftState{Draft: resp.Content, Revisions: []string{resp.Content}}, nil
	}

	polish := func(ctx Context, s draftState) (draftState, error) {
		resp, err := ctx.Model().Complete(ctx, llm.CompletionRequest{
			Messages: []llm.Message{llm.User("polish: " + s.Draft)},
		})
		if err != nil {
			return draftState{}, err
		}
		return draftState{Draft: resp.Content, Revisions: []string{resp.Content}}, nil
	}

	wf := NewGraph[draftState]().
		AddStage("generate", generate).
		AddStage("check", check).
		AddStage("improve", improve).
		AddStage("polish", polish).
		AddEdge("generate", "check").
		AddConditionalEdge("check", func(ctx Context, s draftState) string {
			return strings.ToUpper(s.Verdict)
		}, Routes{
			"PASS": "polish",
			"FAIL": "improve",
		}).
		AddEdge("improve", "check").
		AddEdge("polish", END).
		SetEntry("generate").
		MustCompile()

	store := checkpoint.NewMemoryStore()
	defer store.Close()

	ctx := NewContext(context.Background(), WithModel(mock))
	res, err := wf.Run(ctx, draftState{Topic: "gophers"},
		WithThread(store, "draft-1"),
		WithWorkflowName("revision"))

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "polished draft", res.State.Draft)
	assert.Equal(t, []string{"first draft", "second draft", "polished draft"}, res.State.Revisions)
	assert.Equal(t, 5, mock.CallCount())

	// Every completed stage left a checkpoint.
	infos, err := store.List("draft-1")
	require.NoError(t, err)
	assert.Len(t, infos, res.Steps)
}

// TestAcceptance_ClassifierRetry covers a transient classification failure:
// the first verdict is garbage, the retried call returns a valid label, and
// the run proceeds as if the garbage never happened.
func TestAcceptance_ClassifierRetry(t *testing.T) {
	mock := llm.NewMock("").WithResponses(
		"a fine draft",
		"sorry, I cannot classify that",
		`{"decision": "PASS"}`,
		"shipped",
	)

	generate := func(ctx Context, s draftState) (draftState, error) {
		resp, err := ctx.Model().Complete(ctx, llm.CompletionRequest{
			Messages: []llm.Message{llm.User("write about " + s.Topic)},
		})
		if err != nil {
			return draftState{}, err
		}
		return draftState{Draft: resp.Content}, nil
	}

	check := func(ctx Context, s draftState) (draftState, error) {
		verdict, err := llm.Classify(ctx, ctx.Model(),
			"judge the draft", s.Draft, []string{"PASS", "FAIL"})
		if err != nil {
			return draftState{}, err
		}
		return draftState{Verdict: verdict}, nil
	}

	ship := func(ctx Context, s draftState) (draftState, error) {
		resp, err := ctx.Model().Complete(ctx, llm.CompletionRequest{
			Messages: []llm.Message{llm.User("ship: " + s.Draft)},
		})
		if err != nil {
			return draftState{}, err
		}
		return draftState{Draft: resp.Content}, nil
	}

	wf := NewGraph[draftState]().
		AddStage("generate", generate).
		AddStage("check", check).
		AddStage("ship", ship).
		AddEdge("generate", "check").
		AddConditionalEdge("check", func(ctx Context, s draftState) string {
			return strings.ToUpper(s.Verdict)
		}, Routes{
			"PASS": "ship",
			"FAIL": "generate",
		}).
		AddEdge("ship", END).
		SetEntry("generate").
		MustCompile()

	ctx := NewContext(context.Background(), WithModel(mock))
	res, err := wf.Run(ctx, draftState{Topic: "retries"},
		WithStageRetry(1))

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "shipped", res.State.Draft)
	assert.Equal(t, 3, res.Steps)
	assert.Equal(t, 4, mock.CallCount())
}
