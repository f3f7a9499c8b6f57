package llm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/convoflow/pkg/convoflow/llm"
)

func TestValidateToolChain_Valid(t *testing.T) {
	msgs := []llm.Message{
		llm.User("look up order 42"),
		{
			Role:      llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{{ID: "call-1", Name: "lookup_order", Arguments: `{"id":42}`}},
		},
		llm.ToolResult("call-1", `{"status":"shipped"}`),
		llm.Assistant("Your order shipped yesterday."),
	}

	assert.NoError(t, llm.ValidateToolChain(msgs))
}

func TestValidateToolChain_MultipleResults(t *testing.T) {
	msgs := []llm.Message{
		{
			Role: llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{
				{ID: "a", Name: "one"},
				{ID: "b", Name: "two"},
			},
		},
		llm.ToolResult("b", "second"),
		llm.ToolResult("a", "first"),
	}

	assert.NoError(t, llm.ValidateToolChain(msgs))
}

func TestValidateToolChain_OrphanResult(t *testing.T) {
	msgs := []llm.Message{
		llm.Assistant("no tool calls here"),
		llm.ToolResult("call-9", "orphan"),
	}

	err := llm.ValidateToolChain(msgs)
	require.ErrorIs(t, err, llm.ErrOrphanToolResult)
}

func TestValidateToolChain_ResultAfterWindowClosed(t *testing.T) {
	msgs := []llm.Message{
		{
			Role:      llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{{ID: "call-1", Name: "lookup"}},
		},
		llm.User("interrupting message"),
		llm.ToolResult("call-1", "too late"),
	}

	err := llm.ValidateToolChain(msgs)
	require.ErrorIs(t, err, llm.ErrOrphanToolResult)
}

func TestValidateToolChain_MissingID(t *testing.T) {
	msgs := []llm.Message{
		{Role: llm.RoleTool, Content: "no id"},
	}

	err := llm.ValidateToolChain(msgs)
	require.ErrorIs(t, err, llm.ErrOrphanToolResult)
}

func TestValidateToolChain_DuplicateResult(t *testing.T) {
	msgs := []llm.Message{
		{
			Role:      llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{{ID: "call-1", Name: "lookup"}},
		},
		llm.ToolResult("call-1", "first"),
		llm.ToolResult("call-1", "again"),
	}

	err := llm.ValidateToolChain(msgs)
	require.ErrorIs(t, err, llm.ErrOrphanToolResult)
}
