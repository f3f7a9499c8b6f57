package llm

import (
	"errors"
	"fmt"
)

// ErrOrphanToolResult indicates a tool-result message whose ToolCallID does
// not match an outstanding call in the immediately preceding assistant
// message.
var ErrOrphanToolResult = errors.New("tool result does not match an outstanding tool call")

// ValidateToolChain checks the tool-use invariant over a message sequence:
// every RoleTool message must carry a ToolCallID that appears in the
// ToolCalls of the assistant message immediately preceding the contiguous
// block of tool results it belongs to.
func ValidateToolChain(messages []Message) error {
	outstanding := map[string]bool{}

	for i, m := range messages {
		switch m.Role {
		case RoleAssistant:
			outstanding = make(map[string]bool, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				outstanding[tc.ID] = true
			}
		case RoleTool:
			if m.ToolCallID == "" {
				return fmt.Errorf("message %d: %w: missing tool_call_id", i, ErrOrphanToolResult)
			}
			if !outstanding[m.ToolCallID] {
				return fmt.Errorf("message %d: %w: id %q", i, ErrOrphanToolResult, m.ToolCallID)
			}
			delete(outstanding, m.ToolCallID)
		default:
			// Any non-tool message closes the current tool-call window.
			outstanding = nil
		}
	}

	return nil
}
