// Package support implements the customer-support routing workflow: a
// frontline representative drafts a reply, a classifier routes the thread
// to a billing or technical specialist, and a closing representative wraps
// up. Refunds pause the thread until a human authorizes them.
package support

import (
	"github.com/convoflow/convoflow/pkg/convoflow/llm"
)

// Categories the classifier may return.
const (
	CategoryBilling   = "BILLING"
	CategoryTechnical = "TECHNICAL"
	CategoryRespond   = "RESPOND"
)

// FlagRefundAuthorization names the approval billing waits on.
const FlagRefundAuthorization = "refund_authorization"

// State is the shared conversation state. Messages accumulate across
// stages; the remaining fields are last-writer-wins.
type State struct {
	Messages []llm.Message `json:"messages" merge:"append"`

	// Summary is the frontline representative's one-line account of the
	// customer's request.
	Summary string `json:"summary" merge:"replace"`

	// Category is the classifier's verdict.
	Category string `json:"category" merge:"replace"`

	// RefundAuthorized and RefundDenied record the human decision. Both
	// default to false; resume sets exactly one.
	RefundAuthorized bool `json:"refundAuthorized" merge:"replace"`
	RefundDenied     bool `json:"refundDenied" merge:"replace"`

	// Resolution labels how the thread ended (refund_issued,
	// refund_declined, troubleshooting, answered).
	Resolution string `json:"resolution" merge:"replace"`
}

// LastReply returns the newest assistant message, for streamed step events.
func (s State) LastReply() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == llm.RoleAssistant {
			return s.Messages[i].Content
		}
	}
	return ""
}

// Initial builds the state for a new thread from the customer's opening
// message.
func Initial(message string) State {
	return State{
		Messages: []llm.Message{llm.User(message)},
	}
}
