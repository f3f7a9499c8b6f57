package support

import (
	"fmt"
	"strings"

	"github.com/convoflow/convoflow/pkg/convoflow"
	"github.com/convoflow/convoflow/pkg/convoflow/llm"
)

const frontlinePrompt = `You are a frontline customer support representative.
Read the conversation, greet the customer, acknowledge their request, and
tell them it is being looked into. After your reply, on a new line starting
with "SUMMARY:", give a one-line summary of what the customer needs.`

const technicalPrompt = `You are a technical support specialist. Read the
conversation and provide concrete troubleshooting steps for the customer's
problem.`

const billingPrompt = `You are a billing specialist. The customer's refund
has been authorized. Confirm the refund and explain when it will arrive.`

const respondPrompt = `You are closing out a support conversation. Write a
short final message checking whether the customer needs anything else.`

const classifyInstructions = `Classify the customer's request.
BILLING for refunds, charges, and payment issues.
TECHNICAL for product malfunctions and troubleshooting.
RESPOND for anything a general reply can handle.`

// frontline drafts the first reply and summarizes the request.
func frontline(ctx convoflow.Context, s State) (State, error) {
	resp, err := ctx.Model().Complete(ctx, llm.CompletionRequest{
		SystemPrompt: frontlinePrompt,
		Messages:     s.Messages,
	})
	if err != nil {
		return State{}, err
	}

	reply, summary := splitSummary(resp.Content)

	return State{
		Messages: []llm.Message{llm.Assistant(reply)},
		Summary:  summary,
	}, nil
}

// classify asks the model for a routing decision over a closed set of
// labels. Unparseable or out-of-set output fails the stage; the thread is
// never routed on a guess.
func classify(ctx convoflow.Context, s State) (State, error) {
	decision, err := llm.Classify(ctx, ctx.Model(),
		classifyInstructions, s.Summary,
		[]string{CategoryBilling, CategoryTechnical, CategoryRespond})
	if err != nil {
		return State{}, err
	}

	return State{Category: decision}, nil
}

// billing issues a refund reply once authorized. Without a recorded human
// decision it pauses the thread; a denial closes it out politely.
func billing(ctx convoflow.Context, s State) (State, error) {
	if s.RefundDenied {
		return State{
			Messages: []llm.Message{llm.Assistant(
				"I'm sorry, we aren't able to issue a refund for this request. " +
					"Let me know if I can help with anything else.")},
			Resolution: "refund_declined",
		}, nil
	}

	if !s.RefundAuthorized {
		return State{}, convoflow.Interrupt(FlagRefundAuthorization,
			fmt.Sprintf("refund requested: %s", s.Summary))
	}

	resp, err := ctx.Model().Complete(ctx, llm.CompletionRequest{
		SystemPrompt: billingPrompt,
		Messages:     s.Messages,
	})
	if err != nil {
		return State{}, err
	}

	return State{
		Messages:   []llm.Message{llm.Assistant(resp.Content)},
		Resolution: "refund_issued",
	}, nil
}

// technical drafts troubleshooting steps.
func technical(ctx convoflow.Context, s State) (State, error) {
	resp, err := ctx.Model().Complete(ctx, llm.CompletionRequest{
		SystemPrompt: technicalPrompt,
		Messages:     s.Messages,
	})
	if err != nil {
		return State{}, err
	}

	return State{
		Messages:   []llm.Message{llm.Assistant(resp.Content)},
		Resolution: "troubleshooting",
	}, nil
}

// respond writes the closing message.
func respond(ctx convoflow.Context, s State) (State, error) {
	resp, err := ctx.Model().Complete(ctx, llm.CompletionRequest{
		SystemPrompt: respondPrompt,
		Messages:     s.Messages,
	})
	if err != nil {
		return State{}, err
	}

	delta := State{
		Messages: []llm.Message{llm.Assistant(resp.Content)},
	}
	if s.Resolution == "" {
		delta.Resolution = "answered"
	}
	return delta, nil
}

// routeByCategory maps the classifier verdict to the next representative.
func routeByCategory(ctx convoflow.Context, s State) string {
	return strings.ToUpper(strings.TrimSpace(s.Category))
}

// NewWorkflow builds the compiled support workflow.
//
//	frontline -> classify -(BILLING)-> billing ---> respond -> END
//	                       -(TECHNICAL)-> technical -^
//	                       -(RESPOND)----------------^
func NewWorkflow() (*convoflow.Workflow[State], error) {
	return convoflow.NewGraph[State]().
		AddStage("frontline", frontline).
		AddStage("classify", classify).
		AddStage("billing", billing).
		AddStage("technical", technical).
		AddStage("respond", respond).
		AddEdge("frontline", "classify").
		AddConditionalEdge("classify", routeByCategory, convoflow.Routes{
			CategoryBilling:   "billing",
			CategoryTechnical: "technical",
			CategoryRespond:   "respond",
		}).
		AddEdge("billing", "respond").
		AddEdge("technical", "respond").
		AddEdge("respond", convoflow.END).
		SetEntry("frontline").
		Compile()
}

// splitSummary separates the reply body from the trailing SUMMARY: line.
func splitSummary(content string) (reply, summary string) {
	idx := strings.LastIndex(content, "SUMMARY:")
	if idx < 0 {
		return strings.TrimSpace(content), strings.TrimSpace(content)
	}
	reply = strings.TrimSpace(content[:idx])
	summary = strings.TrimSpace(strings.TrimPrefix(content[idx:], "SUMMARY:"))
	if summary == "" {
		summary = reply
	}
	return reply, summary
}
