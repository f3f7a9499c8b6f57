package convoflow

import (
	"context"
)

// Test state types used across tests

// convState is the conversation state shared by most tests.
type convState struct {
	Messages []string `json:"messages" merge:"append"`
	Category string   `json:"category" merge:"replace"`
	Draft    string   `json:"draft" merge:"replace"`
	Approved bool     `json:"approved" merge:"replace"`
	Turn     int      `json:"turn" merge:"replace"`
}

// LastReply lets streamed step events carry the latest message.
func (s convState) LastReply() string {
	if len(s.Messages) == 0 {
		return ""
	}
	return s.Messages[len(s.Messages)-1]
}

// Helper stage functions

// say creates a stage that appends one message.
func say(msg string) StageFunc[convState] {
	return func(ctx Context, s convState) (convState, error) {
		var delta convState
		delta.Messages = []string{msg}
		return delta, nil
	}
}

// makeTrackingStage creates a stage that records its execution order.
func makeTrackingStage(name string, tracker *[]string) StageFunc[convState] {
	return func(ctx Context, s convState) (convState, error) {
		*tracker = append(*tracker, name)
		var delta convState
		delta.Messages = []string{name}
		return delta, nil
	}
}

// makeFailingStage creates a stage that returns the given error.
func makeFailingStage(err error) StageFunc[convState] {
	return func(ctx Context, s convState) (convState, error) {
		return convState{}, err
	}
}

// makePanicStage creates a stage that panics with the given value.
func makePanicStage(value any) StageFunc[convState] {
	return func(ctx Context, s convState) (convState, error) {
		panic(value)
	}
}

// passthrough returns an empty delta.
func passthrough(ctx Context, s convState) (convState, error) {
	return convState{}, nil
}

// testCtx creates a simple test context.
func testCtx() Context {
	return NewContext(context.Background())
}

// linearWorkflow builds a three-stage linear workflow for checkpoint and
// event tests.
func linearWorkflow() *Workflow[convState] {
	return NewGraph[convState]().
		AddStage("greet", say("hello")).
		AddStage("work", say("working")).
		AddStage("close", say("done")).
		AddEdge("greet", "work").
		AddEdge("work", "close").
		AddEdge("close", END).
		SetEntry("greet").
		MustCompile()
}
