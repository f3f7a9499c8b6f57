package convoflow

// END is the terminal stage identifier.
// Use it as an edge or route target to indicate the conversation is finished.
const END = "__end__"

// StageFunc is the signature for all stages.
// A stage receives the execution context and the current conversation state,
// and returns a delta: a state value whose populated fields are merged into
// the shared state according to each field's declared merge policy. Fields
// left at their zero value are untouched; slice fields tagged append have
// their elements appended.
//
// Returning an error produced by Interrupt pauses the run instead of
// failing it.
//
// Example:
//
//	func respond(ctx convoflow.Context, s SupportState) (SupportState, error) {
//	    var delta SupportState
//	    delta.Messages = []llm.Message{llm.Assistant("working on it")}
//	    return delta, nil
//	}
type StageFunc[S any] func(ctx Context, state S) (S, error)

// RouterFunc inspects state after a stage completes and returns a route key.
// The key is looked up in the Routes table attached to the conditional edge;
// a key absent from the table halts the run with a RouteError.
type RouterFunc[S any] func(ctx Context, state S) string

// Routes maps router keys to stage IDs (or END).
// Every key a router can return must appear here; routing is never implicit.
type Routes map[string]string
