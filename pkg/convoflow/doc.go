// Package convoflow is a conversation workflow engine. A workflow is a
// directed graph of named stages sharing a single typed state; each stage
// returns a delta that is merged into the state under per-field merge
// policies declared with struct tags. Routing between stages is explicit:
// conditional edges carry a route table and an unmapped key halts the run.
//
// Stages can pause a run with Interrupt to wait for external authorization.
// An interrupted run is a successful outcome with work pending: the engine
// persists a checkpoint pending on the interrupting stage and Resume retries
// that stage once the caller has recorded the decision in state.
//
// With WithThread, every completed stage writes a checkpoint before the run
// advances, and runs on the same thread are serialized. Stream delivers one
// event per completed stage plus a terminal event, in execution order.
//
// Basic usage:
//
//	wf, err := convoflow.NewGraph[SupportState]().
//	    AddStage("frontline", frontline).
//	    AddStage("respond", respond).
//	    AddEdge("frontline", "respond").
//	    AddEdge("respond", convoflow.END).
//	    SetEntry("frontline").
//	    Compile()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx := convoflow.NewContext(context.Background(), convoflow.WithModel(client))
//	res, err := wf.Run(ctx, initial, convoflow.WithThread(store, "thread-1"))
package convoflow
