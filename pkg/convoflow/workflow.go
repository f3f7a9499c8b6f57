package convoflow

import (
	"sync"

	"github.com/convoflow/convoflow/pkg/convoflow/state"
)

// Workflow is an immutable, executable conversation workflow.
// It is created by calling Compile() on a Graph builder.
//
// Workflow is thread-safe and can serve concurrent Run() calls. Runs on the
// same thread are serialized internally; runs on different threads proceed
// in parallel.
type Workflow[S any] struct {
	stages     map[string]StageFunc[S]
	edges      map[string][]string
	routers    map[string]RouterFunc[S]
	routes     map[string]Routes
	entryStage string

	predecessors  map[string][]string
	isConditional map[string]bool
	schema        *state.Schema

	forkJoin   ForkJoinConfig
	forkStages map[string]*ForkStage
	joinStages map[string]*JoinStage

	// threadLocks serializes runs per thread. Keyed by thread ID; values
	// are *sync.Mutex.
	threadLocks sync.Map
}

// EntryStage returns the entry stage ID.
func (w *Workflow[S]) EntryStage() string {
	return w.entryStage
}

// StageIDs returns all stage identifiers. Order is not guaranteed.
func (w *Workflow[S]) StageIDs() []string {
	ids := make([]string, 0, len(w.stages))
	for id := range w.stages {
		ids = append(ids, id)
	}
	return ids
}

// HasStage checks if a stage exists in the workflow.
func (w *Workflow[S]) HasStage(id string) bool {
	_, exists := w.stages[id]
	return exists
}

// Successors returns the stage IDs reachable from the given stage via
// unconditional edges. Returns nil for END or unknown stages; route table
// targets are reported by RouteTable instead.
func (w *Workflow[S]) Successors(id string) []string {
	if id == END {
		return nil
	}
	return w.edges[id]
}

// Predecessors returns the stage IDs with unconditional edges to the given
// stage.
func (w *Workflow[S]) Predecessors(id string) []string {
	return w.predecessors[id]
}

// IsConditional returns true if the stage routes via a route table.
func (w *Workflow[S]) IsConditional(id string) bool {
	return w.isConditional[id]
}

// RouteTable returns a copy of the route table for a stage, or nil if the
// stage has no conditional edge.
func (w *Workflow[S]) RouteTable(id string) Routes {
	table, exists := w.routes[id]
	if !exists {
		return nil
	}
	copied := make(Routes, len(table))
	for key, target := range table {
		copied[key] = target
	}
	return copied
}

// Schema returns the merge schema of the state type.
func (w *Workflow[S]) Schema() *state.Schema {
	return w.schema
}

// IsForkStage returns true if the stage fans out into parallel branches.
func (w *Workflow[S]) IsForkStage(id string) bool {
	_, exists := w.forkStages[id]
	return exists
}

// IsJoinStage returns true if the stage is where parallel branches converge.
func (w *Workflow[S]) IsJoinStage(id string) bool {
	_, exists := w.joinStages[id]
	return exists
}

// HasParallelSections returns true if the workflow contains any fork/join
// structure.
func (w *Workflow[S]) HasParallelSections() bool {
	return len(w.forkStages) > 0
}

// threadLock returns the mutex serializing runs for a thread.
func (w *Workflow[S]) threadLock(threadID string) *sync.Mutex {
	actual, _ := w.threadLocks.LoadOrStore(threadID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

func (w *Workflow[S]) getStage(id string) (StageFunc[S], bool) {
	fn, exists := w.stages[id]
	return fn, exists
}

func (w *Workflow[S]) getRouter(id string) (RouterFunc[S], bool) {
	router, exists := w.routers[id]
	return router, exists
}

func (w *Workflow[S]) getFork(id string) *ForkStage {
	return w.forkStages[id]
}
