package convoflow

import (
	"fmt"
	"strings"
	"sync"
)

// Graph is a mutable builder for conversation workflows.
// Use NewGraph to create one, then chain AddStage, AddEdge,
// AddConditionalEdge, and SetEntry calls to define the flow.
//
// Graph is NOT thread-safe during building. Construct it from a single
// goroutine, then call Compile() to produce an immutable Workflow that can
// be shared freely.
//
// Example:
//
//	graph := convoflow.NewGraph[SupportState]().
//	    AddStage("frontline", frontline).
//	    AddStage("respond", respond).
//	    AddEdge("frontline", "respond").
//	    AddEdge("respond", convoflow.END).
//	    SetEntry("frontline")
//
//	wf, err := graph.Compile()
type Graph[S any] struct {
	mu         sync.RWMutex
	stages     map[string]StageFunc[S]
	edges      map[string][]string
	routers    map[string]RouterFunc[S]
	routes     map[string]Routes
	entryStage string
	forkJoin   ForkJoinConfig
}

// NewGraph creates a workflow builder for state type S.
// S must be a struct whose exported fields carry merge tags; violations are
// reported by Compile().
func NewGraph[S any]() *Graph[S] {
	return &Graph[S]{
		stages:  make(map[string]StageFunc[S]),
		edges:   make(map[string][]string),
		routers: make(map[string]RouterFunc[S]),
		routes:  make(map[string]Routes),
	}
}

// AddStage adds a named stage to the workflow.
// Returns the graph for method chaining.
//
// Panics if:
//   - id is empty
//   - id is the reserved word "END" or "__end__" (case-insensitive)
//   - id contains whitespace
//   - fn is nil
//   - id already exists in the graph
func (g *Graph[S]) AddStage(id string, fn StageFunc[S]) *Graph[S] {
	if id == "" {
		panic("convoflow: stage ID cannot be empty")
	}

	idLower := strings.ToLower(id)
	if idLower == "end" || idLower == "__end__" {
		panic("convoflow: stage ID cannot be reserved word 'END'")
	}

	if strings.ContainsAny(id, " \t\n\r") {
		panic("convoflow: stage ID cannot contain whitespace")
	}

	if fn == nil {
		panic("convoflow: stage function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.stages[id]; exists {
		panic(fmt.Sprintf("convoflow: duplicate stage ID: %s", id))
	}

	g.stages[id] = fn
	return g
}

// AddEdge adds an unconditional edge from one stage to another.
// The target can be a stage ID or convoflow.END.
// Returns the graph for method chaining.
//
// Edge validation happens at Compile() time, not here, so edges may be
// added in any order.
func (g *Graph[S]) AddEdge(from, to string) *Graph[S] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.edges[from] = append(g.edges[from], to)
	return g
}

// AddConditionalEdge attaches a router and its route table to a stage.
// After the stage completes, the router inspects state and returns a key;
// the key is looked up in routes to find the next stage. A key missing from
// the table halts the run with a RouteError rather than guessing.
//
// Route targets are validated at Compile() time. Returns the graph for
// method chaining.
//
// Panics if router is nil.
//
// Example:
//
//	graph.AddConditionalEdge("classify", routeByCategory, convoflow.Routes{
//	    "BILLING":   "billing",
//	    "TECHNICAL": "technical",
//	    "RESPOND":   "respond",
//	})
func (g *Graph[S]) AddConditionalEdge(from string, router RouterFunc[S], routes Routes) *Graph[S] {
	if router == nil {
		panic("convoflow: router function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.routers[from] = router
	g.routes[from] = routes
	return g
}

// SetEntry designates the entry stage. Must be called before Compile().
// Returns the graph for method chaining.
func (g *Graph[S]) SetEntry(id string) *Graph[S] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.entryStage = id
	return g
}

// SetForkJoin configures parallel execution for stages with multiple
// unconditional outgoing edges. Returns the graph for method chaining.
func (g *Graph[S]) SetForkJoin(cfg ForkJoinConfig) *Graph[S] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.forkJoin = cfg
	return g
}
