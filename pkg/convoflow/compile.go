package convoflow

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/convoflow/convoflow/pkg/convoflow/state"
)

// Compile validates the workflow definition and creates an executable
// Workflow. All validation failures are collected and returned together
// inside a DefinitionError.
//
// Validation checks:
//  1. The state type S declares a valid merge schema
//  2. Entry stage is set and exists
//  3. All edge sources and targets reference existing stages or END
//  4. Every route table is non-empty and every route target exists
//  5. A path from entry to END exists
//
// Stages unreachable from the entry are logged as warnings but do not fail
// compilation.
func (g *Graph[S]) Compile() (*Workflow[S], error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error

	schema, err := state.SchemaOf[S]()
	if err != nil {
		errs = append(errs, err)
	}

	if g.entryStage == "" {
		errs = append(errs, ErrNoEntryStage)
	} else if _, exists := g.stages[g.entryStage]; !exists {
		errs = append(errs, fmt.Errorf("%w: %s", ErrEntryNotFound, g.entryStage))
	}

	for from, targets := range g.edges {
		if from != END {
			if _, exists := g.stages[from]; !exists {
				errs = append(errs, fmt.Errorf("%w: edge source '%s' does not exist", ErrStageNotFound, from))
			}
		}

		for _, to := range targets {
			if to != END {
				if _, exists := g.stages[to]; !exists {
					errs = append(errs, fmt.Errorf("%w: edge target '%s' does not exist", ErrStageNotFound, to))
				}
			}
		}
	}

	for from, routes := range g.routes {
		if _, exists := g.stages[from]; !exists {
			errs = append(errs, fmt.Errorf("%w: conditional edge source '%s' does not exist", ErrStageNotFound, from))
		}

		if len(routes) == 0 {
			errs = append(errs, fmt.Errorf("%w: stage '%s'", ErrEmptyRouteTable, from))
		}

		for key, target := range routes {
			if target != END {
				if _, exists := g.stages[target]; !exists {
					errs = append(errs, fmt.Errorf("%w: route '%s' from stage '%s' targets '%s'",
						ErrStageNotFound, key, from, target))
				}
			}
		}
	}

	if g.entryStage != "" {
		if _, exists := g.stages[g.entryStage]; exists {
			if !g.hasPathToEnd() {
				errs = append(errs, ErrNoPathToEnd)
			}
		}
	}

	g.warnUnreachableStages()

	if len(errs) > 0 {
		return nil, &DefinitionError{Errs: errors.Join(errs...)}
	}

	return g.buildWorkflow(schema), nil
}

// MustCompile is like Compile but panics on a definition error.
// Intended for workflows defined at program startup.
func (g *Graph[S]) MustCompile() *Workflow[S] {
	wf, err := g.Compile()
	if err != nil {
		panic(err)
	}
	return wf
}

// successorsOf returns all static successors of a stage: simple edge targets
// plus route table targets. Route tables make conditional reachability exact.
func (g *Graph[S]) successorsOf(id string) []string {
	var out []string
	out = append(out, g.edges[id]...)
	for _, target := range g.routes[id] {
		out = append(out, target)
	}
	return out
}

// hasPathToEnd checks if there is a path from the entry stage to END,
// propagating reachability backwards from END until a fixed point.
func (g *Graph[S]) hasPathToEnd() bool {
	canReachEnd := map[string]bool{END: true}

	changed := true
	for changed {
		changed = false
		for id := range g.stages {
			if canReachEnd[id] {
				continue
			}
			for _, to := range g.successorsOf(id) {
				if canReachEnd[to] {
					canReachEnd[id] = true
					changed = true
					break
				}
			}
		}
	}

	return canReachEnd[g.entryStage]
}

// warnUnreachableStages logs warnings for stages not reachable from entry.
func (g *Graph[S]) warnUnreachableStages() {
	if g.entryStage == "" {
		return
	}
	if _, exists := g.stages[g.entryStage]; !exists {
		return
	}

	reachable := g.findReachableStages()

	for id := range g.stages {
		if !reachable[id] {
			slog.Warn("stage is unreachable from entry", "stage", id)
		}
	}
}

// findReachableStages returns the set of stages reachable from the entry.
func (g *Graph[S]) findReachableStages() map[string]bool {
	reachable := map[string]bool{g.entryStage: true}
	queue := []string{g.entryStage}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, target := range g.successorsOf(current) {
			if target != END && !reachable[target] {
				reachable[target] = true
				queue = append(queue, target)
			}
		}
	}

	return reachable
}

// buildWorkflow creates the immutable Workflow from the builder state.
func (g *Graph[S]) buildWorkflow(schema *state.Schema) *Workflow[S] {
	stages := make(map[string]StageFunc[S], len(g.stages))
	for id, fn := range g.stages {
		stages[id] = fn
	}

	edges := make(map[string][]string, len(g.edges))
	for from, targets := range g.edges {
		edges[from] = make([]string, len(targets))
		copy(edges[from], targets)
	}

	routers := make(map[string]RouterFunc[S], len(g.routers))
	for from, router := range g.routers {
		routers[from] = router
	}

	routes := make(map[string]Routes, len(g.routes))
	for from, table := range g.routes {
		copied := make(Routes, len(table))
		for key, target := range table {
			copied[key] = target
		}
		routes[from] = copied
	}

	predecessors := make(map[string][]string)
	for from, targets := range edges {
		for _, to := range targets {
			if to != END {
				predecessors[to] = append(predecessors[to], from)
			}
		}
	}

	isConditional := make(map[string]bool, len(routers))
	for from := range routers {
		isConditional[from] = true
	}

	forkStages, joinStages := detectForkJoin(edges, isConditional)

	return &Workflow[S]{
		stages:        stages,
		edges:         edges,
		routers:       routers,
		routes:        routes,
		entryStage:    g.entryStage,
		predecessors:  predecessors,
		isConditional: isConditional,
		schema:        schema,
		forkJoin:      g.forkJoin,
		forkStages:    forkStages,
		joinStages:    joinStages,
	}
}

// detectForkJoin identifies fork and join points. A fork is a stage with
// multiple unconditional outgoing edges; its join is the first stage all
// branches converge on (post-dominator).
func detectForkJoin(edges map[string][]string, isConditional map[string]bool) (map[string]*ForkStage, map[string]*JoinStage) {
	forkStages := make(map[string]*ForkStage)
	joinStages := make(map[string]*JoinStage)

	for from, targets := range edges {
		if len(targets) > 1 && !isConditional[from] {
			fork := &ForkStage{
				StageID:  from,
				Branches: make([]string, len(targets)),
			}
			copy(fork.Branches, targets)
			fork.JoinStageID = findJoinStage(targets, edges)

			forkStages[from] = fork

			if fork.JoinStageID != "" && fork.JoinStageID != END {
				joinStages[fork.JoinStageID] = &JoinStage{
					StageID:          fork.JoinStageID,
					ForkStageID:      from,
					ExpectedBranches: fork.Branches,
				}
			}
		}
	}

	return forkStages, joinStages
}

// findJoinStage finds the convergence point of a fork: the closest stage
// reachable from every branch.
func findJoinStage(branches []string, edges map[string][]string) string {
	if len(branches) == 0 {
		return ""
	}

	branchReachable := make([]map[string]bool, len(branches))
	for i, branch := range branches {
		branchReachable[i] = computeReachable(branch, edges)
	}

	common := make(map[string]bool)
	for stage := range branchReachable[0] {
		common[stage] = true
	}
	for i := 1; i < len(branches); i++ {
		for stage := range common {
			if !branchReachable[i][stage] {
				delete(common, stage)
			}
		}
	}

	if len(common) == 0 {
		return ""
	}

	return findClosestStage(branches[0], common, edges)
}

// computeReachable returns all stages reachable from start, including start.
func computeReachable(start string, edges map[string][]string) map[string]bool {
	reachable := map[string]bool{start: true}
	queue := []string{start}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range edges[current] {
			if next != END && !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	return reachable
}

// findClosestStage finds the nearest stage in targets via BFS from start.
func findClosestStage(start string, targets map[string]bool, edges map[string][]string) string {
	if targets[start] {
		return start
	}

	visited := map[string]bool{start: true}
	queue := []string{start}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range edges[current] {
			if next == END {
				continue
			}
			if targets[next] {
				return next
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}

	return ""
}
