package benchmarks

import (
	"context"
	"testing"

	"github.com/convoflow/convoflow/pkg/convoflow"
)

// BenchmarkRun_Linear_5 runs a 5-stage linear graph.
func BenchmarkRun_Linear_5(b *testing.B) {
	wf := mustCompile(buildLinearGraph(5))
	ctx := convoflow.NewContext(context.Background())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = wf.Run(ctx, State{})
	}
}

// BenchmarkRun_Linear_50 runs a 50-stage linear graph.
func BenchmarkRun_Linear_50(b *testing.B) {
	wf := mustCompile(buildLinearGraph(50))
	ctx := convoflow.NewContext(context.Background())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = wf.Run(ctx, State{})
	}
}

// BenchmarkRun_Linear_100 runs a 100-stage linear graph.
func BenchmarkRun_Linear_100(b *testing.B) {
	wf := mustCompile(buildLinearGraph(100))
	ctx := convoflow.NewContext(context.Background())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = wf.Run(ctx, State{}, convoflow.WithMaxTurns(200))
	}
}

// BenchmarkRun_Branching runs a graph with a route table.
func BenchmarkRun_Branching(b *testing.B) {
	wf := mustCompile(buildBranchingGraph())
	ctx := convoflow.NewContext(context.Background())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = wf.Run(ctx, State{Value: i})
	}
}

// BenchmarkRun_Loop runs a looping graph (10 iterations).
func BenchmarkRun_Loop(b *testing.B) {
	wf := mustCompile(buildLoopGraph(10))
	ctx := convoflow.NewContext(context.Background())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = wf.Run(ctx, State{})
	}
}

// BenchmarkContextCreation measures context creation overhead.
func BenchmarkContextCreation(b *testing.B) {
	bg := context.Background()
	for i := 0; i < b.N; i++ {
		convoflow.NewContext(bg)
	}
}

// Helper functions

func mustCompile(g *convoflow.Graph[State]) *convoflow.Workflow[State] {
	wf, err := g.Compile()
	if err != nil {
		panic(err)
	}
	return wf
}

func buildLoopGraph(maxIterations int) *convoflow.Graph[State] {
	loopStage := func(ctx convoflow.Context, s State) (State, error) {
		s.Value++
		return s, nil
	}

	router := func(ctx convoflow.Context, s State) string {
		if s.Value >= maxIterations {
			return "DONE"
		}
		return "LOOP"
	}

	return convoflow.NewGraph[State]().
		AddStage("loop", loopStage).
		AddStage("done", noopStage).
		AddConditionalEdge("loop", router, convoflow.Routes{
			"LOOP": "loop",
			"DONE": "done",
		}).
		AddEdge("done", convoflow.END).
		SetEntry("loop")
}
