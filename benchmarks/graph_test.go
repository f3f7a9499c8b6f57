package benchmarks

import (
	"testing"

	"github.com/convoflow/convoflow/pkg/convoflow"
)

// State for benchmarks.
type State struct {
	Value int `merge:"replace"`
}

// noopStage does minimal work to measure framework overhead.
func noopStage(ctx convoflow.Context, s State) (State, error) {
	return s, nil
}

// BenchmarkNewGraph measures graph creation overhead.
func BenchmarkNewGraph(b *testing.B) {
	for i := 0; i < b.N; i++ {
		convoflow.NewGraph[State]()
	}
}

// BenchmarkAddStage measures stage addition overhead.
func BenchmarkAddStage(b *testing.B) {
	for i := 0; i < b.N; i++ {
		graph := convoflow.NewGraph[State]()
		graph.AddStage("stage", noopStage)
	}
}

// BenchmarkAddStage_100 measures adding 100 stages.
func BenchmarkAddStage_100(b *testing.B) {
	for i := 0; i < b.N; i++ {
		graph := convoflow.NewGraph[State]()
		for j := 0; j < 100; j++ {
			graph.AddStage(stageID(j), noopStage)
		}
	}
}

// BenchmarkCompile_Linear_5 compiles a 5-stage linear graph.
func BenchmarkCompile_Linear_5(b *testing.B) {
	graph := buildLinearGraph(5)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = graph.Compile()
	}
}

// BenchmarkCompile_Linear_50 compiles a 50-stage linear graph.
func BenchmarkCompile_Linear_50(b *testing.B) {
	graph := buildLinearGraph(50)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = graph.Compile()
	}
}

// BenchmarkCompile_Linear_100 compiles a 100-stage linear graph.
func BenchmarkCompile_Linear_100(b *testing.B) {
	graph := buildLinearGraph(100)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = graph.Compile()
	}
}

// BenchmarkCompile_Branching compiles a graph with a route table.
func BenchmarkCompile_Branching(b *testing.B) {
	graph := buildBranchingGraph()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = graph.Compile()
	}
}

// Helper functions

func stageID(n int) string {
	return string(rune('a'+n%26)) + string(rune('0'+n/26%10))
}

func buildLinearGraph(n int) *convoflow.Graph[State] {
	graph := convoflow.NewGraph[State]()
	for i := 0; i < n; i++ {
		graph.AddStage(stageID(i), noopStage)
	}
	for i := 0; i < n-1; i++ {
		graph.AddEdge(stageID(i), stageID(i+1))
	}
	graph.AddEdge(stageID(n-1), convoflow.END)
	graph.SetEntry(stageID(0))
	return graph
}

func buildBranchingGraph() *convoflow.Graph[State] {
	router := func(ctx convoflow.Context, s State) string {
		if s.Value%2 == 0 {
			return "EVEN"
		}
		return "ODD"
	}

	return convoflow.NewGraph[State]().
		AddStage("start", noopStage).
		AddStage("even", noopStage).
		AddStage("odd", noopStage).
		AddStage("merge", noopStage).
		AddConditionalEdge("start", router, convoflow.Routes{
			"EVEN": "even",
			"ODD":  "odd",
		}).
		AddEdge("even", "merge").
		AddEdge("odd", "merge").
		AddEdge("merge", convoflow.END).
		SetEntry("start")
}
