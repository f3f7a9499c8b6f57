package convoflow

import (
	"time"
)

// ForkJoinConfig configures parallel execution behavior for stages with
// multiple unconditional outgoing edges. Zero values are valid defaults.
type ForkJoinConfig struct {
	// MaxConcurrency limits the number of branches executing simultaneously.
	// 0 = unlimited.
	MaxConcurrency int

	// BestEffort waits for all branches even when one fails, so successful
	// branch deltas are still merged. The default cancels remaining branches
	// on the first error.
	BestEffort bool

	// BranchTimeout bounds the wall-clock time for the whole parallel
	// section. 0 = no timeout.
	BranchTimeout time.Duration
}

// ForkStage marks a point where execution splits into parallel branches.
// Computed during compilation from stages with multiple outgoing edges.
type ForkStage struct {
	// StageID is the forking stage.
	StageID string

	// Branches are the entry stages of each branch.
	Branches []string

	// JoinStageID is where all branches converge, found by post-dominator
	// analysis at compile time.
	JoinStageID string
}

// JoinStage marks a point where parallel branches converge.
type JoinStage struct {
	// StageID is the converging stage.
	StageID string

	// ForkStageID is the corresponding fork.
	ForkStageID string

	// ExpectedBranches are the branch entry stages that must complete.
	ExpectedBranches []string
}

// branchResult holds the outcome of a single branch execution.
type branchResult[S any] struct {
	branchID string
	state    S
	stages   int
	err      error
	duration time.Duration
}
