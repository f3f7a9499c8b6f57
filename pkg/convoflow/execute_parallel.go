package convoflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/convoflow/convoflow/pkg/convoflow/state"
)

// executeForkJoin runs all branches of a fork in parallel and merges their
// deltas back into the shared state at the join point.
//
// Each branch starts from a copy of the fork-point state and runs until it
// reaches the join stage (or END). Merging follows the state schema: append
// fields take each branch's additions past the fork point, replace fields
// take the last changed value in branch order. Branch order is the sorted
// branch IDs, so merges are deterministic.
//
// By default the first branch error cancels the rest. With BestEffort the
// surviving branches still complete and merge; the error is returned after,
// alongside the merged survivor state.
//
// The second return value is the number of stages the merged branches
// actually executed, so a branch that chains several stages counts each one.
func (w *Workflow[S]) executeForkJoin(ec *executionContext, fork *ForkStage, base S, cfg *runConfig) (S, int, error) {
	fjCfg := w.forkJoin

	var sem chan struct{}
	if fjCfg.MaxConcurrency > 0 {
		sem = make(chan struct{}, fjCfg.MaxConcurrency)
	}

	var branchCtx context.Context
	var cancel context.CancelFunc
	if fjCfg.BranchTimeout > 0 {
		branchCtx, cancel = context.WithTimeout(ec.Context, fjCfg.BranchTimeout)
	} else {
		branchCtx, cancel = context.WithCancel(ec.Context)
	}
	defer cancel()

	results := make(chan branchResult[S], len(fork.Branches))
	var wg sync.WaitGroup

	for _, branchID := range fork.Branches {
		wg.Add(1)
		go func(bID string) {
			defer wg.Done()

			if sem != nil {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-branchCtx.Done():
					results <- branchResult[S]{branchID: bID, err: branchCtx.Err()}
					return
				}
			}

			results <- w.executeBranch(ec.withInner(branchCtx), bID, base, fork.JoinStageID, cfg)
		}(branchID)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	byBranch := make(map[string]S, len(fork.Branches))
	stagesRun := 0
	var firstErr error
	var failedBranch string

	for result := range results {
		if result.err != nil {
			if firstErr == nil {
				firstErr = result.err
				failedBranch = result.branchID
				if !fjCfg.BestEffort {
					cancel()
				}
			}
			continue
		}
		byBranch[result.branchID] = result.state
		stagesRun += result.stages
	}

	if firstErr != nil && !fjCfg.BestEffort {
		return base, 0, &ForkJoinError{
			ForkStageID: fork.StageID,
			BranchID:    failedBranch,
			Err:         firstErr,
		}
	}

	ordered := make([]string, 0, len(byBranch))
	for bID := range byBranch {
		ordered = append(ordered, bID)
	}
	sort.Strings(ordered)

	branchStates := make([]S, 0, len(ordered))
	for _, bID := range ordered {
		branchStates = append(branchStates, byBranch[bID])
	}

	merged := state.MergeBranches(w.schema, base, branchStates)

	if firstErr != nil {
		return merged, stagesRun, &ForkJoinError{
			ForkStageID: fork.StageID,
			BranchID:    failedBranch,
			Err:         firstErr,
		}
	}

	return merged, stagesRun, nil
}

// executeBranch runs a single branch from its entry stage until the join
// stage or END. Branches do not checkpoint or emit events; the parallel
// section persists once, after the merge, and reports every stage its
// branches executed in the run's step count.
func (w *Workflow[S]) executeBranch(ec *executionContext, branchID string, st S, joinStageID string, cfg *runConfig) branchResult[S] {
	start := time.Now()
	current := branchID
	turns := 0
	stages := 0

	for current != joinStageID && current != END {
		turns++
		if turns > cfg.maxTurns {
			return branchResult[S]{
				branchID: branchID,
				err:      &MaxTurnsError{Max: cfg.maxTurns, LastStageID: current, State: st},
				duration: time.Since(start),
			}
		}

		select {
		case <-ec.Done():
			return branchResult[S]{
				branchID: branchID,
				err:      &CancellationError{StageID: current, State: st, Cause: ec.Err()},
				duration: time.Since(start),
			}
		default:
		}

		delta, err := w.executeStage(ec, cfg, current, st)
		if err != nil {
			return branchResult[S]{
				branchID: branchID,
				state:    st,
				err:      err,
				duration: time.Since(start),
			}
		}
		st = state.Merge(w.schema, st, delta)
		stages++

		next, err := w.nextStage(ec, st, current)
		if err != nil {
			return branchResult[S]{
				branchID: branchID,
				state:    st,
				err:      err,
				duration: time.Since(start),
			}
		}
		current = next
	}

	return branchResult[S]{
		branchID: branchID,
		state:    st,
		stages:   stages,
		duration: time.Since(start),
	}
}
