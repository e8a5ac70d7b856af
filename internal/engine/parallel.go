package engine

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/recordflow/recordflow/pkg/recordflow/core"
	"github.com/recordflow/recordflow/pkg/recordflow/models"
)

func (it *Interpreter) runParallel(ctx context.Context, executionID, name string, s *models.ParallelStep, state core.ExecutionState) (string, stepOutcome) {
	base := state.Clone()

	type branchResult struct {
		name string
		res  RunResult
	}
	// Buffered so WaitAny can walk away while losing branches finish.
	results := make(chan branchResult, len(s.Branches))
	for branchName, sub := range s.Branches {
		branchState := base.Clone()
		go func(branchName string, sub *models.SubGraph, branchState core.ExecutionState) {
			res := it.branch().runGraph(ctx, executionID, sub.Steps, sub.InitialStep, branchState, 0)
			results <- branchResult{name: branchName, res: res}
		}(branchName, sub, branchState)
	}

	merged := make(map[string]any, len(s.Branches))
	var merr *multierror.Error
	collect := func(br branchResult) {
		out := map[string]any{
			"status": br.res.Status,
			"output": br.res.FinalState.AddedSince(base),
		}
		if br.res.Err != nil {
			out["error"] = br.res.Err.Error()
		}
		merged[br.name] = out
		if br.res.Status != models.ExecutionCompleted {
			err := br.res.Err
			if err == nil {
				err = fmt.Errorf("finished with status %s", br.res.Status)
			}
			merr = multierror.Append(merr, fmt.Errorf("branch %q: %w", br.name, err))
		}
	}

	if s.WaitFor == models.WaitAny {
		collect(<-results)
	} else {
		for range s.Branches {
			collect(<-results)
		}
	}

	if s.OutputPath != "" {
		state.SetPath(s.OutputPath, merged)
	}

	if err := merr.ErrorOrNil(); err != nil {
		it.journal("ERROR", name, err.Error())
		if s.OnError != models.TerminalStep {
			return s.OnError, stepOutcome{status: statusError}
		}
		return models.TerminalStep, stepOutcome{status: statusError,
			err: fmt.Errorf("step %q: %w", name, err)}
	}
	return s.OnSuccess, stepOutcome{}
}
