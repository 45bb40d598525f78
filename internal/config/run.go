package config

import (
	"context"

	"github.com/google/uuid"

	"github.com/oxy-hq/oxy/internal/cache"
	"github.com/oxy-hq/oxy/internal/ctxtree"
	"github.com/oxy-hq/oxy/internal/render"
	"github.com/oxy-hq/oxy/internal/workflow"
)

// RunWorkflow runs wf through the Executor and, on failure, snapshots
// every task output bound so far and saves it through the Runtime's
// FileRunsStore, so a later RetryLastFailure/RetryReplay run can resume
// without re-executing completed tasks. workflow.Executor itself never
// calls RunsStore.SaveRun (its own doc comment: RunsStore is "consulted,
// never implemented" inside that package) — this is the composition
// root's job, and the reason SaveRun exists as part of the interface at
// all.
func (rt *Runtime) RunWorkflow(ctx context.Context, ec *ctxtree.ExecutionContext, r *render.Renderer, wf workflow.Workflow, retry workflow.RetryStrategy) error {
	runErr := rt.Executor.Run(ctx, ec, r, wf, retry)
	if runErr == nil {
		return nil
	}

	run := workflow.Run{
		ID:           uuid.NewString(),
		WorkflowName: wf.Name,
		FailedAt:     firstMissingTaskName(wf, ec),
	}
	for _, t := range wf.Tasks {
		out, ok := ec.Root().Get(t.Name)
		if !ok {
			break
		}
		snapshot, err := cache.Marshal(out)
		if err != nil {
			continue
		}
		run.Outputs = append(run.Outputs, workflow.TaskOutputSnapshot{TaskName: t.Name, Snapshot: snapshot})
	}

	if err := rt.Runs.SaveRun(run); err != nil {
		return err
	}
	return runErr
}

func firstMissingTaskName(wf workflow.Workflow, ec *ctxtree.ExecutionContext) string {
	for _, t := range wf.Tasks {
		if _, ok := ec.Root().Get(t.Name); !ok {
			return t.Name
		}
	}
	return ""
}
