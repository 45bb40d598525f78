package workflow

import (
	"context"

	"github.com/oxy-hq/oxy/internal/ctxtree"
	"github.com/oxy-hq/oxy/internal/event"
	"github.com/oxy-hq/oxy/internal/render"
)

// runSubWorkflowTask loads the referenced workflow, renders the variable
// overlay, and recursively invokes the Executor, per spec §4.9's
// Sub-Workflow dispatch. Event passthrough into the parent bus needs no
// dedicated handler here: childEC's Source forks the same underlying Bus
// ec.Source is bound to, so every event the sub-workflow emits already
// appears on the parent bus under the child's source-path segment.
func (e *Executor) runSubWorkflowTask(ctx context.Context, ec *ctxtree.ExecutionContext, r *render.Renderer, t Task) (*ctxtree.Context, error) {
	if e.workflows == nil {
		return nil, &missingCollaboratorError{what: "WorkflowResolver", forTask: t.Name}
	}
	sub, err := e.workflows.ResolveWorkflow(t.SubWorkflow.Src)
	if err != nil {
		return nil, err
	}

	overlay := map[string]render.Value{}
	for k, v := range t.SubWorkflow.Variables {
		renderedKey, err := r.RenderStr(k)
		if err != nil {
			return nil, err
		}
		renderedVal, err := r.RenderStr(v)
		if err != nil {
			return nil, err
		}
		overlay[renderedKey] = render.StringVal(renderedVal)
	}

	childEC := ec.ChildExecutor(t.Name)
	childRenderer := render.New(render.NewScope("sub_workflow_vars", overlay))

	if err := e.Run(ctx, childEC, childRenderer, sub, RetryStrategy{Kind: RetryNone}); err != nil {
		return nil, err
	}

	ec.Source.WriteKind(event.Kind{Name: "SubWorkflow", Attrs: map[string]any{"task": t.Name, "src": t.SubWorkflow.Src}})
	return childEC.Root(), nil
}

type missingCollaboratorError struct {
	what    string
	forTask string
}

func (e *missingCollaboratorError) Error() string {
	return "no " + e.what + " configured, needed by task " + e.forTask
}
