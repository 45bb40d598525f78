package workflow

import (
	"context"

	"github.com/oxy-hq/oxy/internal/ctxtree"
	"github.com/oxy-hq/oxy/internal/event"
	"github.com/oxy-hq/oxy/internal/render"
	"github.com/oxy-hq/oxy/internal/semantic"
)

// runSemanticQueryTask hands the query off to the Compiler, which never
// returns a Go error: validation, SQL-generation, and execution failures
// come back embedded in the returned Context's ValidationErr/SQLErr
// fields instead, per spec §4.8.3. Variable resolution follows task >
// project > OXY_VAR_* env precedence (spec §4.8.2 step 8); no enclosing
// Agent scope reaches a workflow-level SemanticQuery task, so the Agent
// tier of that precedence is always empty here.
func (e *Executor) runSemanticQueryTask(ctx context.Context, ec *ctxtree.ExecutionContext, r *render.Renderer, t Task) (*ctxtree.Context, error) {
	vars := semantic.VariableScope{
		Task:    t.SemanticQuery.Variables,
		Project: e.projectVars,
	}
	out := e.compiler.Run(ctx, r, t.SemanticQuery.Query, vars)
	ec.Source.WriteKind(event.Kind{Name: "SemanticQuery", Attrs: map[string]any{"task": t.Name}})
	return out, nil
}
