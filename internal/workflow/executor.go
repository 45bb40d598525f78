package workflow

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/oxy-hq/oxy/internal/agentloop"
	"github.com/oxy-hq/oxy/internal/cache"
	"github.com/oxy-hq/oxy/internal/connector"
	"github.com/oxy-hq/oxy/internal/ctxtree"
	"github.com/oxy-hq/oxy/internal/event"
	"github.com/oxy-hq/oxy/internal/llm"
	"github.com/oxy-hq/oxy/internal/observability"
	"github.com/oxy-hq/oxy/internal/oxyerr"
	"github.com/oxy-hq/oxy/internal/render"
	"github.com/oxy-hq/oxy/internal/semantic"
)

var tracer = observability.Tracer("oxy/workflow")

// AgentSpec is everything the executor needs to run an Agent task,
// resolved from the named agent config by an AgentResolver.
type AgentSpec struct {
	Model              string
	SystemInstructions string
	ReasoningEffort    string
	Tools              []agentloop.Tool
	MaxIterations      int
	ToolConcurrency    int
}

// AgentResolver looks up a configured agent by its reference name.
type AgentResolver interface {
	ResolveAgent(ref string) (AgentSpec, error)
}

// WorkflowResolver loads a sub-workflow definition by its src reference.
type WorkflowResolver interface {
	ResolveWorkflow(src string) (Workflow, error)
}

// ConnectorResolver maps a database ref to the Connector serving it.
type ConnectorResolver func(databaseRef string) (connector.Connector, error)

// Executor runs a Workflow over an ExecutionContext, per spec §4.9.
type Executor struct {
	engine      *llm.Engine
	agents      AgentResolver
	workflows   WorkflowResolver
	connectors  ConnectorResolver
	compiler    *semantic.Compiler
	cache       *cache.Cache
	runs        RunsStore
	projectVars map[string]string
}

// Option configures an Executor.
type Option func(*Executor)

func WithRunsStore(s RunsStore) Option { return func(e *Executor) { e.runs = s } }

// WithProjectVariables sets the project-level variable scope consulted by
// SemanticQuery tasks, below task variables and above OXY_VAR_* env vars
// in the spec §4.8.2 precedence order.
func WithProjectVariables(vars map[string]string) Option {
	return func(e *Executor) { e.projectVars = vars }
}

// NewExecutor builds an Executor. cache may be nil if no task in any
// workflow this Executor runs declares cache.enabled.
func NewExecutor(engine *llm.Engine, agents AgentResolver, workflows WorkflowResolver, connectors ConnectorResolver, compiler *semantic.Compiler, c *cache.Cache, opts ...Option) *Executor {
	e := &Executor{engine: engine, agents: agents, workflows: workflows, connectors: connectors, compiler: compiler, cache: c}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes wf over ec under the given retry strategy, emitting
// Started/Finished events at the workflow boundary and dispatching every
// task in order. The workflow's own variables are pushed as the lowest
// explicit renderer scope, below any task/loop-local scope a nested task
// pushes for itself.
func (e *Executor) Run(ctx context.Context, ec *ctxtree.ExecutionContext, r *render.Renderer, wf Workflow, retry RetryStrategy) error {
	ctx, span := tracer.Start(ctx, "workflow.run", trace.WithAttributes(attribute.String("workflow.name", wf.Name)))
	defer span.End()

	ec.Source.WriteStarted(wf.Name, nil)

	wfScope := render.NewScope("workflow", stringMapToValues(wf.Variables))
	r = r.WithScope(wfScope)

	var err error
	switch retry.Kind {
	case RetryNone:
		if retry.Variables != nil {
			r = r.WithScope(render.NewScope("task", stringMapToValues(retry.Variables)))
		}
		err = e.runTasks(ctx, ec, r, wf.Tasks)
	case RetryLastFailure:
		err = e.runWithResume(ctx, ec, r, wf, func() (Run, error) { return e.runs.LastFailedRun(wf.Name) })
	case RetryReplay:
		err = e.runWithResume(ctx, ec, r, wf, func() (Run, error) {
			return e.runs.LoadRun(wf.Name, retry.ReplayID, retry.RunIndex)
		})
	default:
		err = fmt.Errorf("unknown retry strategy %d", retry.Kind)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	ec.Source.WriteFinished(wf.Name, nil, err)
	return err
}

// runWithResume replays a prior run's saved task outputs for every task
// before the first unfinished one, binding them directly into ec without
// re-executing, then continues normal dispatch from there.
func (e *Executor) runWithResume(ctx context.Context, ec *ctxtree.ExecutionContext, r *render.Renderer, wf Workflow, load func() (Run, error)) error {
	if e.runs == nil {
		return &oxyerr.RuntimeError{Message: "no RunsStore configured for a resuming retry strategy"}
	}
	run, err := load()
	if err != nil {
		return err
	}

	resumeFrom := firstUnfinishedIndex(wf.Tasks, run)
	snapshots := snapshotByName(run)
	for _, t := range wf.Tasks[:resumeFrom] {
		data, ok := snapshots[t.Name]
		if !ok {
			continue
		}
		out, err := cache.Unmarshal(data)
		if err != nil {
			return fmt.Errorf("restoring saved output for task %q: %w", t.Name, err)
		}
		ec.BindOutput(t.Name, out)
		r = r.WithScope(render.NewScope("outputs", map[string]render.Value{t.Name: contextToValue(out)}))
	}
	return e.runTasks(ctx, ec, r, wf.Tasks[resumeFrom:])
}

// runTasks dispatches tasks in order, threading the Renderer forward: each
// task's produced Context is bound into the next task's scope chain under
// its task name (e.g. a later task can address `{{ q.row_count }}`),
// mirroring how its output is already bound into ec's Context tree.
func (e *Executor) runTasks(ctx context.Context, ec *ctxtree.ExecutionContext, r *render.Renderer, tasks []Task) error {
	for _, t := range tasks {
		next, err := e.runTask(ctx, ec, r, t)
		if err != nil {
			return fmt.Errorf("task %q: %w", t.Name, err)
		}
		r = next
	}
	return nil
}

// runTask dispatches one task by kind, wraps it in the Cache Layer when
// cache.enabled is set, and binds its produced Context under the task's
// name, per spec §3.1 ("each task's produced Context is bound under its
// task name in the enclosing Map"). It returns a Renderer with that output
// additionally bound as a top-level scope entry under the task's name, so
// later sibling tasks can address it in a template.
func (e *Executor) runTask(ctx context.Context, ec *ctxtree.ExecutionContext, r *render.Renderer, t Task) (updated *render.Renderer, err error) {
	ctx, span := tracer.Start(ctx, "workflow.task",
		trace.WithAttributes(attribute.String("task.name", t.Name), attribute.Int("task.kind", int(t.Kind))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ec.Source.WriteKind(event.Kind{Name: "TaskStarted", Attrs: map[string]any{"name": t.Name}})

	dispatch := func(ctx context.Context) (*ctxtree.Context, []cache.ToolCallRecord, error) {
		out, toolCalls, err := e.dispatch(ctx, ec, r, t)
		return out, toolCalls, err
	}

	var taskOut *ctxtree.Context
	if t.Cache != nil && t.Cache.Enabled && e.cache != nil {
		path, rerr := r.RenderStr(t.Cache.Path)
		if rerr != nil {
			err = rerr
			return nil, err
		}
		kind := cache.KindFile
		if t.Kind == KindAgent {
			kind = cache.KindAgent
		}
		taskOut, err = e.cache.Run(ctx, ec.Source, kind, path, dispatch)
	} else {
		taskOut, _, err = dispatch(ctx)
	}
	if err != nil {
		return nil, err
	}

	ec.BindOutput(t.Name, taskOut)
	r = r.WithScope(render.NewScope("outputs", map[string]render.Value{t.Name: contextToValue(taskOut)}))
	if t.Export != nil {
		if err = e.writeExport(ec, r, t, taskOut); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// dispatch runs one task's kind-specific executable. Only Agent tasks
// produce a non-nil tool-call ledger.
func (e *Executor) dispatch(ctx context.Context, ec *ctxtree.ExecutionContext, r *render.Renderer, t Task) (*ctxtree.Context, []cache.ToolCallRecord, error) {
	switch t.Kind {
	case KindAgent:
		return e.runAgentTask(ctx, ec, r, t)
	case KindExecuteSQL:
		out, err := e.runExecuteSQLTask(ctx, ec, r, t)
		return out, nil, err
	case KindFormatter:
		out, err := e.runFormatterTask(ec, r, t)
		return out, nil, err
	case KindSubWorkflow:
		out, err := e.runSubWorkflowTask(ctx, ec, r, t)
		return out, nil, err
	case KindLoopSequential:
		out, err := e.runLoopSequentialTask(ctx, ec, r, t)
		return out, nil, err
	case KindSemanticQuery:
		out, err := e.runSemanticQueryTask(ctx, ec, r, t)
		return out, nil, err
	default:
		ec.Source.WriteKind(event.Kind{Name: "TaskUnknown", Attrs: map[string]any{"name": t.Name}})
		return ctxtree.NewNone(), nil, nil
	}
}

func stringMapToValues(m map[string]string) map[string]render.Value {
	out := make(map[string]render.Value, len(m))
	for k, v := range m {
		out[k] = render.StringVal(v)
	}
	return out
}
