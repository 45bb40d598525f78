// Package agentloop implements the Agent Loop (spec §4.7): it iterates
// the LLM Streaming Engine, dispatching tool calls in parallel with
// bounded concurrency and feeding results back, until the model returns a
// content-only reply or the iteration budget is exhausted.
package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/oxy-hq/oxy/internal/ctxtree"
	"github.com/oxy-hq/oxy/internal/llm"
	"github.com/oxy-hq/oxy/internal/observability"
	"github.com/oxy-hq/oxy/internal/oxyerr"
	"golang.org/x/sync/errgroup"
)

var tracer = observability.Tracer("oxy/agentloop")

// ToolOutput is what a Tool returns: a Text or Table Context plus an
// optional truncated rendering used when feeding the result back to the
// LLM (spec §4.7's tool execution contract).
type ToolOutput struct {
	Context   *ctxtree.Context
	Truncated string
}

// Tool is one callable function in the registry.
type Tool interface {
	Name() string
	Call(ctx context.Context, ec *ctxtree.ExecutionContext, args json.RawMessage) (ToolOutput, error)
	Schema() llm.ToolSchema
}

// FatalTool marks a Tool whose errors should abort the loop instead of
// being recovered locally, per spec §4.7's "unless explicitly marked
// fatal".
type FatalTool interface {
	Tool
	Fatal() bool
}

// Registry maps a tool's function name to its implementation.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry builds a Registry from the given tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: map[string]Tool{}}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

// Clear empties the registry. Run calls it once the iteration budget is
// exceeded, before the final synthesize-mode turn, so that turn is sent
// without tools (spec §4.6.5).
func (r *Registry) Clear() { r.tools = map[string]Tool{} }

// Schemas returns every registered tool's schema, in no particular order.
func (r *Registry) Schemas() []llm.ToolSchema {
	out := make([]llm.ToolSchema, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Schema())
	}
	return out
}

func (r *Registry) lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Loop drives one agent request to completion.
type Loop struct {
	engine          *llm.Engine
	registry        *Registry
	model           string
	reasoningEffort string
	maxIterations   int
	toolConcurrency int
}

// Option configures a Loop.
type Option func(*Loop)

func WithReasoningEffort(effort string) Option { return func(l *Loop) { l.reasoningEffort = effort } }
func WithMaxIterations(n int) Option           { return func(l *Loop) { l.maxIterations = n } }
func WithToolConcurrency(n int) Option         { return func(l *Loop) { l.toolConcurrency = n } }

// New builds a Loop bound to engine, model, and registry. registry is
// mutated (Clear) by the Loop itself when the iteration budget is
// exceeded, matching the "engine/loop clears the tool registry" contract
// without needing internal/llm to hold shared mutable tool state.
func New(engine *llm.Engine, model string, registry *Registry, opts ...Option) *Loop {
	l := &Loop{
		engine:          engine,
		registry:        registry,
		model:           model,
		maxIterations:   10,
		toolConcurrency: 4,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes the loop starting from history, returning the final
// assistant content. LLM errors (after the Engine's own retry budget is
// exhausted) propagate immediately; tool errors are recovered into the
// conversation and never abort the loop unless the failing tool is a
// FatalTool reporting Fatal() true, or its error is an *oxyerr.ToolError
// with Fatal set.
func (l *Loop) Run(ctx context.Context, ec *ctxtree.ExecutionContext, history []llm.Message) (string, error) {
	ctx, span := tracer.Start(ctx, "agentloop.run", trace.WithAttributes(attribute.String("model", l.model)))
	defer span.End()

	messages := append([]llm.Message(nil), history...)

	for iteration := 0; ; iteration++ {
		synthesize := iteration >= l.maxIterations
		if synthesize {
			l.registry.Clear()
		}

		req := llm.TurnRequest{
			Model:           l.model,
			Messages:        messages,
			Tools:           l.registry.Schemas(),
			ToolChoice:      llm.ToolChoiceAuto,
			ReasoningEffort: l.reasoningEffort,
			SynthesizeMode:  synthesize,
		}
		if len(req.Tools) == 0 {
			req.ToolChoice = llm.ToolChoiceNone
		}

		result, err := l.engine.RunTurn(ctx, req, ec.Source, false)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", err
		}

		if len(result.ToolCalls) == 0 || synthesize {
			return result.Content, nil
		}

		assistantMsg := llm.Message{Role: llm.RoleAssistant, Content: result.Content, ToolCalls: result.ToolCalls}
		toolMsgs, err := l.dispatchTools(ctx, ec, result.ToolCalls)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", err
		}
		messages = append(messages, assistantMsg)
		messages = append(messages, toolMsgs...)
	}
}

// dispatchTools invokes every tool call in parallel, bounded by
// toolConcurrency, and returns one tool-role message per call in the same
// order the calls were made (required so ToolCall ids correlate 1:1 with
// their result message).
func (l *Loop) dispatchTools(ctx context.Context, ec *ctxtree.ExecutionContext, calls []llm.ToolCall) ([]llm.Message, error) {
	results := make([]llm.Message, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.toolConcurrency)

	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			msg, fatalErr := l.invokeTool(gctx, ec, call)
			results[i] = msg
			return fatalErr
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// invokeTool runs one tool call, catching and serializing any error into
// the tool result message unless the tool is fatal, per spec §4.7.
func (l *Loop) invokeTool(ctx context.Context, ec *ctxtree.ExecutionContext, call llm.ToolCall) (llm.Message, error) {
	tool, ok := l.registry.lookup(call.Name)
	if !ok {
		return toolErrorMessage(call, fmt.Sprintf("unknown tool %q", call.Name)), nil
	}

	out, err := tool.Call(ctx, ec, json.RawMessage(call.Arguments))
	if err != nil {
		var toolErr *oxyerr.ToolError
		fatal := errors.As(err, &toolErr) && toolErr.Fatal
		if ft, ok := tool.(FatalTool); ok && ft.Fatal() {
			fatal = true
		}
		if fatal {
			return llm.Message{}, err
		}
		return toolErrorMessage(call, err.Error()), nil
	}

	content := out.Truncated
	if content == "" && out.Context != nil {
		content = out.Context.Text
	}
	return llm.Message{Role: llm.RoleTool, ToolCallID: call.ID, Content: content}, nil
}

func toolErrorMessage(call llm.ToolCall, message string) llm.Message {
	return llm.Message{Role: llm.RoleTool, ToolCallID: call.ID, Content: fmt.Sprintf("error: %s", message)}
}
