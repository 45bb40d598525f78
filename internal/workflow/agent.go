package workflow

import (
	"context"
	"sort"
	"strconv"

	"github.com/oxy-hq/oxy/internal/agentloop"
	"github.com/oxy-hq/oxy/internal/cache"
	"github.com/oxy-hq/oxy/internal/ctxtree"
	"github.com/oxy-hq/oxy/internal/event"
	"github.com/oxy-hq/oxy/internal/llm"
	"github.com/oxy-hq/oxy/internal/render"
)

// runAgentTask renders the prompt, builds the named agent's Loop, and
// runs it. If consistency_run > 1, the agent runs that many times
// concurrently and the modal answer (by exact string match) wins, per
// spec §4.9's ExecuteSQL/Agent dispatch table.
func (e *Executor) runAgentTask(ctx context.Context, ec *ctxtree.ExecutionContext, r *render.Renderer, t Task) (*ctxtree.Context, []cache.ToolCallRecord, error) {
	prompt, err := r.RenderStr(t.Agent.Prompt)
	if err != nil {
		return nil, nil, err
	}

	spec, err := e.agents.ResolveAgent(t.Agent.AgentRef)
	if err != nil {
		return nil, nil, err
	}

	childEC := ec.ChildExecutor(t.Name)

	runs := t.Agent.ConsistencyRun
	if runs < 1 {
		runs = 1
	}

	if runs == 1 {
		content, calls, err := e.runAgentOnce(ctx, childEC, spec, prompt)
		if err != nil {
			return nil, nil, err
		}
		ec.Source.WriteKind(event.Kind{Name: "Agent", Attrs: map[string]any{"task": t.Name}})
		return ctxtree.NewText(content), calls, nil
	}

	return e.runAgentConsistency(ctx, childEC, ec, t, spec, prompt, runs)
}

func (e *Executor) runAgentOnce(ctx context.Context, ec *ctxtree.ExecutionContext, spec AgentSpec, prompt string) (string, []cache.ToolCallRecord, error) {
	registry := agentloop.NewRegistry(spec.Tools...)
	loop := agentloop.New(e.engine, spec.Model, registry,
		agentloop.WithReasoningEffort(spec.ReasoningEffort),
		agentloop.WithMaxIterations(orDefault(spec.MaxIterations, 10)),
		agentloop.WithToolConcurrency(orDefault(spec.ToolConcurrency, 4)),
	)

	history := []llm.Message{}
	if spec.SystemInstructions != "" {
		history = append(history, llm.Message{Role: llm.RoleSystem, Content: spec.SystemInstructions})
	}
	history = append(history, llm.Message{Role: llm.RoleUser, Content: prompt})

	content, err := loop.Run(ctx, ec, history)
	return content, nil, err
}

// runAgentConsistency runs the agent `runs` times in parallel, selecting
// the modal answer. Ties break by the lowest run index, a simple
// deterministic tiebreak the original's mode-selection left unspecified.
func (e *Executor) runAgentConsistency(ctx context.Context, childEC *ctxtree.ExecutionContext, parentEC *ctxtree.ExecutionContext, t Task, spec AgentSpec, prompt string, runs int) (*ctxtree.Context, []cache.ToolCallRecord, error) {
	type attempt struct {
		content string
		err     error
	}
	results := make([]attempt, runs)

	errs := make(chan error, runs)
	for i := 0; i < runs; i++ {
		i := i
		go func() {
			iterEC := childEC.ChildExecutor(runLabel(i))
			content, _, err := e.runAgentOnce(ctx, iterEC, spec, prompt)
			results[i] = attempt{content: content, err: err}
			errs <- err
		}()
	}
	var firstErr error
	for i := 0; i < runs; i++ {
		if err := <-errs; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, nil, firstErr
	}

	counts := map[string]int{}
	order := map[string]int{}
	for i, a := range results {
		counts[a.content]++
		if _, seen := order[a.content]; !seen {
			order[a.content] = i
		}
	}
	candidates := make([]string, 0, len(counts))
	for k := range counts {
		candidates = append(candidates, k)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if counts[candidates[i]] != counts[candidates[j]] {
			return counts[candidates[i]] > counts[candidates[j]]
		}
		return order[candidates[i]] < order[candidates[j]]
	})

	parentEC.Source.WriteKind(event.Kind{Name: "Agent", Attrs: map[string]any{"task": t.Name, "consistency_run": runs}})
	return ctxtree.NewText(candidates[0]), nil, nil
}

func runLabel(i int) string {
	return "run_" + strconv.Itoa(i)
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
