package workflow

import (
	"context"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/oxy-hq/oxy/internal/ctxtree"
	"github.com/oxy-hq/oxy/internal/render"
)

// runLoopSequentialTask resolves values to either a rendered sequence or
// an inline array; for each value it binds {name: {value: v}} in a fresh
// child scope and executes the inner task list, bounded by concurrency
// concurrent iterations, per spec §4.9's LoopSequential dispatch.
func (e *Executor) runLoopSequentialTask(ctx context.Context, ec *ctxtree.ExecutionContext, r *render.Renderer, t Task) (*ctxtree.Context, error) {
	values, err := e.resolveLoopValues(r, t.LoopSeq.Values)
	if err != nil {
		return nil, err
	}

	concurrency := t.LoopSeq.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]*ctxtree.Context, len(values))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, v := range values {
		i, v := i, v
		g.Go(func() error {
			iterEC := ec.ChildExecutor(t.Name + "[" + strconv.Itoa(i) + "]")
			loopScope := render.NewScope("loop", map[string]render.Value{
				t.LoopSeq.Name: render.MappingVal(map[string]render.Value{"value": render.StringVal(v)}),
			})
			iterRenderer := r.WithScope(loopScope)
			if err := e.runTasks(gctx, iterEC, iterRenderer, t.LoopSeq.Tasks); err != nil {
				return err
			}
			results[i] = iterEC.Root()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := ctxtree.NewList()
	for _, res := range results {
		out.Append(res)
	}
	return out, nil
}

func (e *Executor) resolveLoopValues(r *render.Renderer, lv LoopValues) ([]string, error) {
	if lv.Array != nil {
		return lv.Array, nil
	}
	return r.EvalEnumerate(lv.Template)
}
