package workflow

import (
	"github.com/oxy-hq/oxy/internal/ctxtree"
	"github.com/oxy-hq/oxy/internal/event"
	"github.com/oxy-hq/oxy/internal/render"
)

// runFormatterTask renders a template against the Context and writes a
// Text, per spec §4.9's Formatter dispatch.
func (e *Executor) runFormatterTask(ec *ctxtree.ExecutionContext, r *render.Renderer, t Task) (*ctxtree.Context, error) {
	output, err := r.RenderStr(t.Formatter.Template)
	if err != nil {
		return nil, err
	}
	ec.Source.WriteKind(event.Kind{Name: "Formatter", Attrs: map[string]any{"task": t.Name}})
	return ctxtree.NewText(output), nil
}
