package workflow

import (
	"github.com/oxy-hq/oxy/internal/ctxtree"
	"github.com/oxy-hq/oxy/internal/render"
)

// contextToValue projects a finished task's Context onto a render.Value so
// it can be bound into the Renderer's scope chain and addressed by later
// templates (spec §3.1/§4.2's "addressable context tree", design note
// "Back-references in Context": a mapping lookup, not a pointer graph).
func contextToValue(c *ctxtree.Context) render.Value {
	if c == nil {
		return render.NullVal()
	}
	switch c.Kind {
	case ctxtree.KindText:
		return render.StringVal(c.Text)
	case ctxtree.KindTable:
		return tableValue(c.Table)
	case ctxtree.KindSemanticQuery:
		return semanticQueryValue(c.SemanticQuery)
	case ctxtree.KindMap:
		m := make(map[string]render.Value, len(c.Keys()))
		for _, k := range c.Keys() {
			child, _ := c.Get(k)
			m[k] = contextToValue(child)
		}
		return render.MappingVal(m)
	case ctxtree.KindList:
		items := c.Items()
		seq := make([]render.Value, len(items))
		for i, item := range items {
			seq[i] = contextToValue(item)
		}
		return render.SequenceVal(seq)
	default:
		return render.NullVal()
	}
}

// tableValue exposes a Table output's row count as both `row_count` and
// `rows` (a template may reasonably reach for either name), alongside its
// file path, source SQL, and database ref.
func tableValue(t *ctxtree.TableRef) render.Value {
	if t == nil {
		return render.NullVal()
	}
	metadata := make(map[string]render.Value, len(t.Metadata))
	for k, v := range t.Metadata {
		metadata[k] = render.StringVal(v)
	}
	return render.MappingVal(map[string]render.Value{
		"row_count":    render.NumberVal(float64(t.RowCount)),
		"rows":         render.NumberVal(float64(t.RowCount)),
		"file_path":    render.StringVal(t.FilePath),
		"sql":          render.StringVal(t.SQL),
		"database_ref": render.StringVal(t.DatabaseRef),
		"metadata":     render.MappingVal(metadata),
	})
}

func semanticQueryValue(sq *ctxtree.SemanticQueryResult) render.Value {
	if sq == nil {
		return render.NullVal()
	}
	return render.MappingVal(map[string]render.Value{
		"row_count":          render.NumberVal(float64(len(sq.Rows))),
		"rows":               render.NumberVal(float64(len(sq.Rows))),
		"compiled_sql":       render.StringVal(sq.CompiledSQL),
		"database_ref":       render.StringVal(sq.DatabaseRef),
		"topic":              render.StringVal(sq.Topic),
		"validation_error":   render.StringVal(sq.ValidationErr),
		"sql_error":          render.StringVal(sq.SQLErr),
		"truncated":          render.BoolVal(sq.Truncated),
		"limit":              render.NumberVal(float64(sq.Limit)),
		"offset":             render.NumberVal(float64(sq.Offset)),
		"columns":            stringSeq(sq.Columns),
		"dimensions":         stringSeq(sq.Dimensions),
		"measures":           stringSeq(sq.Measures),
		"time_dimensions":    stringSeq(sq.TimeDimensions),
		"filters":            stringSeq(sq.Filters),
		"orders":             stringSeq(sq.Orders),
	})
}

func stringSeq(ss []string) render.Value {
	seq := make([]render.Value, len(ss))
	for i, s := range ss {
		seq[i] = render.StringVal(s)
	}
	return render.SequenceVal(seq)
}
