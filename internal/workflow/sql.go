package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oxy-hq/oxy/internal/ctxtree"
	"github.com/oxy-hq/oxy/internal/event"
	"github.com/oxy-hq/oxy/internal/render"
)

// runExecuteSQLTask renders per-task variables, resolves the SQL (inline
// or file-reference, rendered with the task's variables as an inner
// template pass), dispatches to the Connector, and writes a Table, per
// spec §4.9's ExecuteSQL dispatch.
func (e *Executor) runExecuteSQLTask(ctx context.Context, ec *ctxtree.ExecutionContext, r *render.Renderer, t Task) (*ctxtree.Context, error) {
	varValues := map[string]render.Value{}
	for k, v := range t.ExecuteSQL.Variables {
		rv, err := r.RenderStr(v)
		if err != nil {
			return nil, err
		}
		varValues[k] = render.StringVal(rv)
	}
	innerRenderer := r
	if len(varValues) > 0 {
		innerRenderer = r.WithScope(render.NewScope("task_vars", varValues))
	}

	var rawQuery string
	if t.ExecuteSQL.SQL.File != "" {
		path, err := r.RenderStr(t.ExecuteSQL.SQL.File)
		if err != nil {
			return nil, err
		}
		resolved := resolveProjectFile(ec, path)
		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, fmt.Errorf("reading sql file %q: %w", resolved, err)
		}
		rawQuery = string(data)
	} else {
		rawQuery = t.ExecuteSQL.SQL.Query
	}

	query, err := innerRenderer.RenderStr(rawQuery)
	if err != nil {
		return nil, err
	}

	if e.connectors == nil {
		return nil, fmt.Errorf("no connector resolver configured for database %q", t.ExecuteSQL.Database)
	}
	conn, err := e.connectors(t.ExecuteSQL.Database)
	if err != nil {
		return nil, fmt.Errorf("resolving connector for %q: %w", t.ExecuteSQL.Database, err)
	}

	table, err := conn.RunQueryAndLoad(ctx, t.ExecuteSQL.Database, query)
	if err != nil {
		return nil, err
	}

	ec.Source.WriteKind(event.Kind{Name: "ExecuteSQL", Attrs: map[string]any{"task": t.Name, "database": t.ExecuteSQL.Database, "query": query}})
	return ctxtree.NewTable(table), nil
}

func resolveProjectFile(ec *ctxtree.ExecutionContext, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(ec.Project.RootDir(), path)
}
