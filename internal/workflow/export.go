package workflow

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/oxy-hq/oxy/internal/connector"
	"github.com/oxy-hq/oxy/internal/ctxtree"
	"github.com/oxy-hq/oxy/internal/render"
)

// writeExport renders a task's export path and writes its output to disk
// in the configured format, grounded on the original exporter's per-kind
// SQL/CSV/JSON writers: Text tasks (Formatter) write their string output
// verbatim; Table tasks (ExecuteSQL) write either the generating SQL, or
// the full result set as CSV/JSON. SemanticQuery outputs export only their
// compiled SQL: a CSV or JSON export of one fails, since the result carries
// no backing table file.
func (e *Executor) writeExport(ec *ctxtree.ExecutionContext, r *render.Renderer, t Task, out *ctxtree.Context) error {
	path, err := r.RenderStr(t.Export.Path)
	if err != nil {
		return err
	}
	path = resolveProjectFile(ec, path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating export directory for %q: %w", path, err)
	}

	switch out.Kind {
	case ctxtree.KindText:
		return os.WriteFile(path, []byte(out.Text), 0o644)
	case ctxtree.KindTable:
		return writeTableExport(t.Export.Format, out.Table.SQL, out.Table.FilePath, path)
	case ctxtree.KindSemanticQuery:
		return writeTableExport(t.Export.Format, out.SemanticQuery.CompiledSQL, "", path)
	default:
		return fmt.Errorf("task %q: export not supported for this output kind", t.Name)
	}
}

func writeTableExport(format ExportFormat, sql, ipcPath, destPath string) error {
	if format == ExportSQL {
		return os.WriteFile(destPath, []byte(sql), 0o644)
	}
	if ipcPath == "" {
		return fmt.Errorf("export format requires a backing table file, none available")
	}
	columns, rows, _, err := connector.ReadSample(ipcPath, math.MaxInt32)
	if err != nil {
		return fmt.Errorf("reading table for export: %w", err)
	}
	switch format {
	case ExportCSV:
		return writeCSV(destPath, columns, rows)
	case ExportJSON:
		return writeJSON(destPath, columns, rows)
	default:
		return fmt.Errorf("unsupported export format %v", format)
	}
}

func writeCSV(path string, columns []string, rows [][]any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return err
	}
	for _, row := range rows {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = fmt.Sprintf("%v", v)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeJSON(path string, columns []string, rows [][]any) error {
	records := make([]map[string]any, len(rows))
	for i, row := range rows {
		rec := make(map[string]any, len(columns))
		for j, col := range columns {
			if j < len(row) {
				rec[col] = row[j]
			}
		}
		records[i] = rec
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
