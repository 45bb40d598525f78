// Package tools provides the reference agentloop.Tool implementations an
// agent can call mid-conversation: running a SQL statement against a
// configured database, and running a semantic query against a configured
// topic. Neither spec.md nor the teacher names a concrete built-in tool
// set; these two are grounded directly on the Connector Interface (§4.4)
// and the Semantic-Query Compiler (§4.8) the rest of the module already
// implements, wired here behind the abstract Tool contract (§4.7).
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/oxy-hq/oxy/internal/agentloop"
	"github.com/oxy-hq/oxy/internal/connector"
	"github.com/oxy-hq/oxy/internal/ctxtree"
	"github.com/oxy-hq/oxy/internal/event"
	"github.com/oxy-hq/oxy/internal/llm"
	"github.com/oxy-hq/oxy/internal/oxyerr"
)

// ConnectorResolver maps a database ref to the Connector that serves it,
// matching internal/workflow.ConnectorResolver's shape so both collaborate
// with the same project-level wiring.
type ConnectorResolver func(databaseRef string) (connector.Connector, error)

// maxPreviewRows bounds the markdown preview text fed back to the model;
// the underlying Arrow IPC file a SQL run produces is always untruncated,
// matching the Execute SQL task's own display/storage split (§4.9,
// SPEC_FULL.md §5 "Result truncation keeps the full file").
const maxPreviewRows = 50

// SQLTool runs a caller-supplied SQL statement against a named database
// and returns a Table Context, letting an agent inspect live data
// mid-conversation rather than only through a pre-authored workflow task.
type SQLTool struct {
	connectors ConnectorResolver
}

// NewSQLTool builds a SQLTool bound to a project's connector wiring.
func NewSQLTool(connectors ConnectorResolver) *SQLTool {
	return &SQLTool{connectors: connectors}
}

func (t *SQLTool) Name() string { return "run_sql" }

func (t *SQLTool) Schema() llm.ToolSchema {
	return llm.ToolSchema{
		Name:        "run_sql",
		Description: "Run a SQL statement against a configured database and return the result.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"database": map[string]any{
					"type":        "string",
					"description": "Name of the configured database to query.",
				},
				"sql": map[string]any{
					"type":        "string",
					"description": "The SQL statement to execute.",
				},
			},
			"required": []string{"database", "sql"},
		},
	}
}

type sqlToolArgs struct {
	Database string `json:"database"`
	SQL      string `json:"sql"`
}

func (t *SQLTool) Call(ctx context.Context, ec *ctxtree.ExecutionContext, args json.RawMessage) (agentloop.ToolOutput, error) {
	var a sqlToolArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return agentloop.ToolOutput{}, &oxyerr.ToolError{ToolName: t.Name(), Message: "invalid arguments: " + err.Error()}
	}
	if a.Database == "" || a.SQL == "" {
		return agentloop.ToolOutput{}, &oxyerr.ToolError{ToolName: t.Name(), Message: "both database and sql are required"}
	}
	if t.connectors == nil {
		return agentloop.ToolOutput{}, &oxyerr.ToolError{ToolName: t.Name(), Message: "no connector resolver configured"}
	}

	conn, err := t.connectors(a.Database)
	if err != nil {
		return agentloop.ToolOutput{}, &oxyerr.ToolError{ToolName: t.Name(), Message: err.Error()}
	}

	table, err := conn.RunQueryAndLoad(ctx, a.Database, a.SQL)
	if err != nil {
		return agentloop.ToolOutput{}, &oxyerr.ToolError{ToolName: t.Name(), Message: err.Error()}
	}

	ec.Source.WriteKind(event.Kind{Name: "Tool:run_sql", Attrs: map[string]any{"database": a.Database, "sql": a.SQL}})

	columns, rows, truncated, err := connector.ReadSample(table.FilePath, maxPreviewRows)
	if err != nil {
		return agentloop.ToolOutput{}, &oxyerr.ToolError{ToolName: t.Name(), Message: err.Error()}
	}

	return agentloop.ToolOutput{Context: ctxtree.NewTable(table), Truncated: renderPreview(columns, rows, truncated)}, nil
}

// renderPreview formats a row sample as a compact Markdown table, the
// representation fed back into the conversation as the tool's visible
// result.
func renderPreview(columns []string, rows [][]any, truncated bool) string {
	if len(columns) == 0 {
		return "(no columns returned)"
	}
	var b strings.Builder
	b.WriteString("| " + strings.Join(columns, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(columns)) + "\n")
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprintf("%v", v)
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	if truncated {
		b.WriteString(fmt.Sprintf("\n(truncated to %d rows)\n", maxPreviewRows))
	}
	return b.String()
}
