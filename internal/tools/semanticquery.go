package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/oxy-hq/oxy/internal/agentloop"
	"github.com/oxy-hq/oxy/internal/ctxtree"
	"github.com/oxy-hq/oxy/internal/event"
	"github.com/oxy-hq/oxy/internal/llm"
	"github.com/oxy-hq/oxy/internal/oxyerr"
	"github.com/oxy-hq/oxy/internal/render"
	"github.com/oxy-hq/oxy/internal/semantic"
)

// SemanticQueryTool lets an agent run a semantic query against a
// configured topic mid-conversation, reusing the same Compiler the
// Workflow Executor's SemanticQuery task kind drives (§4.8). Unlike that
// task kind, tool arguments carry no template expressions — they come
// straight from the model as resolved JSON — so the tool renders with a
// bare render.Renderer carrying no scopes.
type SemanticQueryTool struct {
	compiler    *semantic.Compiler
	projectVars map[string]string
}

// NewSemanticQueryTool builds a SemanticQueryTool bound to compiler and a
// project's variable set (the Project tier of the task > project >
// OXY_VAR_* env precedence, §4.8.2 step 8).
func NewSemanticQueryTool(compiler *semantic.Compiler, projectVars map[string]string) *SemanticQueryTool {
	return &SemanticQueryTool{compiler: compiler, projectVars: projectVars}
}

func (t *SemanticQueryTool) Name() string { return "semantic_query" }

func (t *SemanticQueryTool) Schema() llm.ToolSchema {
	return llm.ToolSchema{
		Name:        "semantic_query",
		Description: "Run a semantic query against a configured metadata topic: pick dimensions and measures by name, the compiler resolves them to SQL and executes it.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"topic":      map[string]any{"type": "string", "description": "Name of the configured topic to query."},
				"dimensions": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"measures":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"filters": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"field":    map[string]any{"type": "string"},
							"operator": map[string]any{"type": "string"},
							"values":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						},
					},
				},
				"limit":  map[string]any{"type": "integer", "description": "Row limit; omit for the compiler's default."},
				"offset": map[string]any{"type": "integer"},
			},
			"required": []string{"topic"},
		},
	}
}

type semanticFilterArgs struct {
	Field    string   `json:"field"`
	Operator string   `json:"operator"`
	Values   []string `json:"values"`
}

type semanticQueryArgs struct {
	Topic      string               `json:"topic"`
	Dimensions []string             `json:"dimensions"`
	Measures   []string             `json:"measures"`
	Filters    []semanticFilterArgs `json:"filters"`
	Limit      int                  `json:"limit"`
	Offset     int                  `json:"offset"`
}

func (t *SemanticQueryTool) Call(ctx context.Context, ec *ctxtree.ExecutionContext, args json.RawMessage) (agentloop.ToolOutput, error) {
	var a semanticQueryArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return agentloop.ToolOutput{}, &oxyerr.ToolError{ToolName: t.Name(), Message: "invalid arguments: " + err.Error()}
	}
	if a.Topic == "" {
		return agentloop.ToolOutput{}, &oxyerr.ToolError{ToolName: t.Name(), Message: "topic is required"}
	}

	limit := a.Limit
	if limit == 0 {
		limit = -1 // unset/unbounded, per semantic.QueryTask's Limit convention
	}

	filters := make([]semantic.FilterInput, len(a.Filters))
	for i, f := range a.Filters {
		filters[i] = semantic.FilterInput{Field: f.Field, Operator: f.Operator, Values: f.Values}
	}

	task := semantic.QueryTask{
		Topic:      a.Topic,
		Dimensions: a.Dimensions,
		Measures:   a.Measures,
		Filters:    filters,
		Limit:      limit,
		Offset:     a.Offset,
	}

	out := t.compiler.Run(ctx, render.New(), task, semantic.VariableScope{Project: t.projectVars})
	ec.Source.WriteKind(event.Kind{Name: "Tool:semantic_query", Attrs: map[string]any{"topic": a.Topic}})

	return agentloop.ToolOutput{Context: out, Truncated: renderSemanticPreview(out.SemanticQuery)}, nil
}

func renderSemanticPreview(r *ctxtree.SemanticQueryResult) string {
	if r == nil {
		return ""
	}
	if r.ValidationErr != "" {
		return "validation error: " + r.ValidationErr
	}
	if r.SQLErr != "" {
		return "query error: " + r.SQLErr
	}
	preview := renderPreview(r.Columns, r.Rows, r.Truncated)
	return fmt.Sprintf("%s\n\nsql: %s", preview, strings.TrimSpace(r.CompiledSQL))
}
