package semantic

import (
	"context"
	"errors"
	"fmt"

	"github.com/oxy-hq/oxy/internal/connector"
	"github.com/oxy-hq/oxy/internal/ctxtree"
	"github.com/oxy-hq/oxy/internal/oxyerr"
	"github.com/oxy-hq/oxy/internal/render"
)

// ConnectorResolver maps a database ref to the Connector that serves it.
// Kept as a function type rather than a concrete registry so the workflow
// executor can supply whatever connector wiring a project configures.
type ConnectorResolver func(databaseRef string) (connector.Connector, error)

// maxDisplayRows bounds the in-memory row matrix kept on the
// ctxtree.SemanticQueryResult for template/UI consumption. The full result
// set is always persisted untruncated to the IPC file; only this display
// copy is capped.
const maxDisplayRows = 1000

// Run executes the full pipeline for a semantic-query task and always
// returns a SemanticQuery Context, per spec §4.8.3: a failure at any step
// (validation, SQL generation, or execution) is recorded in the returned
// result's ValidationErr/SQLErr rather than aborting the enclosing task,
// so a workflow never fails outright on a bad semantic query.
func (c *Compiler) Run(ctx context.Context, r *render.Renderer, task QueryTask, vars VariableScope) *ctxtree.Context {
	result, err := c.Compile(ctx, r, task, vars)
	if err != nil {
		var verr *oxyerr.ValidationError
		if errors.As(err, &verr) {
			return ctxtree.NewSemanticQuery(ctxtree.SemanticQueryResult{Topic: task.Topic, ValidationErr: verr.Error()})
		}
		return ctxtree.NewSemanticQuery(ctxtree.SemanticQueryResult{Topic: task.Topic, SQLErr: err.Error()})
	}

	out, err := c.Execute(ctx, result)
	if err != nil {
		return ctxtree.NewSemanticQuery(ctxtree.SemanticQueryResult{
			Topic:       result.Topic.Name,
			CompiledSQL: result.SQL,
			SQLErr:      err.Error(),
		})
	}
	return out
}

// Execute runs a Compile result's SQL against the topic's resolved
// datasource, persists the full result to an IPC file via the Connector,
// and returns a ctxtree.SemanticQueryResult whose in-memory Rows are
// truncated to maxDisplayRows. The IPC file keeps the complete table, but
// the result does not carry its path.
func (c *Compiler) Execute(ctx context.Context, result CompileResult) (*ctxtree.Context, error) {
	databaseRef := datasourceForTopic(result.Topic)
	if databaseRef == "" {
		return nil, &oxyerr.ValidationError{Message: "topic " + result.Topic.Name + " has no view with a datasource"}
	}

	conn, err := c.connectors(databaseRef)
	if err != nil {
		return nil, fmt.Errorf("resolving connector for %q: %w", databaseRef, err)
	}

	table, err := conn.RunQueryAndLoad(ctx, databaseRef, result.SQL)
	if err != nil {
		return ctxtree.NewSemanticQuery(ctxtree.SemanticQueryResult{
			DatabaseRef: databaseRef,
			CompiledSQL: result.SQL,
			SQLErr:      err.Error(),
			Topic:       result.Topic.Name,
		}), nil
	}

	columns, rows, truncated, err := connector.ReadSample(table.FilePath, maxDisplayRows)
	if err != nil {
		return nil, fmt.Errorf("reading display sample from %q: %w", table.FilePath, err)
	}

	return ctxtree.NewSemanticQuery(ctxtree.SemanticQueryResult{
		DatabaseRef:    databaseRef,
		CompiledSQL:    result.SQL,
		Rows:           rows,
		Columns:        columns,
		Topic:          result.Topic.Name,
		Dimensions:     result.Dimensions,
		Measures:       result.Measures,
		TimeDimensions: result.TimeDimDescr,
		Filters:        result.FilterDescr,
		Orders:         result.OrderDescr,
		Truncated:      truncated,
	}), nil
}
