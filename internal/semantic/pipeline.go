package semantic

import (
	"context"
	"time"

	"github.com/oxy-hq/oxy/internal/oxyerr"
	"github.com/oxy-hq/oxy/internal/render"
)

// Compiler runs the full semantic-query pipeline, spec §4.8.2 steps 1-9:
// render, validate, plan joins, merge filters, emit the cube query,
// resolve it to SQL, substitute positional parameters, resolve runtime
// variables, and execute.
type Compiler struct {
	registry   *Registry
	sqlClient  *SQLClient
	connectors ConnectorResolver
	now        func() time.Time
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithClock overrides the compiler's notion of "now", used to resolve
// relative date expressions. Tests inject a fixed clock for reproducible
// output; production leaves it at the default (time.Now).
func WithClock(now func() time.Time) Option {
	return func(c *Compiler) { c.now = now }
}

// NewCompiler builds a Compiler.
func NewCompiler(registry *Registry, sqlClient *SQLClient, connectors ConnectorResolver, opts ...Option) *Compiler {
	c := &Compiler{registry: registry, sqlClient: sqlClient, connectors: connectors, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CompileResult is the output of steps 1-8: a fully resolved SQL string
// ready to execute, plus the topic metadata needed to pick a datasource
// and to describe the query for the final ctxtree.SemanticQueryResult.
type CompileResult struct {
	Topic        Topic
	SQL          string
	Dimensions   []string
	Measures     []string
	FilterDescr  []string
	OrderDescr   []string
	TimeDimDescr []string
}

// Compile runs steps 1 through 8: render, validate, plan, merge, emit,
// resolve, substitute, and resolve variables. It does not execute the
// query — callers needing rows call Execute with the result.
func (c *Compiler) Compile(ctx context.Context, r *render.Renderer, task QueryTask, vars VariableScope) (CompileResult, error) {
	rendered, err := renderTask(r, task)
	if err != nil {
		return CompileResult{}, err
	}

	topic, err := c.registry.Lookup(rendered.Topic)
	if err != nil {
		return CompileResult{}, err
	}

	now := c.now()
	for i, td := range rendered.TimeDimensions {
		rng, err := resolveDateRange(td.DateRange, now)
		if err != nil {
			return CompileResult{}, err
		}
		rendered.TimeDimensions[i].DateRange = rng
	}

	if err := validateFields(topic, rendered.Dimensions, rendered.Measures); err != nil {
		return CompileResult{}, err
	}
	if rendered.Limit != -1 && rendered.Limit <= 0 {
		return CompileResult{}, &oxyerr.ValidationError{Message: "Limit must be greater than 0"}
	}

	fields := append(append([]string{}, rendered.Dimensions...), rendered.Measures...)
	for _, f := range rendered.Filters {
		fields = append(fields, f.Field)
	}
	joinHints := planJoinHints(topic, fields)

	filters := mergeFilters(topic, rendered.Filters)

	q := buildCubeQuery(topic, rendered, joinHints, filters)

	template, params, err := c.sqlClient.ResolveSQL(ctx, q)
	if err != nil {
		return CompileResult{}, err
	}

	sql, err := substituteSQLParameters(template, params)
	if err != nil {
		return CompileResult{}, err
	}
	sql = substituteVariables(sql, vars)

	return CompileResult{
		Topic:        topic,
		SQL:          sql,
		Dimensions:   rendered.Dimensions,
		Measures:     rendered.Measures,
		FilterDescr:  describeFilters(filters),
		OrderDescr:   describeOrders(rendered.Orders),
		TimeDimDescr: describeTimeDimensions(rendered.TimeDimensions),
	}, nil
}

// renderTask resolves every template expression in a QueryTask's string
// fields via r, per spec §4.8.2 step 1. Field names, operators, and
// directions are not templated — only values and date-range bounds are.
func renderTask(r *render.Renderer, task QueryTask) (QueryTask, error) {
	out := task
	out.Topic = mustRenderStr(r, task.Topic)

	out.Filters = make([]FilterInput, len(task.Filters))
	for i, f := range task.Filters {
		values := make([]string, len(f.Values))
		for j, v := range f.Values {
			rv, err := r.RenderStr(v)
			if err != nil {
				return QueryTask{}, err
			}
			values[j] = rv
		}
		out.Filters[i] = FilterInput{Field: f.Field, Operator: f.Operator, Values: values}
	}

	out.TimeDimensions = make([]TimeDimensionInput, len(task.TimeDimensions))
	for i, td := range task.TimeDimensions {
		rendered := td
		for j, bound := range td.DateRange {
			if bound == "" {
				continue
			}
			rv, err := r.RenderStr(bound)
			if err != nil {
				return QueryTask{}, err
			}
			rendered.DateRange[j] = rv
		}
		out.TimeDimensions[i] = rendered
	}
	return out, nil
}

func mustRenderStr(r *render.Renderer, s string) string {
	rv, err := r.RenderStr(s)
	if err != nil {
		return s
	}
	return rv
}

func describeFilters(filters []cubeFilter) []string {
	out := make([]string, 0, len(filters))
	for _, f := range filters {
		out = append(out, f.Member+" "+f.Operator)
	}
	return out
}

func describeOrders(orders []OrderInput) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.Field+" "+o.Direction)
	}
	return out
}

func describeTimeDimensions(tds []TimeDimensionInput) []string {
	out := make([]string, 0, len(tds))
	for _, td := range tds {
		out = append(out, td.Field)
	}
	return out
}
