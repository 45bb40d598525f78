package semantic

import (
	"strings"

	"github.com/oxy-hq/oxy/internal/oxyerr"
)

// cubeQuery is the JSON request body sent to the cube server's /sql
// endpoint, per spec §4.8.2 step 5.
type cubeQuery struct {
	Measures       []string           `json:"measures,omitempty"`
	Dimensions     []string           `json:"dimensions,omitempty"`
	Filters        []cubeFilter       `json:"filters,omitempty"`
	Order          [][2]string        `json:"order,omitempty"`
	JoinHints      []string           `json:"joinHints,omitempty"`
	Limit          int                `json:"limit,omitempty"`
	Offset         int                `json:"offset,omitempty"`
	TimeDimensions []cubeTimeDimension `json:"timeDimensions,omitempty"`
}

type cubeFilter struct {
	Member   string   `json:"member"`
	Operator string   `json:"operator"`
	Values   []string `json:"values,omitempty"`
}

type cubeTimeDimension struct {
	Dimension   string      `json:"dimension"`
	Granularity string      `json:"granularity,omitempty"`
	DateRange   interface{} `json:"dateRange,omitempty"`
}

// planJoinHints derives the requested views from every dimension/measure
// field reference (the prefix before '.', defaulting to the topic's own
// view) and, if the topic declares a base_view, emits [base_view, v] for
// every other requested view. A topic with no base_view, or a query that
// only touches the base_view, emits no joinHints at all — the recovered
// "star-schema enforcement only when it would do something" supplement.
func planJoinHints(t Topic, fields []string) []string {
	if t.BaseView == "" {
		return nil
	}
	seen := map[string]bool{}
	var hints []string
	for _, f := range fields {
		view := viewOf(f, t)
		if view == "" || view == t.BaseView || seen[view] {
			continue
		}
		seen[view] = true
		hints = append(hints, t.BaseView, view)
	}
	return hints
}

func viewOf(field string, t Topic) string {
	if idx := strings.Index(field, "."); idx >= 0 {
		return field[:idx]
	}
	return t.BaseView
}

// validateFields checks every requested dimension/measure against the
// topic's known field sets, failing UnknownField per spec §4.8.2 step 2.
func validateFields(t Topic, dimensions, measures []string) error {
	for _, d := range dimensions {
		if !t.Dimensions[d] {
			return &oxyerr.ValidationError{Message: "UnknownField: " + d}
		}
	}
	for _, m := range measures {
		if !t.Measures[m] {
			return &oxyerr.ValidationError{Message: "UnknownField: " + m}
		}
	}
	return nil
}

// mergeFilters combines the topic's default filters (always first,
// AND-joined by virtue of being separate filter entries) with
// user-supplied filters, per the recovered "default filters merged
// before user filters" supplement.
func mergeFilters(t Topic, user []FilterInput) []cubeFilter {
	out := make([]cubeFilter, 0, len(t.DefaultFilters)+len(user))
	for _, f := range t.DefaultFilters {
		out = append(out, cubeFilter{Member: f.Field, Operator: f.Operator, Values: f.Values})
	}
	for _, f := range user {
		out = append(out, cubeFilter{Member: f.Field, Operator: f.Operator, Values: f.Values})
	}
	return out
}

func buildCubeQuery(t Topic, task QueryTask, joinHints []string, filters []cubeFilter) cubeQuery {
	q := cubeQuery{
		Measures:   task.Measures,
		Dimensions: task.Dimensions,
		Filters:    filters,
		JoinHints:  joinHints,
		Offset:     task.Offset,
	}
	if task.Limit > 0 {
		q.Limit = task.Limit
	}
	for _, o := range task.Orders {
		q.Order = append(q.Order, [2]string{o.Field, o.Direction})
	}
	for _, td := range task.TimeDimensions {
		entry := cubeTimeDimension{Dimension: td.Field, Granularity: string(td.Granularity)}
		if td.DateRange[0] != "" || td.DateRange[1] != "" {
			entry.DateRange = []string{td.DateRange[0], td.DateRange[1]}
		}
		q.TimeDimensions = append(q.TimeDimensions, entry)
	}
	return q
}
