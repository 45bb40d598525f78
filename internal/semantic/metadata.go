// Package semantic implements the Semantic-Query Compiler (spec §4.8):
// translating a declarative topic/dimension/measure query into SQL via a
// cube-server endpoint, with variable resolution and date normalization.
package semantic

import "github.com/oxy-hq/oxy/internal/oxyerr"

// View is one queryable view a Topic can join against.
type View struct {
	Name       string
	Datasource string // database ref; empty if this view carries no datasource
}

// Filter is a pre-declared filter a Topic always applies.
type Filter struct {
	Field    string
	Operator string
	Values   []string
}

// Topic is a preconfigured metadata object describing a semantic layer:
// its views, the fields available on each, and default filters.
type Topic struct {
	Name           string
	BaseView       string // enforces a star-join shape when non-empty
	Views          map[string]View
	Dimensions     map[string]bool // fully-qualified "view.field" -> valid
	Measures       map[string]bool
	DefaultFilters []Filter
}

// Registry is the metadata registry: a Project's set of configured
// topics.
type Registry struct {
	topics map[string]Topic
}

// NewRegistry builds a Registry from the given topics.
func NewRegistry(topics ...Topic) *Registry {
	r := &Registry{topics: map[string]Topic{}}
	for _, t := range topics {
		r.topics[t.Name] = t
	}
	return r
}

// Lookup finds a topic by name, failing with TopicNotFound per spec
// §4.8.2 step 2.
func (r *Registry) Lookup(name string) (Topic, error) {
	t, ok := r.topics[name]
	if !ok {
		return Topic{}, &oxyerr.ValidationError{Message: "TopicNotFound: " + name}
	}
	return t, nil
}

// datasourceForTopic returns the database ref of the topic's first view
// that carries a datasource, per spec §4.8.2 step 9. Iterates BaseView
// first (if set) so the star-join anchor view wins ties.
func datasourceForTopic(t Topic) string {
	if t.BaseView != "" {
		if v, ok := t.Views[t.BaseView]; ok && v.Datasource != "" {
			return v.Datasource
		}
	}
	for _, name := range sortedViewNames(t) {
		if v := t.Views[name]; v.Datasource != "" {
			return v.Datasource
		}
	}
	return ""
}

func sortedViewNames(t Topic) []string {
	names := make([]string, 0, len(t.Views))
	for name := range t.Views {
		names = append(names, name)
	}
	// Deterministic order matters here only for ties where multiple views
	// carry a datasource; a stable but simple sort keeps behavior
	// reproducible across runs.
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j] < names[j-1]; j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
	return names
}
