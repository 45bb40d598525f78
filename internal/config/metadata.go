package config

import "github.com/oxy-hq/oxy/internal/semantic"

// BuildSemanticRegistry converts every configured topic into a
// semantic.Topic and assembles the semantic.Registry the Compiler looks
// topics up against.
//
// This is a deliberately narrower rendition of the original's
// GlobalRegistry (original_source/crates/globals/src/registry.rs): that
// registry lazily loads and caches arbitrary metadata files per name with
// a runtime-override layer taking precedence over file-loaded values,
// because the original supports hot-reloading metadata independently of
// the rest of the project. Oxy's Project loads once, as a single YAML
// document, at process start (§3.3) — there is no per-file cache to
// populate lazily and no reload path to layer overrides onto — so only
// the part of that design this module actually needs survives: dotted
// "view.field" membership checks (Dimensions/Measures as a set, exactly
// as the registry's dotted-path navigation resolves a reference down to
// a leaf) and default-filter precedence (applied ahead of user filters,
// per SPEC_FULL.md §5).
func BuildSemanticRegistry(p *Project) *semantic.Registry {
	topics := make([]semantic.Topic, 0, len(p.Topics))
	for name, tc := range p.Topics {
		topics = append(topics, convertTopic(name, tc))
	}
	return semantic.NewRegistry(topics...)
}

func convertTopic(name string, tc *TopicConfig) semantic.Topic {
	views := make(map[string]semantic.View, len(tc.Views))
	for viewName, vc := range tc.Views {
		views[viewName] = semantic.View{Name: viewName, Datasource: vc.Datasource}
	}

	dimensions := make(map[string]bool, len(tc.Dimensions))
	for _, d := range tc.Dimensions {
		dimensions[d] = true
	}
	measures := make(map[string]bool, len(tc.Measures))
	for _, m := range tc.Measures {
		measures[m] = true
	}

	filters := make([]semantic.Filter, len(tc.DefaultFilters))
	for i, f := range tc.DefaultFilters {
		filters[i] = semantic.Filter{Field: f.Field, Operator: f.Operator, Values: f.Values}
	}

	return semantic.Topic{
		Name:           name,
		BaseView:       tc.BaseView,
		Views:          views,
		Dimensions:     dimensions,
		Measures:       measures,
		DefaultFilters: filters,
	}
}
