// Package ctxtree implements the Context & Write model (spec §3.1, §4.3):
// an append-only tree of per-task outputs, addressable by later templates,
// plus the ExecutionContext bundle every task executable receives.
package ctxtree

import (
	"context"
	"sync"

	"github.com/oxy-hq/oxy/internal/event"
)

// Kind discriminates a Context leaf/node variant.
type Kind int

const (
	KindNone Kind = iota
	KindText
	KindTable
	KindMap
	KindList
	KindSemanticQuery
)

// TableRef describes a columnar result persisted to an IPC file, per spec
// §3.1's Table variant. RowCount is the number of rows written, so a
// template can address it as `{{ q.row_count }}` without re-opening the
// IPC file.
type TableRef struct {
	FilePath    string
	SQL         string
	DatabaseRef string
	RowCount    int64
	Metadata    map[string]string
}

// SemanticQueryResult captures the outcome of a semantic-query task, per
// spec §3.1's SemanticQuery variant.
type SemanticQueryResult struct {
	DatabaseRef       string
	CompiledSQL       string
	Rows              [][]any
	Columns           []string
	ValidationErr     string
	SQLErr            string
	Topic             string
	Dimensions        []string
	Measures          []string
	TimeDimensions    []string
	Filters           []string
	Orders            []string
	Limit             int
	Offset            int
	Truncated         bool
}

// Context is a node in the output tree. Exactly one payload field is
// meaningful, selected by Kind. Map and List entries preserve insertion
// order via the parallel Keys/Items slices rather than relying on Go map
// iteration order.
type Context struct {
	Kind Kind

	Text string

	Table *TableRef

	mapKeys  []string
	mapItems map[string]*Context

	listItems []*Context

	SemanticQuery *SemanticQueryResult
}

// NewNone returns an empty Context, the default leaf before a task writes
// anything.
func NewNone() *Context { return &Context{Kind: KindNone} }

// NewText wraps a string.
func NewText(s string) *Context { return &Context{Kind: KindText, Text: s} }

// NewTable wraps a table reference.
func NewTable(t TableRef) *Context { return &Context{Kind: KindTable, Table: &t} }

// NewSemanticQuery wraps a semantic-query result.
func NewSemanticQuery(r SemanticQueryResult) *Context {
	return &Context{Kind: KindSemanticQuery, SemanticQuery: &r}
}

// NewMap returns an empty, insertion-ordered Map Context.
func NewMap() *Context {
	return &Context{Kind: KindMap, mapItems: map[string]*Context{}}
}

// NewList returns an empty List Context.
func NewList() *Context { return &Context{Kind: KindList} }

// Bind inserts or replaces child under name, preserving the node's
// insertion order invariant (spec §3.2: a Context-Map never has duplicate
// keys within the same scope — a second Bind under the same name replaces
// rather than duplicating).
func (c *Context) Bind(name string, child *Context) {
	if c.Kind != KindMap {
		panic("ctxtree: Bind called on a non-Map Context")
	}
	if _, exists := c.mapItems[name]; !exists {
		c.mapKeys = append(c.mapKeys, name)
	}
	c.mapItems[name] = child
}

// Get looks up a bound name; ok is false if absent or c is not a Map.
func (c *Context) Get(name string) (*Context, bool) {
	if c.Kind != KindMap {
		return nil, false
	}
	child, ok := c.mapItems[name]
	return child, ok
}

// Keys returns the bound names in insertion order.
func (c *Context) Keys() []string {
	return append([]string(nil), c.mapKeys...)
}

// Append adds an item to a List Context.
func (c *Context) Append(item *Context) {
	if c.Kind != KindList {
		panic("ctxtree: Append called on a non-List Context")
	}
	c.listItems = append(c.listItems, item)
}

// Items returns a List Context's items in order.
func (c *Context) Items() []*Context {
	return append([]*Context(nil), c.listItems...)
}

// ProjectHandle abstracts the Project collaborator an ExecutionContext
// needs without internal/ctxtree importing internal/config, keeping the
// dependency direction leaf-first.
type ProjectHandle interface {
	RootDir() string
}

// CancelToken is the subset of context.Context an ExecutionContext exposes
// for cooperative cancellation.
type CancelToken = context.Context

// ExecutionContext bundles everything a task executable needs, per spec
// §4.3: a Project handle, a Renderer snapshot, an Event Bus source, a
// cancellation token, and a filters/connections overlay.
type ExecutionContext struct {
	Project ProjectHandle
	Source  event.Source
	Cancel  CancelToken

	// Filters and Connections let a nested scope (loop body, sub-workflow)
	// layer additional constraints without mutating the parent's.
	Filters     map[string]string
	Connections map[string]string

	mu   sync.Mutex
	root *Context
}

// NewExecutionContext creates an ExecutionContext rooted at an empty Map.
func NewExecutionContext(project ProjectHandle, source event.Source, cancel CancelToken) *ExecutionContext {
	return &ExecutionContext{
		Project: project,
		Source:  source,
		Cancel:  cancel,
		root:    NewMap(),
	}
}

// Root returns the context tree accumulated so far.
func (ec *ExecutionContext) Root() *Context {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.root
}

// BindOutput appends a finished task's output under its name in the root
// Map, satisfying "each task's produced Context is bound under its task
// name in the enclosing Map."
func (ec *ExecutionContext) BindOutput(taskName string, output *Context) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.root.Bind(taskName, output)
}

// ChildExecutor forks the Event source path and returns a fresh
// ExecutionContext with its own Context Map, per spec §4.3's
// child_executor(name) contract. The caller is responsible for binding the
// child's finished Root() back into the parent under name once the child
// completes.
func (ec *ExecutionContext) ChildExecutor(name string) *ExecutionContext {
	return &ExecutionContext{
		Project:     ec.Project,
		Source:      ec.Source.Child(name),
		Cancel:      ec.Cancel,
		Filters:     copyStringMap(ec.Filters),
		Connections: copyStringMap(ec.Connections),
		root:        NewMap(),
	}
}

// WithFilters returns a copy of ec with extra filters merged in, the extra
// map taking precedence on key collision. Used by loop/sub-workflow scopes
// that layer filters without mutating the parent.
func (ec *ExecutionContext) WithFilters(extra map[string]string) *ExecutionContext {
	child := *ec
	merged := copyStringMap(ec.Filters)
	if merged == nil {
		merged = map[string]string{}
	}
	for k, v := range extra {
		merged[k] = v
	}
	child.Filters = merged
	return &child
}

func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
