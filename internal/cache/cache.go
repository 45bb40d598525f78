// Package cache implements the Cache Layer (spec §4.5): a content-
// addressed artifact cache keyed by a renderable path, wrapping any
// cacheable task. A hit deserializes and reuses a prior Context; a miss
// runs the task and serializes its Context on success.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/oxy-hq/oxy/internal/ctxtree"
	"github.com/oxy-hq/oxy/internal/event"
	"github.com/oxy-hq/oxy/internal/oxyerr"
)

// Kind distinguishes the two cache strategies the original dispatches by
// task kind: every task kind except Agent serializes through FileCache;
// Agent tasks serialize through AgentCache, which additionally records a
// tool-call ledger.
type Kind int

const (
	KindFile Kind = iota
	KindAgent
)

// ToolCallRecord names one tool invocation an Agent task made while
// producing the cached output, per the agent-cache ledger.
type ToolCallRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// entry is the on-disk envelope. Context itself does not implement
// json.Marshaler (its Map/List fields are unexported to protect the
// insertion-order invariant), so entry stores a serializable projection
// built by snapshot/restore.
type entry struct {
	Snapshot  snapshot         `json:"snapshot"`
	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty"`
}

// Cacheable is anything the Cache Layer can wrap: a function that produces
// a Context, optionally with a tool-call ledger when Kind is KindAgent.
type Cacheable func(ctx context.Context) (*ctxtree.Context, []ToolCallRecord, error)

// Cache wraps cacheable work with the path-addressed hit/miss contract.
// Key discipline (spec §4.5): the cache is purely path-addressed; it is
// the caller's responsibility to parameterize the rendered path by
// anything that should invalidate it.
type Cache struct {
	projectRoot string
}

// New builds a Cache rooted at projectRoot; cache paths are resolved
// relative to it rather than to the process's working directory, per the
// cache-path-resolution supplement recovered from the original
// implementation.
func New(projectRoot string) *Cache {
	return &Cache{projectRoot: projectRoot}
}

// Run executes fn under the cache contract: if renderedPath already holds
// an entry, it is deserialized, a CacheHit event is emitted, and fn never
// runs. Otherwise fn runs; on success its Context is serialized and a
// CacheWrite event is emitted. A write failure is reported as
// CacheWriteFailed but never fails the task — fn's result is still
// returned.
func (c *Cache) Run(ctx context.Context, src event.Source, kind Kind, renderedPath string, fn Cacheable) (*ctxtree.Context, error) {
	absPath := c.resolve(renderedPath)

	if out, ok, err := c.readHit(absPath); err != nil {
		return nil, err
	} else if ok {
		src.WriteKind(event.Kind{Name: "CacheHit", Attrs: map[string]any{"path": absPath}})
		return out, nil
	}

	output, toolCalls, err := fn(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.write(absPath, kind, output, toolCalls); err != nil {
		var cacheErr *oxyerr.CacheWriteError
		if errors.As(err, &cacheErr) {
			src.WriteKind(event.Kind{Name: "CacheWriteFailed", Attrs: map[string]any{"path": absPath, "error": cacheErr.Message}})
		}
		return output, nil
	}
	src.WriteKind(event.Kind{Name: "CacheWrite", Attrs: map[string]any{"path": absPath}})
	return output, nil
}

func (c *Cache) resolve(renderedPath string) string {
	if filepath.IsAbs(renderedPath) {
		return renderedPath
	}
	return filepath.Join(c.projectRoot, renderedPath)
}

func (c *Cache) readHit(absPath string) (*ctxtree.Context, bool, error) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, &oxyerr.CacheWriteError{Path: absPath, Message: err.Error()}
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false, &oxyerr.CacheWriteError{Path: absPath, Message: err.Error()}
	}
	return e.Snapshot.toContext(), true, nil
}

func (c *Cache) write(absPath string, kind Kind, output *ctxtree.Context, toolCalls []ToolCallRecord) error {
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return &oxyerr.CacheWriteError{Path: absPath, Message: err.Error()}
	}
	e := entry{Snapshot: toSnapshot(output)}
	if kind == KindAgent {
		e.ToolCalls = toolCalls
	}
	data, err := json.Marshal(e)
	if err != nil {
		return &oxyerr.CacheWriteError{Path: absPath, Message: err.Error()}
	}
	if err := os.WriteFile(absPath, data, 0o644); err != nil {
		return &oxyerr.CacheWriteError{Path: absPath, Message: err.Error()}
	}
	return nil
}
