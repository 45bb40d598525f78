package cache_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/oxy-hq/oxy/internal/cache"
	"github.com/oxy-hq/oxy/internal/ctxtree"
	"github.com/oxy-hq/oxy/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMissesThenHits(t *testing.T) {
	dir := t.TempDir()
	c := cache.New(dir)
	bus := event.New(4)
	src := bus.Root()

	calls := 0
	fn := func(context.Context) (*ctxtree.Context, []cache.ToolCallRecord, error) {
		calls++
		return ctxtree.NewText("computed"), nil, nil
	}

	out1, err := c.Run(context.Background(), src, cache.KindFile, "reports/daily.json", fn)
	require.NoError(t, err)
	assert.Equal(t, "computed", out1.Text)
	assert.Equal(t, 1, calls)

	out2, err := c.Run(context.Background(), src, cache.KindFile, "reports/daily.json", fn)
	require.NoError(t, err)
	assert.Equal(t, "computed", out2.Text)
	assert.Equal(t, 1, calls, "second Run must hit the cache and not invoke fn again")
}

func TestRunResolvesPathRelativeToProjectRoot(t *testing.T) {
	dir := t.TempDir()
	c := cache.New(dir)
	bus := event.New(4)

	fn := func(context.Context) (*ctxtree.Context, []cache.ToolCallRecord, error) {
		return ctxtree.NewText("v"), nil, nil
	}
	_, err := c.Run(context.Background(), bus.Root(), cache.KindFile, "nested/path.json", fn)
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "nested", "path.json"))
	require.NoError(t, statErr)
}

func TestAgentCacheRecordsToolCallLedger(t *testing.T) {
	dir := t.TempDir()
	c := cache.New(dir)
	bus := event.New(4)

	fn := func(context.Context) (*ctxtree.Context, []cache.ToolCallRecord, error) {
		return ctxtree.NewText("answer"), []cache.ToolCallRecord{{ID: "1", Name: "lookup", Arguments: `{"q":"x"}`}}, nil
	}
	out, err := c.Run(context.Background(), bus.Root(), cache.KindAgent, "agents/a.json", fn)
	require.NoError(t, err)
	assert.Equal(t, "answer", out.Text)

	calls := 0
	fn2 := func(context.Context) (*ctxtree.Context, []cache.ToolCallRecord, error) {
		calls++
		return ctxtree.NewText("should-not-run"), nil, nil
	}
	out2, err := c.Run(context.Background(), bus.Root(), cache.KindAgent, "agents/a.json", fn2)
	require.NoError(t, err)
	assert.Equal(t, "answer", out2.Text)
	assert.Equal(t, 0, calls)
}
