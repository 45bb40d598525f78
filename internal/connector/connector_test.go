package connector_test

import (
	"context"
	"os"
	"testing"

	"github.com/oxy-hq/oxy/internal/connector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *connector.SQLConnector {
	t.Helper()
	tmpDir := t.TempDir()
	c, err := connector.OpenSQLite("file::memory:?cache=shared", tmpDir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRunQueryAndLoadWritesIPCFile(t *testing.T) {
	c := openSQLite(t)
	ctx := context.Background()

	_, err := c.RunQueryAndLoad(ctx, "warehouse", "CREATE TABLE widgets (id INTEGER, name TEXT)")
	require.NoError(t, err)
	_, err = c.RunQueryAndLoad(ctx, "warehouse", "INSERT INTO widgets VALUES (1, 'gear')")
	require.NoError(t, err)

	ref, err := c.RunQueryAndLoad(ctx, "warehouse", "SELECT id, name FROM widgets")
	require.NoError(t, err)

	assert.Equal(t, "warehouse", ref.DatabaseRef)
	assert.Equal(t, "SELECT id, name FROM widgets", ref.SQL)
	assert.Equal(t, int64(1), ref.RowCount)
	info, err := os.Stat(ref.FilePath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestDryRunDoesNotMaterializeRows(t *testing.T) {
	c := openSQLite(t)
	ctx := context.Background()

	_, err := c.RunQueryAndLoad(ctx, "warehouse", "CREATE TABLE widgets (id INTEGER, name TEXT)")
	require.NoError(t, err)

	err = c.DryRun(ctx, "warehouse", "SELECT id, name FROM widgets")
	assert.NoError(t, err)
}

func TestRunQueryAndLoadSurfacesDatabaseError(t *testing.T) {
	c := openSQLite(t)
	ctx := context.Background()

	_, err := c.RunQueryAndLoad(ctx, "warehouse", "SELECT * FROM does_not_exist")
	require.Error(t, err)
}
