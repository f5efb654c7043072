package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_InMemory(t *testing.T) {
	opts := DefaultOptions()
	opts.Path = ":memory:"

	db, err := Open(opts, nil)
	require.NoError(t, err)
	defer Close(db)

	require.NoError(t, Ping(context.Background(), db))

	stats, err := Stats(db)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.OpenConnections, 0)
}

func TestOpen_FileCreated(t *testing.T) {
	opts := DefaultOptions()
	opts.Path = filepath.Join(t.TempDir(), "flowline.db")

	db, err := Open(opts, nil)
	require.NoError(t, err)
	defer Close(db)

	require.NoError(t, db.Exec("CREATE TABLE smoke (id INTEGER PRIMARY KEY)").Error)
}

func TestOpen_EmptyPathFallsBack(t *testing.T) {
	// Default path is a relative file; point it into a temp dir instead
	// so the test leaves nothing behind.
	opts := Options{Path: filepath.Join(t.TempDir(), "default.db")}
	db, err := Open(opts, nil)
	require.NoError(t, err)
	require.NoError(t, Close(db))
}
