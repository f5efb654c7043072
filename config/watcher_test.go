package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileWatcher_FiresOnModification(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 8080\n"), 0o600))

	w := NewFileWatcher([]string{path}, 5*time.Millisecond, nil)
	var fired atomic.Int32
	w.OnChange(func(FileEvent) { fired.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	// Mod times can have coarse resolution; force a visible change.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 9090\n"), 0o600))
	now := time.Now().Add(time.Second)
	require.NoError(t, os.Chtimes(path, now, now))

	require.Eventually(t, func() bool { return fired.Load() > 0 }, time.Second, 5*time.Millisecond)
}

func TestFileWatcher_IgnoresUntouchedFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o600))

	w := NewFileWatcher([]string{path}, 5*time.Millisecond, nil)
	var fired atomic.Int32
	w.OnChange(func(FileEvent) { fired.Add(1) })

	w.Start(context.Background())
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)
	require.Zero(t, fired.Load())
}

func TestFileWatcher_StopIsIdempotent(t *testing.T) {
	w := NewFileWatcher(nil, time.Millisecond, nil)
	w.Start(context.Background())
	w.Stop()
	w.Stop()
}
