package watch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"agent-attendance/watch"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_RunsHandlerOnChange(t *testing.T) {
	dir := t.TempDir()
	schedulePath := filepath.Join(dir, "schedule.csv")
	otherPath := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(schedulePath, []byte("v1"), 0o600))

	var calls atomic.Int32
	w := watch.New(zerolog.Nop(), 20*time.Millisecond)
	w.Handle(schedulePath, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(otherPath, []byte("ignored"), 0o600))
	require.NoError(t, os.WriteFile(schedulePath, []byte("v2"), 0o600))

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_ReplacedByRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "actuals.csv")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o600))

	done := make(chan struct{}, 1)
	w := watch.New(zerolog.Nop(), 10*time.Millisecond)
	w.Handle(path, func(context.Context) error {
		select {
		case done <- struct{}{}:
		default:
		}
		return errors.New("handler errors are logged, not fatal")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	tmp := filepath.Join(dir, "actuals.csv.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("v2"), 0o600))
	require.NoError(t, os.Rename(tmp, path))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not run after rename")
	}
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w := watch.New(zerolog.Nop(), watch.DefaultDelay)
	w.Handle(filepath.Join(t.TempDir(), "missing", "schedule.csv"), func(context.Context) error { return nil })
	assert.Error(t, w.Start(context.Background()))
}
