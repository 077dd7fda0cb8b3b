package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileExists(path string) func(context.Context) (bool, error) {
	return func(context.Context) (bool, error) {
		_, err := os.Stat(path)
		return err == nil, nil
	}
}

func TestUntilReturnsImmediatelyWhenSatisfied(t *testing.T) {
	w, err := New([]string{t.TempDir()}, Options{})
	require.NoError(t, err)
	defer w.Close()

	calls := 0
	err = w.Until(context.Background(), func(context.Context) (bool, error) {
		calls++
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestUntilWakesOnWrite(t *testing.T) {
	dir := t.TempDir()
	w, err := New([]string{dir}, Options{Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	defer w.Close()

	target := filepath.Join(dir, "lock.json")
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(target, []byte("{}"), 0o644)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Until(ctx, fileExists(target)))
}

func TestUntilFollowsNewDirectories(t *testing.T) {
	dir := t.TempDir()
	w, err := New([]string{dir}, Options{Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	defer w.Close()

	nested := filepath.Join(dir, "v1", "a")
	target := filepath.Join(nested, "issue.md")
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.MkdirAll(nested, 0o755)
		time.Sleep(100 * time.Millisecond)
		_ = os.WriteFile(target, []byte("---\n---\n"), 0o644)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Until(ctx, fileExists(target)))
}

func TestUntilPollsWithoutEvents(t *testing.T) {
	w, err := New([]string{t.TempDir()}, Options{Poll: 10 * time.Millisecond})
	require.NoError(t, err)
	defer w.Close()

	var calls atomic.Int32
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = w.Until(ctx, func(context.Context) (bool, error) {
		return calls.Add(1) >= 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestUntilHonorsCancellation(t *testing.T) {
	w, err := New([]string{t.TempDir()}, Options{})
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err = w.Until(ctx, func(context.Context) (bool, error) { return false, nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMissingRootIsSkipped(t *testing.T) {
	w, err := New([]string{filepath.Join(t.TempDir(), "absent")}, Options{})
	require.NoError(t, err)
	assert.NoError(t, w.Close())
}
