package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmtonkinson/worksync/internal/clock"
)

var start = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "locks"), 0)
	require.NoError(t, err)
	return map[string]Store{"memory": NewMemoryStore(), "file": fs}
}

func newManager(t *testing.T, store Store, c clock.Clock) *Manager {
	t.Helper()
	m, err := NewManager(store, Options{Clock: c, PID: 4242, Hostname: "test-host"})
	require.NoError(t, err)
	return m
}

func TestAcquireLifecycle(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := clock.NewManual(start)
			m := newManager(t, store, c)

			res, err := m.Acquire(ctx, "0.1-a", "s1", "/wt/a")
			require.NoError(t, err)
			assert.Equal(t, OutcomeCreated, res.Outcome)
			assert.Equal(t, start, res.Record.AcquiredAt)
			assert.Nil(t, res.Previous)

			c.Advance(time.Minute)
			res, err = m.Acquire(ctx, "0.1-a", "s1", "")
			require.NoError(t, err)
			assert.Equal(t, OutcomeRefreshed, res.Outcome)
			assert.Equal(t, start, res.Record.AcquiredAt)
			assert.Equal(t, start.Add(time.Minute), res.Record.HeartbeatAt)
			assert.Equal(t, "/wt/a", res.Record.Worktree)

			_, err = m.Acquire(ctx, "0.1-a", "s2", "")
			var locked *LockedError
			require.True(t, errors.As(err, &locked))
			assert.Equal(t, "s1", locked.Holder)
			assert.Equal(t, "/wt/a", locked.Worktree)
			assert.ErrorIs(t, err, ErrLocked)

			st, err := m.Check(ctx, "0.1-a")
			require.NoError(t, err)
			assert.True(t, st.Held)
			assert.False(t, st.Stale)
			assert.Equal(t, "s1", st.Session)
			assert.Equal(t, "/wt/a", st.Worktree)

			assert.ErrorIs(t, m.Release(ctx, "0.1-a", "s2"), ErrNotOwner)
			require.NoError(t, m.Release(ctx, "0.1-a", "s1"))
			require.NoError(t, m.Release(ctx, "0.1-a", "s1"))

			st, err = m.Check(ctx, "0.1-a")
			require.NoError(t, err)
			assert.False(t, st.Held)
			assert.Empty(t, st.Session)
		})
	}
}

func TestStaleTakeover(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := clock.NewManual(start)
			m := newManager(t, store, c)

			_, err := m.Acquire(ctx, "0.1-a", "s1", "/wt/a")
			require.NoError(t, err)

			c.Advance(DefaultStaleThreshold - time.Second)
			_, err = m.Acquire(ctx, "0.1-a", "s2", "")
			require.ErrorIs(t, err, ErrLocked)

			c.Advance(time.Second)
			held, err := m.Held(ctx)
			require.NoError(t, err)
			assert.Empty(t, held)

			res, err := m.Acquire(ctx, "0.1-a", "s2", "")
			require.NoError(t, err)
			assert.Equal(t, OutcomeTookOver, res.Outcome)
			require.NotNil(t, res.Previous)
			assert.Equal(t, "s1", res.Previous.Session)
			assert.Equal(t, "s2", res.Record.Session)
			assert.Equal(t, c.Now(), res.Record.HeartbeatAt)
			assert.Equal(t, "/wt/a", res.Record.Worktree)

			assert.ErrorIs(t, m.Release(ctx, "0.1-a", "s1"), ErrNotOwner)
			_, err = m.Heartbeat(ctx, "0.1-a", "s1")
			assert.ErrorIs(t, err, ErrNotOwner)
		})
	}
}

func TestHeartbeatRefreshesAge(t *testing.T) {
	ctx := context.Background()
	c := clock.NewManual(start)
	m := newManager(t, NewMemoryStore(), c)

	_, err := m.Heartbeat(ctx, "0.1-a", "s1")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = m.Acquire(ctx, "0.1-a", "s1", "")
	require.NoError(t, err)
	c.Advance(3 * time.Hour)
	rec, err := m.Heartbeat(ctx, "0.1-a", "s1")
	require.NoError(t, err)
	assert.Equal(t, c.Now(), rec.HeartbeatAt)
	assert.Equal(t, start, rec.AcquiredAt)

	c.Advance(3 * time.Hour)
	_, err = m.Acquire(ctx, "0.1-a", "s2", "")
	assert.ErrorIs(t, err, ErrLocked)
}

func TestListHeldRecover(t *testing.T) {
	ctx := context.Background()
	c := clock.NewManual(start)
	m := newManager(t, NewMemoryStore(), c)

	_, err := m.Acquire(ctx, "0.1-a", "s1", "/wt/a")
	require.NoError(t, err)
	c.Advance(5 * time.Hour)
	_, err = m.Acquire(ctx, "0.1-b", "s2", "/wt/b")
	require.NoError(t, err)

	statuses, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Stale)
	assert.True(t, statuses[1].Held)

	held, err := m.Held(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"0.1-b": "s2"}, held)

	wt, err := m.Recover(ctx, "0.1-a")
	require.NoError(t, err)
	assert.Equal(t, "/wt/a", wt)
	_, err = m.Recover(ctx, "0.1-zzz")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAcquireValidatesInput(t *testing.T) {
	m := newManager(t, NewMemoryStore(), nil)
	_, err := m.Acquire(context.Background(), "0.1-a", "", "")
	assert.Error(t, err)
	_, err = m.Acquire(context.Background(), "../escape", "s1", "")
	assert.Error(t, err)
}

func TestFileStoreRecordFormat(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "locks")
	fs, err := NewFileStore(dir, 0)
	require.NoError(t, err)
	m := newManager(t, fs, clock.NewManual(start))

	_, err = m.Acquire(ctx, "0.1-a", "s1", "/wt/a")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "0.1-a.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"session": "s1"`)
	assert.Contains(t, string(data), `"heartbeat_at": "2026-06-01T09:00:00Z"`)
	assert.Contains(t, string(data), `"pid": 4242`)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	records, err := fs.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "0.1-bad.json"), []byte("{"), 0o644))
	_, err = fs.List(ctx)
	assert.Error(t, err)
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "locks"), time.Minute)
	require.NoError(t, err)
	m := newManager(t, fs, nil)

	const sessions = 16
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		losers  atomic.Int32
	)
	startGate := make(chan struct{})
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-startGate
			_, err := m.Acquire(ctx, "0.1-hot", fmt.Sprintf("session-%d", i), "")
			switch {
			case err == nil:
				winners.Add(1)
			case errors.Is(err, ErrLocked):
				losers.Add(1)
			default:
				t.Errorf("unexpected acquire error: %v", err)
			}
		}(i)
	}
	close(startGate)
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, int32(sessions-1), losers.Load())
}

func TestHeartbeaterStopsWhenLockLost(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m := newManager(t, NewMemoryStore(), nil)
	_, err := m.Acquire(ctx, "0.1-a", "s1", "")
	require.NoError(t, err)

	var beats atomic.Int32
	h := &Heartbeater{
		Manager:  m,
		Issue:    "0.1-a",
		Session:  "s1",
		Interval: 5 * time.Millisecond,
		OnBeat: func(Record) {
			if beats.Add(1) == 2 {
				_ = m.Release(context.Background(), "0.1-a", "s1")
			}
		},
	}
	err = h.Run(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.GreaterOrEqual(t, beats.Load(), int32(2))
}

func TestHeartbeaterReturnsNilOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := newManager(t, NewMemoryStore(), nil)
	_, err := m.Acquire(ctx, "0.1-a", "s1", "")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- (&Heartbeater{Manager: m, Issue: "0.1-a", Session: "s1", Interval: time.Hour}).Run(ctx)
	}()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("heartbeater did not stop")
	}
}
