package lock

import (
	"context"
	"errors"
	"time"
)

// DefaultHeartbeatInterval is how often a Heartbeater refreshes its lock.
const DefaultHeartbeatInterval = 5 * time.Minute

// Heartbeater refreshes one lock on an interval until its context ends.
type Heartbeater struct {
	Manager  *Manager
	Issue    string
	Session  string
	Interval time.Duration
	// OnBeat is called after each successful refresh.
	OnBeat func(Record)
	// OnError is called for failures that do not stop the loop.
	OnError func(error)
}

// Run blocks until ctx is cancelled (returning nil) or the lock is lost
// (returning ErrNotOwner or ErrNotFound). Other failures are reported through
// OnError and retried on the next tick.
func (h *Heartbeater) Run(ctx context.Context) error {
	interval := h.Interval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		rec, err := h.Manager.Heartbeat(ctx, h.Issue, h.Session)
		switch {
		case err == nil:
			if h.OnBeat != nil {
				h.OnBeat(rec)
			}
		case errors.Is(err, ErrNotOwner), errors.Is(err, ErrNotFound):
			return err
		case ctx.Err() != nil:
			return nil
		default:
			if h.OnError != nil {
				h.OnError(err)
			}
		}
	}
}
