// Package lock implements per-issue advisory locks stored as small JSON
// records on a shared filesystem, with staleness-based takeover.
package lock

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultStaleThreshold is the age after which a lock may be taken over.
const DefaultStaleThreshold = 4 * time.Hour

// Record is the persisted lock for one issue. HeartbeatAt is the timestamp
// that heartbeats refresh and staleness is measured from.
type Record struct {
	Issue       string    `json:"issue"`
	Session     string    `json:"session"`
	AcquiredAt  time.Time `json:"acquired_at"`
	HeartbeatAt time.Time `json:"heartbeat_at"`
	Worktree    string    `json:"worktree,omitempty"`
	PID         int       `json:"pid,omitempty"`
	Hostname    string    `json:"hostname,omitempty"`
}

// Age reports how long ago the record was last refreshed. Records written in
// the future by a skewed clock have age zero.
func (r Record) Age(now time.Time) time.Duration {
	age := now.Sub(r.HeartbeatAt)
	if age < 0 {
		return 0
	}
	return age
}

var (
	// ErrLocked is returned when another live session holds the issue.
	ErrLocked = errors.New("issue locked")
	// ErrNotOwner is returned when a session touches a lock it does not hold.
	ErrNotOwner = errors.New("lock not owned by session")
	// ErrNotFound is returned when no lock record exists for the issue.
	ErrNotFound = errors.New("lock not found")
)

// LockedError describes the live holder that blocked an acquire.
type LockedError struct {
	Issue    string
	Holder   string
	Age      time.Duration
	Worktree string
}

func (e *LockedError) Error() string {
	msg := fmt.Sprintf("%v: %s held by session %s for %s", ErrLocked, e.Issue, e.Holder, e.Age.Round(time.Second))
	if e.Worktree != "" {
		msg += " (worktree " + e.Worktree + ")"
	}
	return msg
}

// Is matches ErrLocked.
func (e *LockedError) Is(target error) bool {
	return target == ErrLocked
}

// OwnerError describes a release or heartbeat by the wrong session.
type OwnerError struct {
	Issue   string
	Session string
	Holder  string
}

func (e *OwnerError) Error() string {
	return fmt.Sprintf("%v: %s is held by session %s, not %s", ErrNotOwner, e.Issue, e.Holder, e.Session)
}

// Is matches ErrNotOwner.
func (e *OwnerError) Is(target error) bool {
	return target == ErrNotOwner
}

// validateIssueID keeps issue ids usable as lock file names.
func validateIssueID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("issue id is required")
	}
	if strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("issue id %q is not a valid lock name", id)
	}
	return nil
}
