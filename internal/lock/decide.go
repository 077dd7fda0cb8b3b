package lock

import "time"

// Outcome names the result of an acquire decision.
type Outcome string

const (
	// OutcomeCreated means no record existed.
	OutcomeCreated Outcome = "created"
	// OutcomeRefreshed means the caller already held the lock.
	OutcomeRefreshed Outcome = "refreshed"
	// OutcomeTookOver means a stale record from another session was replaced.
	OutcomeTookOver Outcome = "took-over"
	// OutcomeLocked means another live session holds the lock.
	OutcomeLocked Outcome = "locked"
)

// IsStale reports whether a record is old enough to be taken over.
func IsStale(record Record, now time.Time, threshold time.Duration) bool {
	return record.Age(now) >= threshold
}

// Decide chooses what an acquire by session should do given the existing
// record, if any.
func Decide(existing *Record, session string, now time.Time, threshold time.Duration) Outcome {
	switch {
	case existing == nil:
		return OutcomeCreated
	case existing.Session == session:
		return OutcomeRefreshed
	case IsStale(*existing, now, threshold):
		return OutcomeTookOver
	default:
		return OutcomeLocked
	}
}

// CheckOwner validates that session holds existing. A nil record yields
// ErrNotFound.
func CheckOwner(existing *Record, issueID, session string) error {
	if existing == nil {
		return ErrNotFound
	}
	if existing.Session != session {
		return &OwnerError{Issue: issueID, Session: session, Holder: existing.Session}
	}
	return nil
}
