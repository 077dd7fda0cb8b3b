package coord

import (
	"context"
	"errors"
	"time"

	"github.com/cmtonkinson/worksync/internal/graph"
	"github.com/cmtonkinson/worksync/internal/issue"
	"github.com/cmtonkinson/worksync/internal/lock"
)

// Board is a point-in-time view of every issue and every lock record.
type Board struct {
	Issues    []issue.Issue
	Locks     []lock.Status
	Threshold time.Duration
	TakenAt   time.Time
	// Warnings lists dangling dependencies and blocks lists that disagree
	// with depends_on.
	Warnings []string
}

// Held maps issues with a live lock to the holding session.
func (b Board) Held() map[string]string {
	held := make(map[string]string, len(b.Locks))
	for _, st := range b.Locks {
		if st.Held {
			held[st.Issue] = st.Session
		}
	}
	return held
}

// LockFor returns the lock record for issueID, if one exists.
func (b Board) LockFor(issueID string) (lock.Status, bool) {
	for _, st := range b.Locks {
		if st.Issue == issueID {
			return st, true
		}
	}
	return lock.Status{}, false
}

// Board reads the issue tree and the lock directory. It needs no session.
// Cycles are left for the caller to render; duplicate ids fail.
func (c *Coordinator) Board(ctx context.Context) (Board, error) {
	issues, err := c.issues.Scan(ctx)
	if err != nil {
		return Board{}, err
	}
	var warnings []string
	err = issue.SanityCheck(issues, func(msg string) { warnings = append(warnings, msg) })
	if err != nil && !errors.Is(err, graph.ErrCycle) {
		return Board{}, err
	}
	locks, err := c.locks.List(ctx)
	if err != nil {
		return Board{}, err
	}
	return Board{
		Issues:    issues,
		Locks:     locks,
		Threshold: c.locks.Threshold(),
		TakenAt:   c.clock.Now(),
		Warnings:  warnings,
	}, nil
}
