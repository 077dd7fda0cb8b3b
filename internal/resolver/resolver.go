// Package resolver picks the next executable issue from the dependency graph.
package resolver

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cmtonkinson/worksync/internal/graph"
	"github.com/cmtonkinson/worksync/internal/issue"
)

// Kind classifies a resolver outcome.
type Kind string

const (
	// KindFound means Outcome.Issue is executable.
	KindFound Kind = "found"
	// KindAllClosed means every issue is closed.
	KindAllClosed Kind = "all-closed"
	// KindBlocked means open work exists but none of it is executable.
	KindBlocked Kind = "blocked"
	// KindCycle means the dependency graph contains a cycle.
	KindCycle Kind = "cycle"
)

// ErrBlocked reports that open work exists but none of it is executable.
var ErrBlocked = errors.New("no executable issues")

// BlockedError carries the blocked outcome so callers can report why.
type BlockedError struct {
	Outcome Outcome
}

func (e *BlockedError) Error() string {
	return e.Outcome.Reason()
}

// Is matches ErrBlocked.
func (e *BlockedError) Is(target error) bool {
	return target == ErrBlocked
}

// Input is everything the resolver needs. Held maps issue id to the session
// holding a non-stale lock on it.
type Input struct {
	Issues  []issue.Issue
	Held    map[string]string
	Session string
}

// Outcome is the resolver result.
type Outcome struct {
	Kind  Kind
	Issue *issue.Issue
	// Resumed is true when the selected issue was in-progress and orphaned or
	// already held by the caller.
	Resumed bool
	// Waiting maps each non-closed issue to its unsatisfied dependencies.
	Waiting map[string][]string
	// Claimed maps otherwise executable issues to the live session holding them.
	// Found outcomes carry the issues skipped ahead of the selected one.
	Claimed map[string]string
	// Parked lists issues whose own status is blocked.
	Parked []string
	// Cycle is the offending path when Kind is KindCycle.
	Cycle []string
}

// Reason renders a one-line explanation for the outcome.
func (o Outcome) Reason() string {
	switch o.Kind {
	case KindFound:
		return fmt.Sprintf("next issue: %s", o.Issue.ID)
	case KindAllClosed:
		return "all issues are closed"
	case KindCycle:
		return fmt.Sprintf("dependency cycle: %s", graph.FormatPath(o.Cycle))
	case KindBlocked:
		parts := make([]string, 0, len(o.Waiting)+len(o.Claimed)+len(o.Parked))
		for _, id := range sortedKeys(o.Waiting) {
			parts = append(parts, fmt.Sprintf("%s waits on %s", id, strings.Join(o.Waiting[id], ", ")))
		}
		for _, id := range sortedKeys(o.Claimed) {
			parts = append(parts, fmt.Sprintf("%s held by %s", id, o.Claimed[id]))
		}
		for _, id := range o.Parked {
			parts = append(parts, id+" is marked blocked")
		}
		if len(parts) == 0 {
			return "no executable issues"
		}
		return "no executable issues: " + strings.Join(parts, "; ")
	}
	return string(o.Kind)
}

// Err returns a *graph.CycleError for cycle outcomes, a *BlockedError for
// blocked ones, and nil otherwise.
func (o Outcome) Err() error {
	switch o.Kind {
	case KindCycle:
		return &graph.CycleError{Path: o.Cycle}
	case KindBlocked:
		return &BlockedError{Outcome: o}
	}
	return nil
}

// FindNextExecutable checks the whole graph for cycles, then returns the
// first executable issue in version-then-name order.
func FindNextExecutable(in Input) Outcome {
	g := graph.New(issue.DependencyMap(in.Issues))
	if cycle := g.FindCycle(); cycle != nil {
		return Outcome{Kind: KindCycle, Cycle: cycle}
	}

	ordered := append([]issue.Issue(nil), in.Issues...)
	issue.Sort(ordered)
	byID := issue.ByID(ordered)

	waiting := make(map[string][]string)
	claimed := make(map[string]string)
	var parked []string
	allClosed := true

	for i := range ordered {
		iss := ordered[i]
		if iss.Status == issue.StatusClosed {
			continue
		}
		allClosed = false
		if iss.Status == issue.StatusBlocked {
			parked = append(parked, iss.ID)
			continue
		}
		if unsatisfied := unsatisfiedDeps(iss, byID); len(unsatisfied) > 0 {
			waiting[iss.ID] = unsatisfied
			continue
		}

		holder, locked := in.Held[iss.ID]
		ownedByCaller := locked && in.Session != "" && holder == in.Session
		if locked && !ownedByCaller {
			claimed[iss.ID] = holder
			continue
		}
		switch iss.Status {
		case issue.StatusOpen:
			return found(&iss, ownedByCaller, waiting, claimed, parked)
		case issue.StatusInProgress:
			return found(&iss, true, waiting, claimed, parked)
		}
	}

	if allClosed {
		return Outcome{Kind: KindAllClosed}
	}
	return Outcome{Kind: KindBlocked, Waiting: waiting, Claimed: claimed, Parked: parked}
}

// found builds a found outcome that keeps what was skipped on the way to iss.
func found(iss *issue.Issue, resumed bool, waiting map[string][]string, claimed map[string]string, parked []string) Outcome {
	out := Outcome{Kind: KindFound, Issue: iss, Resumed: resumed, Parked: parked}
	if len(waiting) > 0 {
		out.Waiting = waiting
	}
	if len(claimed) > 0 {
		out.Claimed = claimed
	}
	return out
}

// unsatisfiedDeps lists dependencies that are not closed, including ones
// missing from the index.
func unsatisfiedDeps(iss issue.Issue, byID map[string]issue.Issue) []string {
	var out []string
	for _, dep := range iss.DependsOn {
		target, ok := byID[dep]
		if !ok || target.Status != issue.StatusClosed {
			out = append(out, dep)
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
