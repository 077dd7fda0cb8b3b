// Package result maps coordination errors onto the structured envelope and
// exit codes reported to host agents.
package result

import (
	"context"
	"errors"

	"github.com/cmtonkinson/worksync/internal/graph"
	"github.com/cmtonkinson/worksync/internal/issue"
	"github.com/cmtonkinson/worksync/internal/lock"
	"github.com/cmtonkinson/worksync/internal/merge"
	"github.com/cmtonkinson/worksync/internal/protect"
	"github.com/cmtonkinson/worksync/internal/resolver"
)

// Kind names a failure class.
type Kind string

const (
	KindLocked        Kind = "Locked"
	KindNotOwner      Kind = "NotOwner"
	KindNotFound      Kind = "NotFound"
	KindCycleDetected Kind = "CycleDetected"
	KindDiverged      Kind = "Diverged"
	KindConflict      Kind = "Conflict"
	KindNetworkError  Kind = "NetworkError"
	KindScanOverflow  Kind = "ScanOverflow"
	KindDirtyWorktree Kind = "DirtyWorktree"
	KindProtected     Kind = "Protected"
	KindInvalidStatus Kind = "InvalidStatus"
	KindBlocked       Kind = "Blocked"
	KindCanceled      Kind = "Canceled"
	KindUsage         Kind = "Usage"
	KindError         Kind = "Error"
)

// Exit codes.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
	ExitRetry = 3
)

// ErrUsage marks invalid command-line input.
var ErrUsage = errors.New("usage error")

type usageError struct {
	err error
}

func (e usageError) Error() string        { return e.err.Error() }
func (e usageError) Unwrap() error        { return e.err }
func (e usageError) Is(target error) bool { return target == ErrUsage }

// Usage marks err as a usage error.
func Usage(err error) error {
	if err == nil {
		return nil
	}
	return usageError{err: err}
}

// classes is checked in order; the first match wins.
var classes = []struct {
	target error
	kind   Kind
}{
	{ErrUsage, KindUsage},
	{graph.ErrCycle, KindCycleDetected},
	{lock.ErrLocked, KindLocked},
	{lock.ErrNotOwner, KindNotOwner},
	{lock.ErrNotFound, KindNotFound},
	{issue.ErrNotFound, KindNotFound},
	{issue.ErrScanOverflow, KindScanOverflow},
	{issue.ErrInvalidStatus, KindInvalidStatus},
	{merge.ErrDiverged, KindDiverged},
	{merge.ErrConflict, KindConflict},
	{merge.ErrNetwork, KindNetworkError},
	{merge.ErrDirtyWorktree, KindDirtyWorktree},
	{protect.ErrProtected, KindProtected},
	{resolver.ErrBlocked, KindBlocked},
	{context.Canceled, KindCanceled},
	{context.DeadlineExceeded, KindCanceled},
}

// Classify maps err to its Kind. A nil error has no kind.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	for _, c := range classes {
		if errors.Is(err, c.target) {
			return c.kind
		}
	}
	return KindError
}

// ExitCode returns the process exit status for err.
func ExitCode(err error) int {
	switch Classify(err) {
	case "":
		return ExitOK
	case KindLocked, KindBlocked:
		return ExitRetry
	case KindUsage:
		return ExitUsage
	default:
		return ExitError
	}
}

// Envelope is the JSON document every command emits with --json.
type Envelope struct {
	OK      bool   `json:"ok"`
	Kind    Kind   `json:"kind,omitempty"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Success builds a successful envelope.
func Success(message string, data any) Envelope {
	return Envelope{OK: true, Message: message, Data: data}
}

// Failure builds an envelope for err. Typed errors with useful context are
// attached as data.
func Failure(err error) Envelope {
	return Envelope{
		OK:      false,
		Kind:    Classify(err),
		Message: err.Error(),
		Data:    details(err),
	}
}

func details(err error) any {
	var locked *lock.LockedError
	if errors.As(err, &locked) {
		return map[string]any{
			"issue":       locked.Issue,
			"holder":      locked.Holder,
			"age_seconds": int64(locked.Age.Seconds()),
			"worktree":    locked.Worktree,
		}
	}
	var owner *lock.OwnerError
	if errors.As(err, &owner) {
		return map[string]any{"issue": owner.Issue, "session": owner.Session, "holder": owner.Holder}
	}
	var cycle *graph.CycleError
	if errors.As(err, &cycle) {
		return map[string]any{"cycle": cycle.Path}
	}
	var blocked *resolver.BlockedError
	if errors.As(err, &blocked) {
		return map[string]any{
			"waiting": blocked.Outcome.Waiting,
			"claimed": blocked.Outcome.Claimed,
			"parked":  blocked.Outcome.Parked,
		}
	}
	var protected *protect.ProtectedError
	if errors.As(err, &protected) {
		return map[string]any{
			"target":    protected.Target,
			"protected": protected.Protected,
			"reason":    protected.Reason,
			"cwd":       protected.Cwd,
		}
	}
	var diverged *merge.DivergedError
	if errors.As(err, &diverged) {
		return map[string]any{
			"branch":        diverged.Branch,
			"remote":        diverged.Remote,
			"local_commit":  diverged.LocalCommit,
			"remote_commit": diverged.RemoteCommit,
			"ahead":         diverged.Ahead,
		}
	}
	var conflict *merge.ConflictError
	if errors.As(err, &conflict) {
		return map[string]any{
			"issue_branch": conflict.IssueBranch,
			"base_branch":  conflict.BaseBranch,
			"issue_commit": conflict.IssueCommit,
			"base_commit":  conflict.BaseCommit,
		}
	}
	var dirty *merge.DirtyError
	if errors.As(err, &dirty) {
		return map[string]any{"checkout": dirty.Checkout, "files": dirty.Files}
	}
	var overflow *issue.ScanOverflowError
	if errors.As(err, &overflow) {
		return map[string]any{"root": overflow.Root, "limit": overflow.Limit}
	}
	return nil
}
