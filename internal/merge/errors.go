package merge

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConflict means the issue branch is not a descendant of the base.
	ErrConflict = errors.New("merge conflict")
	// ErrDiverged means the local base has commits the remote lacks.
	ErrDiverged = errors.New("base branch diverged from remote")
	// ErrNetwork means the remote could not be reached.
	ErrNetwork = errors.New("remote unreachable")
	// ErrDirtyWorktree means the base checkout has uncommitted changes in
	// the way of the fast-forward.
	ErrDirtyWorktree = errors.New("base checkout has uncommitted changes")
)

// NetworkError wraps a failed fetch or push.
type NetworkError struct {
	Remote string
	Branch string
	Op     string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%v: %s %s %s: %v", ErrNetwork, e.Op, e.Remote, e.Branch, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Is matches ErrNetwork.
func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// DivergedError reports a base branch that cannot be fast-forwarded to its
// remote counterpart.
type DivergedError struct {
	Branch       string
	Remote       string
	LocalCommit  string
	RemoteCommit string
	Ahead        int
}

func (e *DivergedError) Error() string {
	return fmt.Sprintf("%v: %s is %d commit(s) ahead of %s/%s (local %s, remote %s); reconcile manually",
		ErrDiverged, e.Branch, e.Ahead, e.Remote, e.Branch, short(e.LocalCommit), short(e.RemoteCommit))
}

// Is matches ErrDiverged.
func (e *DivergedError) Is(target error) bool { return target == ErrDiverged }

// ConflictError reports an issue branch that cannot be fast-forwarded onto
// the base.
type ConflictError struct {
	IssueBranch string
	BaseBranch  string
	IssueCommit string
	BaseCommit  string
	Detail      string
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("%v: %s (%s) is not a descendant of %s (%s)",
		ErrConflict, e.IssueBranch, short(e.IssueCommit), e.BaseBranch, short(e.BaseCommit))
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is matches ErrConflict.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// DirtyError lists the files blocking the fast-forward.
type DirtyError struct {
	Checkout string
	Files    []string
	Detail   string
}

func (e *DirtyError) Error() string {
	if len(e.Files) > 0 {
		return fmt.Sprintf("%v: %s has changes in %s", ErrDirtyWorktree, e.Checkout, strings.Join(e.Files, ", "))
	}
	return fmt.Sprintf("%v: %s: %s", ErrDirtyWorktree, e.Checkout, e.Detail)
}

// Is matches ErrDirtyWorktree.
func (e *DirtyError) Is(target error) bool { return target == ErrDirtyWorktree }

func short(sha string) string {
	if len(sha) > 10 {
		return sha[:10]
	}
	return sha
}
