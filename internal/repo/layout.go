package repo

import "path/filepath"

// Repo-relative locations of the coordination state.
const (
	StateDirName     = "_worksync"
	IssuesDirName    = "_worksync/issues"
	LocalStateName   = "_worksync/_local-state"
	LocksDirName     = "_worksync/_local-state/locks"
	WorktreesDirName = "_worksync/_local-state/worktrees"
)

// Layout holds absolute paths of the coordination tree for one main checkout.
type Layout struct {
	Root       string
	StateDir   string
	IssuesDir  string
	LocalState string
	LocksDir   string
	Worktrees  string
}

// NewLayout derives the state paths under root.
func NewLayout(root string) Layout {
	join := func(rel string) string {
		return filepath.Join(root, filepath.FromSlash(rel))
	}
	return Layout{
		Root:       root,
		StateDir:   join(StateDirName),
		IssuesDir:  join(IssuesDirName),
		LocalState: join(LocalStateName),
		LocksDir:   join(LocksDirName),
		Worktrees:  join(WorktreesDirName),
	}
}
