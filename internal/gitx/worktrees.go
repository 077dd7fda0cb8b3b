package gitx

import (
	"context"
	"strings"
)

// Worktree is one entry of `git worktree list --porcelain`.
type Worktree struct {
	Path     string
	Head     string
	Branch   string
	Bare     bool
	Detached bool
	Prunable bool
}

// ListWorktrees returns every worktree attached to the repository at dir.
// The main worktree comes first.
func ListWorktrees(ctx context.Context, dir string) ([]Worktree, error) {
	out, err := Run(ctx, dir, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return ParseWorktreeList(out), nil
}

// ParseWorktreeList parses porcelain worktree output.
func ParseWorktreeList(out string) []Worktree {
	var (
		list    []Worktree
		current *Worktree
	)
	flush := func() {
		if current != nil {
			list = append(list, *current)
			current = nil
		}
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			flush()
			continue
		}
		key, value, _ := strings.Cut(line, " ")
		switch key {
		case "worktree":
			flush()
			current = &Worktree{Path: value}
		case "HEAD":
			if current != nil {
				current.Head = value
			}
		case "branch":
			if current != nil {
				current.Branch = strings.TrimPrefix(value, "refs/heads/")
			}
		case "bare":
			if current != nil {
				current.Bare = true
			}
		case "detached":
			if current != nil {
				current.Detached = true
			}
		case "prunable":
			if current != nil {
				current.Prunable = true
			}
		}
	}
	flush()
	return list
}

// FindBranchCheckout returns the worktree that has branch checked out.
func FindBranchCheckout(list []Worktree, branch string) (Worktree, bool) {
	for _, wt := range list {
		if !wt.Bare && wt.Branch == branch {
			return wt, true
		}
	}
	return Worktree{}, false
}
