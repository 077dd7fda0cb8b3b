// Package gitx runs git commands and parses the plumbing output the
// coordinator relies on.
package gitx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// CommandError is a failed git invocation.
type CommandError struct {
	Dir      string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("git %s failed: %v: %s", strings.Join(e.Args, " "), e.Err, e.Stderr)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Run executes git in dir and returns stdout.
func Run(ctx context.Context, dir string, args ...string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", errors.New("git directory is required")
	}
	if len(args) == 0 {
		return "", errors.New("git arguments are required")
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return stdout.String(), &CommandError{
			Dir:      dir,
			Args:     args,
			ExitCode: code,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      err,
		}
	}
	return stdout.String(), nil
}

// IsExitStatus reports whether err is a git failure with the given status.
func IsExitStatus(err error, status int) bool {
	var cmdErr *CommandError
	return errors.As(err, &cmdErr) && cmdErr.ExitCode == status
}

// StderrContains reports whether err is a git failure whose stderr contains
// any of the fragments.
func StderrContains(err error, fragments ...string) bool {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	for _, fragment := range fragments {
		if strings.Contains(cmdErr.Stderr, fragment) {
			return true
		}
	}
	return false
}

// RevParse resolves ref to a full object name.
func RevParse(ctx context.Context, dir, ref string) (string, error) {
	out, err := Run(ctx, dir, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", ref, err)
	}
	return strings.TrimSpace(out), nil
}

// RefExists reports whether ref resolves to a commit.
func RefExists(ctx context.Context, dir, ref string) (bool, error) {
	_, err := Run(ctx, dir, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	if err == nil {
		return true, nil
	}
	if IsExitStatus(err, 1) {
		return false, nil
	}
	return false, err
}

// BranchExists reports whether a local branch exists.
func BranchExists(ctx context.Context, dir, branch string) (bool, error) {
	if strings.TrimSpace(branch) == "" {
		return false, errors.New("branch is required")
	}
	_, err := Run(ctx, dir, "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	if err == nil {
		return true, nil
	}
	if IsExitStatus(err, 1) {
		return false, nil
	}
	return false, err
}

// IsAncestor reports whether ancestor is reachable from descendant. Equal
// commits count as ancestors.
func IsAncestor(ctx context.Context, dir, ancestor, descendant string) (bool, error) {
	_, err := Run(ctx, dir, "merge-base", "--is-ancestor", ancestor, descendant)
	if err == nil {
		return true, nil
	}
	if IsExitStatus(err, 1) {
		return false, nil
	}
	return false, fmt.Errorf("compare %s and %s: %w", ancestor, descendant, err)
}

// CommonDir returns the absolute git common directory, shared by every
// worktree of the repository.
func CommonDir(ctx context.Context, dir string) (string, error) {
	out, err := Run(ctx, dir, "rev-parse", "--path-format=absolute", "--git-common-dir")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// DirtyPaths lists tracked paths with uncommitted changes, skipping any whose
// path starts with one of the ignored prefixes.
func DirtyPaths(ctx context.Context, dir string, ignorePrefixes ...string) ([]string, error) {
	out, err := Run(ctx, dir, "status", "--porcelain", "--untracked-files=no")
	if err != nil {
		return nil, fmt.Errorf("status %s: %w", dir, err)
	}
	var dirty []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		path := strings.TrimSpace(line[3:])
		if _, after, ok := strings.Cut(path, " -> "); ok {
			path = after
		}
		path = strings.Trim(path, `"`)
		if hasAnyPrefix(path, ignorePrefixes) {
			continue
		}
		dirty = append(dirty, path)
	}
	return dirty, nil
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
