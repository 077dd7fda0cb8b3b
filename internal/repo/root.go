// Package repo locates the main checkout and the worksync state tree inside it.
package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cmtonkinson/worksync/internal/gitx"
)

// gitDirName is the filesystem entry that marks a git repository root.
const gitDirName = ".git"

// ErrRepoNotFound is returned when no git repository root can be discovered.
var ErrRepoNotFound = errors.New("no git repository found")

// DiscoverRoot resolves the enclosing checkout root by walking upward from
// start. Inside an issue worktree this is the worktree, not the main checkout.
func DiscoverRoot(start string) (string, error) {
	if start == "" {
		return "", fmt.Errorf("%w: provide a start directory or run inside a repo", ErrRepoNotFound)
	}
	absStart, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %s: %w", start, err)
	}
	absStart, err = filepath.EvalSymlinks(absStart)
	if err != nil {
		return "", fmt.Errorf("resolve symlinks for %s: %w", absStart, err)
	}
	info, err := os.Stat(absStart)
	if err != nil {
		return "", fmt.Errorf("stat start path %s: %w", absStart, err)
	}

	current := absStart
	if !info.IsDir() {
		current = filepath.Dir(absStart)
	}
	for {
		found, err := hasGitDir(current)
		if err != nil {
			return "", err
		}
		if found {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return "", fmt.Errorf("%w from %s; run inside a git repo or initialize one with `git init`", ErrRepoNotFound, absStart)
}

// MainCheckout resolves the main checkout that owns the coordination state,
// even when start lies inside a linked issue worktree.
func MainCheckout(ctx context.Context, start string) (string, error) {
	root, err := DiscoverRoot(start)
	if err != nil {
		return "", err
	}
	common, err := gitx.CommonDir(ctx, root)
	if err != nil {
		return "", fmt.Errorf("resolve git common dir for %s: %w", root, err)
	}
	common, err = filepath.EvalSymlinks(common)
	if err != nil {
		return "", fmt.Errorf("resolve symlinks for %s: %w", common, err)
	}
	if filepath.Base(common) != gitDirName {
		return "", fmt.Errorf("%w: %s has no main checkout (bare repository?)", ErrRepoNotFound, common)
	}
	return filepath.Dir(common), nil
}

// MainCheckoutFromCWD resolves the main checkout from the working directory.
func MainCheckoutFromCWD(ctx context.Context) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	return MainCheckout(ctx, cwd)
}

// hasGitDir reports whether the directory contains a .git entry.
func hasGitDir(dir string) (bool, error) {
	path := filepath.Join(dir, gitDirName)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.IsDir() || info.Mode().IsRegular(), nil
}
