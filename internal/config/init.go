// Package config provides configuration initialization helpers.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	gitignoreFileName = ".gitignore"
	gitignoreContent  = "_local-state/\n"
)

// layoutDirs lists the directories created by worksync init, relative to the repo root.
var layoutDirs = []string{
	repoConfigDirName,
	filepath.Join(repoConfigDirName, "issues"),
	filepath.Join(repoConfigDirName, "_local-state"),
	filepath.Join(repoConfigDirName, "_local-state", "locks"),
	filepath.Join(repoConfigDirName, "_local-state", "worktrees"),
}

// InitOptions configures init-time behaviors such as verbose logging.
type InitOptions struct {
	Verbose bool
	Writer  io.Writer
}

func (opts InitOptions) logf(format string, args ...interface{}) {
	if !opts.Verbose {
		return
	}
	writer := opts.Writer
	if writer == nil {
		writer = os.Stdout
	}
	fmt.Fprintf(writer, format+"\n", args...)
}

// InitRepoConfig writes the default config file if absent.
// It does not overwrite existing configuration files.
func InitRepoConfig(repoRoot string, opts InitOptions) error {
	if repoRoot == "" {
		return fmt.Errorf("repo root cannot be empty")
	}
	configPath := RepoConfigPath(repoRoot)
	if err := ensureDir(filepath.Dir(configPath), opts); err != nil {
		return fmt.Errorf("create config directory %s: %w", filepath.Dir(configPath), err)
	}
	exists, err := pathExists(configPath)
	if err != nil {
		return fmt.Errorf("check config file %s: %w", configPath, err)
	}
	if exists {
		return nil
	}

	data, err := yaml.Marshal(defaultFile())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("write config file %s: %w", configPath, err)
	}
	opts.logf("created file %s", repoRelativePath(repoRoot, configPath))
	return nil
}

// InitLayout creates the _worksync tree, the default config, and the
// ignore rule that keeps local state out of commits. It is idempotent.
func InitLayout(repoRoot string, opts InitOptions) error {
	if repoRoot == "" {
		return fmt.Errorf("repo root cannot be empty")
	}
	for _, dir := range layoutDirs {
		dirPath := filepath.Join(repoRoot, dir)
		if err := ensureDir(dirPath, opts); err != nil {
			return fmt.Errorf("create directory %s: %w", dirPath, err)
		}
	}
	keepPath := filepath.Join(repoRoot, repoConfigDirName, "issues", ".keep")
	if err := ensureKeepFile(keepPath, opts); err != nil {
		return fmt.Errorf("create .keep file %s: %w", keepPath, err)
	}
	if err := InitRepoConfig(repoRoot, opts); err != nil {
		return fmt.Errorf("initialize config: %w", err)
	}
	if err := ensureGitignore(repoRoot, opts); err != nil {
		return fmt.Errorf("create gitignore: %w", err)
	}
	return nil
}

// configFile is the on-disk shape of config.yaml. Durations are written as
// strings so the file stays human-editable.
type configFile struct {
	BaseBranch string `yaml:"base_branch"`
	Remote     string `yaml:"remote"`
	Push       bool   `yaml:"push"`
	Locks      struct {
		StaleThreshold    string `yaml:"stale_threshold"`
		HeartbeatInterval string `yaml:"heartbeat_interval"`
		WaitTimeout       string `yaml:"wait_timeout"`
	} `yaml:"locks"`
	Issues struct {
		ScanLimit int `yaml:"scan_limit"`
	} `yaml:"issues"`
	Merge struct {
		Attempts   int    `yaml:"attempts"`
		RetryDelay string `yaml:"retry_delay"`
	} `yaml:"merge"`
	Telemetry struct {
		Enabled bool `yaml:"enabled"`
		Stdout  bool `yaml:"stdout"`
	} `yaml:"telemetry"`
}

func defaultFile() configFile {
	defaults := Defaults()
	var file configFile
	file.BaseBranch = defaults.BaseBranch
	file.Remote = defaults.Remote
	file.Push = defaults.Push
	file.Locks.StaleThreshold = defaults.Locks.StaleThreshold.String()
	file.Locks.HeartbeatInterval = defaults.Locks.HeartbeatInterval.String()
	file.Locks.WaitTimeout = defaults.Locks.WaitTimeout.String()
	file.Issues.ScanLimit = defaults.Issues.ScanLimit
	file.Merge.Attempts = defaults.Merge.Attempts
	file.Merge.RetryDelay = defaults.Merge.RetryDelay.String()
	file.Telemetry.Enabled = defaults.Telemetry.Enabled
	file.Telemetry.Stdout = defaults.Telemetry.Stdout
	return file
}

func ensureGitignore(repoRoot string, opts InitOptions) error {
	path := filepath.Join(repoRoot, repoConfigDirName, gitignoreFileName)
	exists, err := pathExists(path)
	if err != nil {
		return fmt.Errorf("stat gitignore %s: %w", path, err)
	}
	if exists {
		return nil
	}
	if err := os.WriteFile(path, []byte(gitignoreContent), 0o644); err != nil {
		return fmt.Errorf("write gitignore %s: %w", path, err)
	}
	opts.logf("created file %s", repoRelativePath(repoRoot, path))
	return nil
}

func ensureDir(path string, opts InitOptions) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("path %s exists but is not a directory", path)
		}
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	opts.logf("created directory %s", path)
	return nil
}

func ensureKeepFile(path string, opts InitOptions) error {
	exists, err := pathExists(path)
	if err != nil || exists {
		return err
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return err
	}
	opts.logf("created file %s", path)
	return nil
}

func pathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func repoRelativePath(repoRoot, target string) string {
	rel, err := filepath.Rel(repoRoot, target)
	if err != nil {
		return filepath.ToSlash(target)
	}
	return filepath.ToSlash(rel)
}
