// Package config provides configuration loading helpers.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	userConfigDirName = ".config"
	configFileName    = "config.yaml"
	repoConfigDirName = "_worksync"
	envPrefix         = "WORKSYNC"
	userConfigAppDir  = "worksync"
	configTypeYAML    = "yaml"
)

// Load resolves configuration from defaults, the user file, the repo file,
// WORKSYNC_* environment variables, and CLI overrides, in that order.
// Override keys use the dotted form ("locks.stale_threshold").
func Load(repoRoot string, overrides map[string]any, warn func(string)) (Config, error) {
	v := viper.New()
	v.SetConfigType(configTypeYAML)
	registerDefaults(v)

	userPath, err := userConfigPath()
	if err != nil {
		return Config{}, err
	}
	if err := mergeConfigLayer(v, userPath, "user defaults"); err != nil {
		return Config{}, err
	}
	if repoRoot != "" {
		if err := mergeConfigLayer(v, RepoConfigPath(repoRoot), "repo overrides"); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return ApplyDefaults(cfg, warn), nil
}

// RepoConfigPath returns the repository config file location.
func RepoConfigPath(repoRoot string) string {
	return filepath.Join(repoRoot, repoConfigDirName, configFileName)
}

// userConfigPath resolves the user defaults path for config.yaml.
func userConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}
	return filepath.Join(homeDir, userConfigDirName, userConfigAppDir, configFileName), nil
}

// mergeConfigLayer merges a YAML file into v; a missing file is skipped.
func mergeConfigLayer(v *viper.Viper, path string, label string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s config %s: %w", label, path, err)
	}
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("load %s config %s: %w", label, path, err)
	}
	return nil
}

// registerDefaults seeds every key so environment variables are visible to Unmarshal.
func registerDefaults(v *viper.Viper) {
	defaults := Defaults()
	v.SetDefault("base_branch", defaults.BaseBranch)
	v.SetDefault("remote", defaults.Remote)
	v.SetDefault("push", defaults.Push)
	v.SetDefault("locks.stale_threshold", defaults.Locks.StaleThreshold)
	v.SetDefault("locks.heartbeat_interval", defaults.Locks.HeartbeatInterval)
	v.SetDefault("locks.wait_timeout", defaults.Locks.WaitTimeout)
	v.SetDefault("issues.scan_limit", defaults.Issues.ScanLimit)
	v.SetDefault("merge.attempts", defaults.Merge.Attempts)
	v.SetDefault("merge.retry_delay", defaults.Merge.RetryDelay)
	v.SetDefault("telemetry.enabled", defaults.Telemetry.Enabled)
	v.SetDefault("telemetry.stdout", defaults.Telemetry.Stdout)
}
