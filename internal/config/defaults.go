// Package config provides default configuration handling.
package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultBaseBranch        = "main"
	defaultRemote            = "origin"
	defaultStaleThreshold    = 4 * time.Hour
	defaultHeartbeatInterval = 5 * time.Minute
	defaultWaitTimeout       = 30 * time.Second
	defaultScanLimit         = 5000
	defaultMergeAttempts     = 3
	defaultMergeRetryDelay   = time.Second
)

// Defaults returns the documented configuration defaults.
//
// Defaults:
// - base_branch: "main"
// - remote: "origin"
// - push: false
// - locks.stale_threshold: 4h
// - locks.heartbeat_interval: 5m
// - locks.wait_timeout: 30s
// - issues.scan_limit: 5000
// - merge.attempts: 3
// - merge.retry_delay: 1s
// - telemetry.enabled: false
// - telemetry.stdout: false
func Defaults() Config {
	return Config{
		BaseBranch: defaultBaseBranch,
		Remote:     defaultRemote,
		Locks: LocksConfig{
			StaleThreshold:    defaultStaleThreshold,
			HeartbeatInterval: defaultHeartbeatInterval,
			WaitTimeout:       defaultWaitTimeout,
		},
		Issues: IssuesConfig{
			ScanLimit: defaultScanLimit,
		},
		Merge: MergeConfig{
			Attempts:   defaultMergeAttempts,
			RetryDelay: defaultMergeRetryDelay,
		},
	}
}

// ApplyDefaults fills missing or invalid values with documented defaults.
func ApplyDefaults(cfg Config, warn func(string)) Config {
	defaults := Defaults()

	cfg.BaseBranch = normalizeBranch(cfg.BaseBranch, defaults.BaseBranch, "base_branch", warn)
	cfg.Remote = normalizeRemote(cfg.Remote, defaults.Remote, "remote", warn)

	cfg.Locks.StaleThreshold = normalizePositiveDuration(
		cfg.Locks.StaleThreshold,
		defaults.Locks.StaleThreshold,
		"locks.stale_threshold",
		warn,
	)
	cfg.Locks.HeartbeatInterval = normalizePositiveDuration(
		cfg.Locks.HeartbeatInterval,
		defaults.Locks.HeartbeatInterval,
		"locks.heartbeat_interval",
		warn,
	)
	if cfg.Locks.HeartbeatInterval >= cfg.Locks.StaleThreshold {
		interval := cfg.Locks.StaleThreshold / 2
		emitWarning(warn, fmt.Sprintf("locks.heartbeat_interval %s is not below locks.stale_threshold; using %s", cfg.Locks.HeartbeatInterval, interval))
		cfg.Locks.HeartbeatInterval = interval
	}
	cfg.Locks.WaitTimeout = normalizePositiveDuration(
		cfg.Locks.WaitTimeout,
		defaults.Locks.WaitTimeout,
		"locks.wait_timeout",
		warn,
	)

	cfg.Issues.ScanLimit = normalizePositiveInt(
		cfg.Issues.ScanLimit,
		defaults.Issues.ScanLimit,
		"issues.scan_limit",
		warn,
	)

	cfg.Merge.Attempts = normalizePositiveInt(
		cfg.Merge.Attempts,
		defaults.Merge.Attempts,
		"merge.attempts",
		warn,
	)
	cfg.Merge.RetryDelay = normalizePositiveDuration(
		cfg.Merge.RetryDelay,
		defaults.Merge.RetryDelay,
		"merge.retry_delay",
		warn,
	)
	return cfg
}

// normalizePositiveInt returns the fallback for zero or negative values.
func normalizePositiveInt(value int, fallback int, key string, warn func(string)) int {
	if value > 0 {
		return value
	}
	if value < 0 {
		emitWarning(warn, "invalid "+key+"; using default")
	}
	return fallback
}

func normalizePositiveDuration(value time.Duration, fallback time.Duration, key string, warn func(string)) time.Duration {
	if value > 0 {
		return value
	}
	if value < 0 {
		emitWarning(warn, "invalid "+key+"; using default")
	}
	return fallback
}

// normalizeBranch rejects names git would refuse as a branch.
func normalizeBranch(value string, fallback string, key string, warn func(string)) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	if strings.HasPrefix(value, "-") || strings.ContainsAny(value, " ~^:?*[\\") || strings.Contains(value, "..") {
		emitWarning(warn, fmt.Sprintf("invalid %s %q; using default", key, value))
		return fallback
	}
	return value
}

func normalizeRemote(value string, fallback string, key string, warn func(string)) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	if strings.ContainsAny(value, " /") {
		emitWarning(warn, fmt.Sprintf("invalid %s %q; using default", key, value))
		return fallback
	}
	return value
}

// emitWarning sends a warning message when a handler is configured.
func emitWarning(warn func(string), message string) {
	if warn == nil {
		return
	}
	warn(message)
}
