// Package config defines the worksync configuration model.
package config

import "time"

// Config holds the resolved worksync configuration.
type Config struct {
	BaseBranch string          `mapstructure:"base_branch"`
	Remote     string          `mapstructure:"remote"`
	Push       bool            `mapstructure:"push"`
	Locks      LocksConfig     `mapstructure:"locks"`
	Issues     IssuesConfig    `mapstructure:"issues"`
	Merge      MergeConfig     `mapstructure:"merge"`
	Telemetry  TelemetryConfig `mapstructure:"telemetry"`
}

// LocksConfig controls lock staleness and keepalive cadence.
type LocksConfig struct {
	StaleThreshold    time.Duration `mapstructure:"stale_threshold"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	// WaitTimeout bounds how long a command waits for a filesystem guard.
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
}

// IssuesConfig controls the issue index scan.
type IssuesConfig struct {
	ScanLimit int `mapstructure:"scan_limit"`
}

// MergeConfig controls retry of transient git contention during integration.
type MergeConfig struct {
	Attempts   int           `mapstructure:"attempts"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// TelemetryConfig toggles OpenTelemetry instrumentation.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Stdout  bool `mapstructure:"stdout"`
}
