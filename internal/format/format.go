// Package format renders lock ages and holders for terminal output.
package format

import (
	"fmt"
	"strings"
	"time"
)

// DurationShort formats a duration into a short string (e.g., "1h2m3s").
func DurationShort(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	totalSeconds := int64(d.Seconds())
	if totalSeconds < 60 {
		return fmt.Sprintf("%ds", totalSeconds)
	}
	minutes := totalSeconds / 60
	seconds := totalSeconds % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	hours := minutes / 60
	minutes = minutes % 60
	return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
}

// Remaining reports the time left before a lock of the given age goes stale,
// or "stale" once the threshold has passed.
func Remaining(age, threshold time.Duration) string {
	if age >= threshold {
		return "stale"
	}
	return DurationShort(threshold - age)
}

// PID formats a process ID. Returns an empty string if PID is non-positive.
func PID(pid int) string {
	if pid <= 0 {
		return ""
	}
	return fmt.Sprintf("%d", pid)
}

// Holder renders a lock holder as "session@host:pid", omitting missing parts.
func Holder(session, hostname string, pid int) string {
	if session == "" {
		return "-"
	}
	var b strings.Builder
	b.WriteString(session)
	if hostname != "" {
		b.WriteString("@")
		b.WriteString(hostname)
	}
	if p := PID(pid); p != "" {
		b.WriteString(":")
		b.WriteString(p)
	}
	return b.String()
}
