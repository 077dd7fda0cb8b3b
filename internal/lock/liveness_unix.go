//go:build unix

package lock

import (
	"errors"

	"golang.org/x/sys/unix"
)

// processAlive probes pid with signal 0. EPERM means the process exists but
// belongs to someone else.
func processAlive(pid int) Liveness {
	if pid <= 0 {
		return LivenessUnknown
	}
	err := unix.Kill(pid, 0)
	switch {
	case err == nil, errors.Is(err, unix.EPERM):
		return LivenessAlive
	case errors.Is(err, unix.ESRCH):
		return LivenessDead
	default:
		return LivenessUnknown
	}
}
