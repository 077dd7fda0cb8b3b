// Package audit provides the append-only coordination log.
package audit

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cmtonkinson/worksync/internal/clock"
)

const (
	// auditLogFileName is the filename used for audit logging.
	auditLogFileName = "audit.log"
	// auditLogFileMode defines the permissions for the audit log file.
	auditLogFileMode = 0o644
	// auditLogDirMode defines the permissions for the audit log directory.
	auditLogDirMode = 0o755
	// noSession stands in for entries written outside a session.
	noSession = "-"
)

const (
	// EventLockAcquire records a new or refreshed lock.
	EventLockAcquire = "lock.acquire"
	// EventLockTakeover records a stale lock replaced by another session.
	EventLockTakeover = "lock.takeover"
	// EventLockRelease records a released lock.
	EventLockRelease = "lock.release"
	// EventLockHeartbeat records a heartbeat refresh.
	EventLockHeartbeat = "lock.heartbeat"
	// EventWorktreeCreate records worktree creation.
	EventWorktreeCreate = "worktree.create"
	// EventWorktreeDelete records worktree deletion.
	EventWorktreeDelete = "worktree.delete"
	// EventWorktreeDeleteRefused records a deletion the guard blocked.
	EventWorktreeDeleteRefused = "worktree.delete.refused"
	// EventMergeIntegrate records a successful integration.
	EventMergeIntegrate = "merge.integrate"
	// EventMergeRejected records an integration that failed with a named kind.
	EventMergeRejected = "merge.rejected"
	// EventIssueStatus records an issue status change.
	EventIssueStatus = "issue.status"
	// EventIssueDependency records a dependency edge change.
	EventIssueDependency = "issue.dependency"
)

// Logger appends audit entries to a log file.
type Logger struct {
	path     string
	warnings io.Writer
	clock    clock.Clock
	mu       sync.Mutex
}

// Field represents a logfmt key/value pair.
type Field struct {
	Key   string
	Value string
}

// Entry captures the required audit log fields and any optional fields.
type Entry struct {
	Issue   string
	Session string
	Event   string
	Fields  []Field
}

// NewLogger builds an audit logger writing audit.log inside stateDir.
func NewLogger(stateDir string, warnings io.Writer, c clock.Clock) (*Logger, error) {
	if stateDir == "" {
		return nil, errors.New("state directory is required")
	}
	if warnings == nil {
		warnings = os.Stderr
	}
	return &Logger{
		path:     filepath.Join(stateDir, auditLogFileName),
		warnings: warnings,
		clock:    clock.OrSystem(c),
	}, nil
}

// Path returns the audit log location.
func (logger *Logger) Path() string {
	return logger.path
}

// Log writes a generic audit entry to the log file.
func (logger *Logger) Log(entry Entry) error {
	if logger == nil {
		return errors.New("audit logger is nil")
	}
	logger.mu.Lock()
	defer logger.mu.Unlock()

	line, err := logger.formatEntry(entry)
	if err != nil {
		logger.warnf("audit log entry rejected: %v", err)
		return err
	}

	exists, err := fileExists(logger.path)
	if err != nil {
		logger.warnf("audit log check failed for %s: %v", logger.path, err)
		return err
	}
	if !exists {
		logger.warnf("audit log missing at %s; creating new file", logger.path)
	}

	if err := logger.appendLine(line); err != nil {
		logger.warnf("audit log write failed for %s: %v", logger.path, err)
		return err
	}
	return nil
}

// LogAcquire records a lock acquire. A non-empty previous session marks a
// takeover.
func (logger *Logger) LogAcquire(issue, session, outcome, worktree, previous string) error {
	event := EventLockAcquire
	if previous != "" {
		event = EventLockTakeover
	}
	return logger.Log(Entry{
		Issue:   issue,
		Session: session,
		Event:   event,
		Fields: []Field{
			{Key: "outcome", Value: outcome},
			{Key: "worktree", Value: worktree},
			{Key: "previous_session", Value: previous},
		},
	})
}

// LogRelease records a lock release.
func (logger *Logger) LogRelease(issue, session string) error {
	return logger.Log(Entry{Issue: issue, Session: session, Event: EventLockRelease})
}

// LogHeartbeat records a heartbeat.
func (logger *Logger) LogHeartbeat(issue, session string) error {
	return logger.Log(Entry{Issue: issue, Session: session, Event: EventLockHeartbeat})
}

// LogWorktreeCreate records a worktree creation event.
func (logger *Logger) LogWorktreeCreate(issue, session, path, branch string) error {
	return logger.Log(Entry{
		Issue:   issue,
		Session: session,
		Event:   EventWorktreeCreate,
		Fields: []Field{
			{Key: "path", Value: path},
			{Key: "branch", Value: branch},
		},
	})
}

// LogWorktreeDelete records a worktree deletion event.
func (logger *Logger) LogWorktreeDelete(issue, session, path string) error {
	return logger.Log(Entry{
		Issue:   issue,
		Session: session,
		Event:   EventWorktreeDelete,
		Fields:  []Field{{Key: "path", Value: path}},
	})
}

// LogWorktreeDeleteRefused records a deletion blocked by the guard.
func (logger *Logger) LogWorktreeDeleteRefused(issue, session, path, protected, reason, cwd string) error {
	return logger.Log(Entry{
		Issue:   issue,
		Session: session,
		Event:   EventWorktreeDeleteRefused,
		Fields: []Field{
			{Key: "path", Value: path},
			{Key: "protected", Value: protected},
			{Key: "reason", Value: reason},
			{Key: "cwd", Value: cwd},
		},
	})
}

// LogIntegrate records a successful integration.
func (logger *Logger) LogIntegrate(issue, session, base, previous, final string, fastForwarded bool) error {
	return logger.Log(Entry{
		Issue:   issue,
		Session: session,
		Event:   EventMergeIntegrate,
		Fields: []Field{
			{Key: "base", Value: base},
			{Key: "previous", Value: previous},
			{Key: "final", Value: final},
			{Key: "fast_forwarded", Value: strconv.FormatBool(fastForwarded)},
		},
	})
}

// LogMergeRejected records an integration failure.
func (logger *Logger) LogMergeRejected(issue, session, base, kind, detail string) error {
	return logger.Log(Entry{
		Issue:   issue,
		Session: session,
		Event:   EventMergeRejected,
		Fields: []Field{
			{Key: "base", Value: base},
			{Key: "kind", Value: kind},
			{Key: "detail", Value: detail},
		},
	})
}

// LogIssueStatus records an issue status transition.
func (logger *Logger) LogIssueStatus(issue, session, from, to string) error {
	if from == "" || to == "" {
		return fmt.Errorf("issue status change requires from and to states")
	}
	return logger.Log(Entry{
		Issue:   issue,
		Session: session,
		Event:   EventIssueStatus,
		Fields: []Field{
			{Key: "from", Value: from},
			{Key: "to", Value: to},
		},
	})
}

// LogIssueDependency records an added or removed dependency edge.
func (logger *Logger) LogIssueDependency(issue, session, action, dependency string) error {
	return logger.Log(Entry{
		Issue:   issue,
		Session: session,
		Event:   EventIssueDependency,
		Fields: []Field{
			{Key: "action", Value: action},
			{Key: "depends_on", Value: dependency},
		},
	})
}

// formatEntry renders an audit entry in logfmt-style order.
func (logger *Logger) formatEntry(entry Entry) (string, error) {
	if entry.Issue == "" {
		return "", errors.New("issue id is required")
	}
	if entry.Event == "" {
		return "", errors.New("event is required")
	}
	session := entry.Session
	if session == "" {
		session = noSession
	}

	ts := clock.OrSystem(logger.clock).Now().UTC().Format(time.RFC3339)
	fields := []string{
		formatField("ts", ts),
		formatField("issue", entry.Issue),
		formatField("session", session),
		formatField("event", entry.Event),
	}

	for _, field := range entry.Fields {
		if field.Value == "" {
			continue
		}
		if field.Key == "" {
			return "", errors.New("field key is required")
		}
		fields = append(fields, formatField(field.Key, field.Value))
	}
	return strings.Join(fields, " "), nil
}

// formatField encodes a logfmt key/value pair.
func formatField(key string, value string) string {
	encoded := sanitizeValue(value)
	if needsQuoting(encoded) {
		return fmt.Sprintf(`%s="%s"`, key, escapeLogfmt(encoded))
	}
	return fmt.Sprintf("%s=%s", key, encoded)
}

// sanitizeValue ensures values stay single-line.
func sanitizeValue(value string) string {
	value = strings.ReplaceAll(value, "\n", `\n`)
	return strings.ReplaceAll(value, "\r", `\r`)
}

// needsQuoting reports whether the value needs logfmt quoting.
func needsQuoting(value string) bool {
	if value == "" {
		return true
	}
	for _, r := range value {
		if r == ' ' || r == '\t' || r == '\n' || r == '=' || r == '"' {
			return true
		}
	}
	return false
}

// escapeLogfmt escapes characters that must be quoted in logfmt values.
func escapeLogfmt(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return strings.ReplaceAll(value, `"`, `\"`)
}

// appendLine writes the log entry to the audit log file.
func (logger *Logger) appendLine(line string) error {
	if logger.path == "" {
		return errors.New("audit log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(logger.path), auditLogDirMode); err != nil {
		return fmt.Errorf("create audit log directory %s: %w", filepath.Dir(logger.path), err)
	}
	file, err := os.OpenFile(logger.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, auditLogFileMode)
	if err != nil {
		return fmt.Errorf("open audit log %s: %w", logger.path, err)
	}
	if _, err := file.WriteString(line + "\n"); err != nil {
		_ = file.Close()
		return fmt.Errorf("write audit log %s: %w", logger.path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close audit log %s: %w", logger.path, err)
	}
	return nil
}

// warnf writes a warning message to the configured warnings writer.
func (logger *Logger) warnf(format string, args ...any) {
	if logger == nil || logger.warnings == nil {
		return
	}
	_, _ = fmt.Fprintf(logger.warnings, format+"\n", args...)
}

// fileExists reports whether the file exists at the path.
func fileExists(path string) (bool, error) {
	if path == "" {
		return false, errors.New("path is required")
	}
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
