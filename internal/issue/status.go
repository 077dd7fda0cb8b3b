package issue

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidStatus marks status values that are not canonical.
var ErrInvalidStatus = errors.New("invalid issue status")

// StatusError describes a rejected status value and, for legacy aliases, the
// canonical spelling that replaces it.
type StatusError struct {
	Value     string
	Canonical Status
}

func (e *StatusError) Error() string {
	if e.Canonical != "" {
		return fmt.Sprintf("%v %q: legacy alias, use %q", ErrInvalidStatus, e.Value, e.Canonical)
	}
	return fmt.Sprintf("%v %q: expected one of open, in-progress, closed, blocked", ErrInvalidStatus, e.Value)
}

// Is matches ErrInvalidStatus.
func (e *StatusError) Is(target error) bool {
	return target == ErrInvalidStatus
}

// legacyAliases maps historical spellings to their canonical status. They are
// rejected at read time, never normalized.
var legacyAliases = map[string]Status{
	"todo":        StatusOpen,
	"pending":     StatusOpen,
	"new":         StatusOpen,
	"wip":         StatusInProgress,
	"in_progress": StatusInProgress,
	"inprogress":  StatusInProgress,
	"active":      StatusInProgress,
	"done":        StatusClosed,
	"complete":    StatusClosed,
	"completed":   StatusClosed,
	"resolved":    StatusClosed,
	"merged":      StatusClosed,
}

// ParseStatus accepts only the canonical status spellings.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusOpen, StatusInProgress, StatusClosed, StatusBlocked:
		return Status(raw), nil
	}
	lower := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := legacyAliases[lower]; ok {
		return "", &StatusError{Value: raw, Canonical: canonical}
	}
	switch Status(lower) {
	case StatusOpen, StatusInProgress, StatusClosed, StatusBlocked:
		return "", &StatusError{Value: raw, Canonical: Status(lower)}
	}
	return "", &StatusError{Value: raw}
}
