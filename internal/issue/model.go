// Package issue defines the on-disk issue model and the repository index over it.
package issue

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Status labels the lifecycle state of an issue.
type Status string

const (
	// StatusOpen indicates the issue has not been started.
	StatusOpen Status = "open"
	// StatusInProgress indicates a session has claimed and is working the issue.
	StatusInProgress Status = "in-progress"
	// StatusClosed indicates the issue is complete and merged.
	StatusClosed Status = "closed"
	// StatusBlocked indicates the issue needs outside intervention.
	StatusBlocked Status = "blocked"
)

var (
	// ErrNotFound is returned when an issue id has no directory.
	ErrNotFound = errors.New("issue not found")
	// ErrInvalidID is returned for malformed qualified ids.
	ErrInvalidID = errors.New("invalid issue id")
	// ErrExists is returned when creating an issue that already exists.
	ErrExists = errors.New("issue already exists")
)

// Issue is one unit of work read from the issue repository.
type Issue struct {
	ID        string
	Version   string
	Name      string
	Title     string
	Status    Status
	DependsOn []string
	Blocks    []string
	CreatedAt time.Time
	UpdatedAt time.Time
	Body      string
	Dir       string
	HasPlan   bool
}

// QualifiedID joins a version and bare name into "{version}-{name}".
func QualifiedID(version, name string) string {
	return version + "-" + name
}

// ParseID splits a qualified id at the first hyphen.
func ParseID(id string) (version string, name string, err error) {
	version, name, ok := strings.Cut(strings.TrimSpace(id), "-")
	if !ok || version == "" || name == "" {
		return "", "", fmt.Errorf("%w %q: expected {version}-{name}", ErrInvalidID, id)
	}
	if err := validateSegment(version); err != nil {
		return "", "", fmt.Errorf("%w %q: %v", ErrInvalidID, id, err)
	}
	if err := validateSegment(name); err != nil {
		return "", "", fmt.Errorf("%w %q: %v", ErrInvalidID, id, err)
	}
	return version, name, nil
}

// ValidateVersion rejects versions that would make qualified ids ambiguous.
func ValidateVersion(version string) error {
	if strings.TrimSpace(version) == "" {
		return errors.New("version is required")
	}
	if strings.Contains(version, "-") {
		return fmt.Errorf("version %q must not contain '-'", version)
	}
	return validateSegment(version)
}

func validateSegment(segment string) error {
	if strings.ContainsAny(segment, `/\`) {
		return fmt.Errorf("segment %q must not contain path separators", segment)
	}
	if strings.Contains(segment, "..") || strings.HasPrefix(segment, ".") {
		return fmt.Errorf("segment %q must not start with '.' or contain '..'", segment)
	}
	return nil
}

// Less orders issues by version then bare name.
func Less(a, b Issue) bool {
	if c := CompareVersions(a.Version, b.Version); c != 0 {
		return c < 0
	}
	return a.Name < b.Name
}

// Sort orders issues in place by version then bare name.
func Sort(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		return Less(issues[i], issues[j])
	})
}

// DependencyMap returns the id -> depends_on map for graph construction.
func DependencyMap(issues []Issue) map[string][]string {
	deps := make(map[string][]string, len(issues))
	for _, iss := range issues {
		deps[iss.ID] = append([]string(nil), iss.DependsOn...)
	}
	return deps
}

// ByID indexes issues by qualified id.
func ByID(issues []Issue) map[string]Issue {
	out := make(map[string]Issue, len(issues))
	for _, iss := range issues {
		out[iss.ID] = iss
	}
	return out
}
