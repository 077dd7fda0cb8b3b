package testrepos

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// IssueFixture describes an issue document written straight to disk.
type IssueFixture struct {
	Version   string
	Name      string
	Title     string
	Status    string
	DependsOn []string
}

// WriteIssue writes an issue.md under root/_worksync/issues without going
// through the repository API, so tests can seed states the API would refuse.
func (r *TempRepo) WriteIssue(tb testing.TB, fixture IssueFixture) string {
	tb.Helper()
	dir := filepath.Join(r.Root, "_worksync", "issues", fixture.Version, fixture.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		tb.Fatalf("create issue dir %s: %v", dir, err)
	}
	title := fixture.Title
	if title == "" {
		title = fixture.Name
	}
	status := fixture.Status
	if status == "" {
		status = "open"
	}
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "title: %s\nstatus: %s\n", title, status)
	if len(fixture.DependsOn) > 0 {
		b.WriteString("depends_on:\n")
		for _, dep := range fixture.DependsOn {
			fmt.Fprintf(&b, "  - %s\n", dep)
		}
	}
	b.WriteString("---\n")
	path := filepath.Join(dir, "issue.md")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		tb.Fatalf("write issue %s: %v", path, err)
	}
	return fixture.Version + "-" + fixture.Name
}
