package dag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmtonkinson/worksync/internal/issue"
)

func mk(id string, status issue.Status, deps ...string) issue.Issue {
	version, name, _ := issue.ParseID(id)
	return issue.Issue{ID: id, Version: version, Name: name, Title: "Title " + name, Status: status, DependsOn: deps}
}

func TestGetSummaryCountsAndEdges(t *testing.T) {
	issues := []issue.Issue{
		mk("0.2-login", issue.StatusOpen, "0.1-auth"),
		mk("0.1-auth", issue.StatusInProgress),
		mk("0.2-tests", issue.StatusClosed, "0.1-auth", "0.2-login"),
		mk("0.1-docs", issue.StatusBlocked),
	}
	summary := GetSummary(issues, map[string]string{"0.1-auth": "alice"})

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 1, summary.Open)
	assert.Equal(t, 1, summary.InProgress)
	assert.Equal(t, 1, summary.Blocked)
	assert.Equal(t, 1, summary.Closed)
	assert.Nil(t, summary.Cycle)

	require.Len(t, summary.Rows, 4)
	ids := make([]string, len(summary.Rows))
	for i, row := range summary.Rows {
		ids[i] = row.ID
	}
	assert.Equal(t, []string{"0.1-auth", "0.1-docs", "0.2-login", "0.2-tests"}, ids)

	auth := summary.Rows[0]
	assert.Equal(t, "alice", auth.Holder)
	assert.Equal(t, "-", auth.DependsOn)
	assert.Equal(t, "0.2-login,0.2-tests", auth.Blocks)

	tests := summary.Rows[3]
	assert.Equal(t, "-", tests.Holder)
	assert.Equal(t, "0.1-auth,0.2-login", tests.DependsOn)
	assert.Equal(t, "-", tests.Blocks)
}

func TestSummaryStringRendersRowsAndCycle(t *testing.T) {
	issues := []issue.Issue{
		mk("0.1-a", issue.StatusOpen, "0.1-b"),
		mk("0.1-b", issue.StatusOpen, "0.1-a"),
	}
	out := GetSummary(issues, nil).String()

	assert.Contains(t, out, "Issues (2 total, 2 open, 0 in-progress, 0 blocked, 0 closed)")
	assert.Contains(t, out, "Dependency cycle: 0.1-a -> 0.1-b -> 0.1-a")
	assert.Contains(t, out, "Depends On")
	assert.Equal(t, 1, strings.Count(out, "Title a"))
}

func TestSummaryStringEmpty(t *testing.T) {
	out := GetSummary(nil, nil).String()
	assert.Contains(t, out, "No issues found.")
}

func TestPadAndTruncate(t *testing.T) {
	assert.Equal(t, "ab  ", padRight("ab", 4))
	assert.Equal(t, "a...", padRight("abcdef", 4))
	assert.Equal(t, "abcdef", truncate("abcdef", 6))
	assert.Equal(t, "ab", truncate("abcdef", 2))
	assert.Equal(t, "héllo", truncate("héllo", 5))
}
