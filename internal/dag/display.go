// Package dag renders the issue dependency graph as a table.
package dag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/cmtonkinson/worksync/internal/graph"
	"github.com/cmtonkinson/worksync/internal/issue"
)

const (
	idColumnWidth     = 24
	statusColumnWidth = 12
	holderColumnWidth = 14
	depsColumnWidth   = 28
	blocksColumnWidth = 28
	titleColumnWidth  = 40
	columnGap         = "  "
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	cellStyle = lipgloss.NewStyle()

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	summaryStyle = lipgloss.NewStyle().
			Bold(true)

	cycleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("9"))
)

// Summary is the rendered view of the issue graph.
type Summary struct {
	Rows       []Row `json:"issues"`
	Total      int   `json:"total"`
	Open       int   `json:"open"`
	InProgress int   `json:"in_progress"`
	Blocked    int   `json:"blocked"`
	Closed     int   `json:"closed"`
	// Cycle is set when the graph is not acyclic.
	Cycle []string `json:"cycle,omitempty"`
}

// Row is one issue in the table.
type Row struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Holder    string `json:"holder"`
	DependsOn string `json:"depends_on"`
	Blocks    string `json:"blocks"`
	Title     string `json:"title"`
}

// GetSummary builds the table from issues and the live lock holders.
func GetSummary(issues []issue.Issue, held map[string]string) Summary {
	ordered := append([]issue.Issue(nil), issues...)
	issue.Sort(ordered)

	g := graph.New(issue.DependencyMap(ordered))
	dependents := g.Dependents()
	summary := Summary{Total: len(ordered), Cycle: g.FindCycle()}

	for _, iss := range ordered {
		switch iss.Status {
		case issue.StatusOpen:
			summary.Open++
		case issue.StatusInProgress:
			summary.InProgress++
		case issue.StatusBlocked:
			summary.Blocked++
		case issue.StatusClosed:
			summary.Closed++
		}
		blocks := append([]string(nil), dependents[iss.ID]...)
		sort.Strings(blocks)
		summary.Rows = append(summary.Rows, Row{
			ID:        iss.ID,
			Status:    string(iss.Status),
			Holder:    orDash(held[iss.ID]),
			DependsOn: joinOrDash(iss.DependsOn),
			Blocks:    joinOrDash(blocks),
			Title:     iss.Title,
		})
	}
	return summary
}

// String returns the formatted table.
func (s Summary) String() string {
	var b strings.Builder

	b.WriteString(summaryStyle.Render(fmt.Sprintf(
		"Issues (%d total, %d open, %d in-progress, %d blocked, %d closed)",
		s.Total, s.Open, s.InProgress, s.Blocked, s.Closed,
	)))
	b.WriteString("\n")
	if len(s.Cycle) > 0 {
		b.WriteString(cycleStyle.Render("Dependency cycle: " + graph.FormatPath(s.Cycle)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(s.Rows) == 0 {
		b.WriteString("No issues found.\n")
		return b.String()
	}

	headers := []string{
		padRight("ID", idColumnWidth),
		padRight("Status", statusColumnWidth),
		padRight("Holder", holderColumnWidth),
		padRight("Depends On", depsColumnWidth),
		padRight("Blocks", blocksColumnWidth),
		"Title",
	}
	b.WriteString(headerStyle.Render(strings.Join(headers, columnGap)))
	b.WriteString("\n")

	totalWidth := idColumnWidth + statusColumnWidth + holderColumnWidth + depsColumnWidth + blocksColumnWidth + titleColumnWidth + 5*len(columnGap)
	b.WriteString(separatorStyle.Render(strings.Repeat("─", totalWidth)))
	b.WriteString("\n")

	for _, row := range s.Rows {
		line := strings.Join([]string{
			padRight(row.ID, idColumnWidth),
			padRight(row.Status, statusColumnWidth),
			padRight(row.Holder, holderColumnWidth),
			padRight(row.DependsOn, depsColumnWidth),
			padRight(row.Blocks, blocksColumnWidth),
			truncate(row.Title, titleColumnWidth),
		}, columnGap)
		b.WriteString(cellStyle.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func joinOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ",")
}

// padRight pads or cuts s to exactly width display cells.
func padRight(s string, width int) string {
	w := lipgloss.Width(s)
	if w > width {
		return truncate(s, width)
	}
	return s + strings.Repeat(" ", width-w)
}

// truncate shortens s to width runes with an ellipsis.
func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}
