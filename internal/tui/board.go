// Package tui provides the interactive issue board behind `worksync watch`.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cmtonkinson/worksync/internal/coord"
	"github.com/cmtonkinson/worksync/internal/dag"
	"github.com/cmtonkinson/worksync/internal/format"
	"github.com/cmtonkinson/worksync/internal/watch"
)

// tickInterval refreshes lock ages between filesystem events.
const tickInterval = 5 * time.Second

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			MarginLeft(1)

	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginLeft(1).
			MarginTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			MarginLeft(1)

	countsStyle = lipgloss.NewStyle().
			Bold(true).
			MarginLeft(1).
			MarginBottom(1)
)

// Loader reads a fresh board.
type Loader func(context.Context) (coord.Board, error)

// Model is the board TUI state.
type Model struct {
	table      table.Model
	load       Loader
	lastUpdate time.Time
	summary    dag.Summary
	err        error
	quitting   bool
}

type tickMsg time.Time

// RefreshMsg asks the model to reload the board.
type RefreshMsg struct{}

type boardMsg struct {
	board coord.Board
}

type errMsg struct{ err error }

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// New creates a board model that reads through load.
func New(load Loader) Model {
	columns := []table.Column{
		{Title: "ID", Width: 24},
		{Title: "Status", Width: 12},
		{Title: "Holder", Width: 24},
		{Title: "Age", Width: 10},
		{Title: "Stale In", Width: 10},
		{Title: "Depends On", Width: 24},
		{Title: "Title", Width: 40},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(20),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true).
		Foreground(lipgloss.Color("12"))
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return Model{table: t, load: load}
}

// Init loads the first board and starts the age ticker.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.refresh())
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.refresh()
		}

	case tea.WindowSizeMsg:
		m.table.SetHeight(max(msg.Height-10, 3))
		return m, nil

	case tickMsg:
		return m, tea.Batch(tickCmd(), m.refresh())

	case RefreshMsg:
		return m, m.refresh()

	case boardMsg:
		m.lastUpdate = msg.board.TakenAt
		m.err = nil
		m.summary = dag.GetSummary(msg.board.Issues, msg.board.Held())
		m.table.SetRows(rowsFor(m.summary, msg.board))
		return m, nil

	case errMsg:
		m.err = msg.err
		return m, nil
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func rowsFor(summary dag.Summary, board coord.Board) []table.Row {
	rows := make([]table.Row, len(summary.Rows))
	for i, row := range summary.Rows {
		holder, age, remaining := "-", "-", "-"
		if st, ok := board.LockFor(row.ID); ok {
			holder = format.Holder(st.Session, st.Hostname, st.PID)
			age = format.DurationShort(st.Age)
			remaining = format.Remaining(st.Age, board.Threshold)
		}
		rows[i] = table.Row{row.ID, row.Status, holder, age, remaining, row.DependsOn, row.Title}
	}
	return rows
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	title := titleStyle.Render("worksync")
	timestamp := timestampStyle.Render(fmt.Sprintf("Last update: %s", m.lastUpdate.Format("15:04:05")))
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, title, strings.Repeat(" ", 5), timestamp))
	b.WriteString("\n\n")

	counts := fmt.Sprintf(
		"Issues: open=%d in-progress=%d blocked=%d closed=%d",
		m.summary.Open, m.summary.InProgress, m.summary.Blocked, m.summary.Closed,
	)
	b.WriteString(countsStyle.Render(counts))
	b.WriteString("\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓: navigate • r: refresh • q/esc: quit"))

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}

	return b.String()
}

func (m Model) refresh() tea.Cmd {
	load := m.load
	return func() tea.Msg {
		board, err := load(context.Background())
		if err != nil {
			return errMsg{err: err}
		}
		return boardMsg{board: board}
	}
}

// Run starts the board and reloads it whenever anything under roots changes.
func Run(ctx context.Context, load Loader, roots []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(New(load), tea.WithAltScreen(), tea.WithContext(ctx))

	w, err := watch.New(roots, watch.Options{})
	if err != nil {
		return err
	}
	defer w.Close()
	go func() {
		_ = w.Run(ctx, func() { p.Send(RefreshMsg{}) })
	}()

	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
