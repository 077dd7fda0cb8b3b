package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmtonkinson/worksync/internal/coord"
	"github.com/cmtonkinson/worksync/internal/issue"
	"github.com/cmtonkinson/worksync/internal/lock"
)

func sampleBoard() coord.Board {
	return coord.Board{
		Issues: []issue.Issue{
			{ID: "0.1-auth", Version: "0.1", Name: "auth", Title: "Auth", Status: issue.StatusInProgress},
			{ID: "0.1-login", Version: "0.1", Name: "login", Title: "Login", Status: issue.StatusOpen, DependsOn: []string{"0.1-auth"}},
		},
		Locks: []lock.Status{
			{Issue: "0.1-auth", Held: true, Session: "alice", Hostname: "box", PID: 12, Age: 90 * time.Minute},
		},
		Threshold: 4 * time.Hour,
		TakenAt:   time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

func loadFixed(board coord.Board, err error) Loader {
	return func(context.Context) (coord.Board, error) { return board, err }
}

func TestRefreshPopulatesRows(t *testing.T) {
	m := New(loadFixed(sampleBoard(), nil))
	msg := m.refresh()()
	updated, _ := m.Update(msg)
	model := updated.(Model)

	rows := model.table.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "0.1-auth", rows[0][0])
	assert.Equal(t, "alice@box:12", rows[0][2])
	assert.Equal(t, "1h30m0s", rows[0][3])
	assert.Equal(t, "2h30m0s", rows[0][4])
	assert.Equal(t, "-", rows[1][2])
	assert.Equal(t, "0.1-auth", rows[1][5])

	view := model.View()
	assert.Contains(t, view, "open=1 in-progress=1 blocked=0 closed=0")
	assert.Contains(t, view, "09:30:00")
}

func TestLoadErrorIsShown(t *testing.T) {
	m := New(loadFixed(coord.Board{}, errors.New("boom")))
	updated, _ := m.Update(m.refresh()())
	assert.Contains(t, updated.(Model).View(), "Error: boom")
}

func TestQuitKey(t *testing.T) {
	m := New(loadFixed(sampleBoard(), nil))
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.True(t, updated.(Model).quitting)
	assert.Equal(t, "", updated.(Model).View())
}

func TestRefreshMsgReloads(t *testing.T) {
	m := New(loadFixed(sampleBoard(), nil))
	_, cmd := m.Update(RefreshMsg{})
	require.NotNil(t, cmd)
	_, ok := cmd().(boardMsg)
	assert.True(t, ok)
}
