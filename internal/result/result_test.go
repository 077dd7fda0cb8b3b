package result

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmtonkinson/worksync/internal/graph"
	"github.com/cmtonkinson/worksync/internal/issue"
	"github.com/cmtonkinson/worksync/internal/lock"
	"github.com/cmtonkinson/worksync/internal/merge"
	"github.com/cmtonkinson/worksync/internal/protect"
	"github.com/cmtonkinson/worksync/internal/resolver"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
		exit int
	}{
		{"nil", nil, "", ExitOK},
		{"locked", &lock.LockedError{Issue: "v1-a", Holder: "s1"}, KindLocked, ExitRetry},
		{"wrapped locked", fmt.Errorf("claim v1-a: %w", lock.ErrLocked), KindLocked, ExitRetry},
		{"not owner", &lock.OwnerError{Issue: "v1-a"}, KindNotOwner, ExitError},
		{"lock not found", lock.ErrNotFound, KindNotFound, ExitError},
		{"issue not found", fmt.Errorf("get: %w", issue.ErrNotFound), KindNotFound, ExitError},
		{"cycle", &graph.CycleError{Path: []string{"a", "b", "a"}}, KindCycleDetected, ExitError},
		{"diverged", &merge.DivergedError{Branch: "main"}, KindDiverged, ExitError},
		{"conflict", &merge.ConflictError{}, KindConflict, ExitError},
		{"network", &merge.NetworkError{Err: errors.New("dns")}, KindNetworkError, ExitError},
		{"overflow", &issue.ScanOverflowError{Limit: 5}, KindScanOverflow, ExitError},
		{"dirty", &merge.DirtyError{}, KindDirtyWorktree, ExitError},
		{"protected", &protect.ProtectedError{Target: "/x"}, KindProtected, ExitError},
		{"invalid status", issue.ValidateTransition(issue.StatusBlocked, issue.StatusClosed), KindInvalidStatus, ExitError},
		{"blocked", &resolver.BlockedError{}, KindBlocked, ExitRetry},
		{"canceled", context.Canceled, KindCanceled, ExitError},
		{"usage", Usage(errors.New("missing issue id")), KindUsage, ExitUsage},
		{"other", errors.New("boom"), KindError, ExitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, Classify(tt.err))
			assert.Equal(t, tt.exit, ExitCode(tt.err))
		})
	}
}

func TestUsageNil(t *testing.T) {
	assert.NoError(t, Usage(nil))
}

func TestFailureEnvelopeJSON(t *testing.T) {
	err := fmt.Errorf("claim: %w", &lock.LockedError{
		Issue:    "v1-a",
		Holder:   "s1",
		Age:      90 * time.Second,
		Worktree: "/repo/_worksync/_local-state/worktrees/issue-v1-a",
	})
	data, marshalErr := json.Marshal(Failure(err))
	require.NoError(t, marshalErr)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, false, decoded["ok"])
	assert.Equal(t, "Locked", decoded["kind"])
	assert.Equal(t, err.Error(), decoded["message"])
	details := decoded["data"].(map[string]any)
	assert.Equal(t, "s1", details["holder"])
	assert.Equal(t, float64(90), details["age_seconds"])
}

func TestFailureCarriesCyclePath(t *testing.T) {
	env := Failure(&graph.CycleError{Path: []string{"a", "b", "a"}})
	assert.Equal(t, KindCycleDetected, env.Kind)
	assert.Equal(t, map[string]any{"cycle": []string{"a", "b", "a"}}, env.Data)
}

func TestSuccessEnvelopeOmitsKind(t *testing.T) {
	data, err := json.Marshal(Success("released", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true,"message":"released"}`, string(data))
}
