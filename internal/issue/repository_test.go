package issue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmtonkinson/worksync/internal/clock"
	"github.com/cmtonkinson/worksync/internal/graph"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestRepo(t *testing.T, opts Options) *Repository {
	t.Helper()
	if opts.Clock == nil {
		opts.Clock = clock.NewManual(testNow)
	}
	repo, err := NewRepository(t.TempDir(), opts)
	require.NoError(t, err)
	return repo
}

func writeIssue(t *testing.T, root, id, doc string) {
	t.Helper()
	version, name, err := ParseID(id)
	require.NoError(t, err)
	dir := filepath.Join(root, version, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DocumentFileName), []byte(doc), 0o644))
}

func TestCreateAndScan(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, Options{})

	schema, err := repo.Create(ctx, CreateInput{Version: "0.1", Title: "Schema Migration"})
	require.NoError(t, err)
	assert.Equal(t, "0.1-schema-migration", schema.ID)
	assert.Equal(t, StatusOpen, schema.Status)
	assert.Equal(t, testNow, schema.CreatedAt)

	api, err := repo.Create(ctx, CreateInput{Version: "0.1", Title: "API", DependsOn: []string{schema.ID}})
	require.NoError(t, err)

	issues, err := repo.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, api.ID, issues[0].ID)
	assert.Equal(t, []string{schema.ID}, issues[0].DependsOn)
	assert.Equal(t, []string{api.ID}, issues[1].Blocks)
	assert.True(t, issues[1].HasPlan)
	assert.NoError(t, SanityCheck(issues, nil))
}

func TestCreateRejectsDuplicatesAndMissingDeps(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, Options{})

	_, err := repo.Create(ctx, CreateInput{Version: "0.1", Title: "Thing"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, CreateInput{Version: "0.1", Title: "thing"})
	assert.ErrorIs(t, err, ErrExists)

	_, err = repo.Create(ctx, CreateInput{Version: "0.1", Title: "Other", DependsOn: []string{"0.1-ghost"}})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.Create(ctx, CreateInput{Version: "1-0", Title: "Bad"})
	assert.Error(t, err)
}

func TestGetMissing(t *testing.T) {
	repo := newTestRepo(t, Options{})
	_, err := repo.Get(context.Background(), "0.1-nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScanRejectsLegacyStatus(t *testing.T) {
	repo := newTestRepo(t, Options{})
	writeIssue(t, repo.Root(), "0.1-old", "---\ntitle: Old\nstatus: done\n---\n")

	_, err := repo.Scan(context.Background())
	require.ErrorIs(t, err, ErrInvalidStatus)
	assert.Contains(t, err.Error(), `"closed"`)
}

func TestScanOverflow(t *testing.T) {
	repo := newTestRepo(t, Options{ScanLimit: 5})
	for i := 0; i < 6; i++ {
		writeIssue(t, repo.Root(), fmt.Sprintf("0.1-issue%d", i), "---\ntitle: x\nstatus: open\n---\n")
	}

	issues, err := repo.Scan(context.Background())
	assert.Nil(t, issues)
	require.ErrorIs(t, err, ErrScanOverflow)
	var overflow *ScanOverflowError
	require.True(t, errors.As(err, &overflow))
	assert.Equal(t, 5, overflow.Limit)
	assert.Greater(t, overflow.Seen, 5)
}

func TestCreateLeavesNoPartialDirectories(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, Options{})
	versionDir := filepath.Join(repo.Root(), "0.1")

	// An interrupted create leaves only a hidden staging directory behind.
	require.NoError(t, os.MkdirAll(filepath.Join(versionDir, ".login-123"), 0o755))

	created, err := repo.Create(ctx, CreateInput{Version: "0.1", Title: "Login"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(versionDir, "login"), created.Dir)
	assert.FileExists(t, filepath.Join(created.Dir, DocumentFileName))
	assert.FileExists(t, filepath.Join(created.Dir, PlanFileName))

	entries, err := os.ReadDir(versionDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{".login-123", "login"}, names)

	issues, err := repo.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, created.ID, issues[0].ID)
}

func TestScanNamesDirectoryMissingDocument(t *testing.T) {
	repo := newTestRepo(t, Options{})
	dir := filepath.Join(repo.Root(), "0.1", "orphan")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	_, err := repo.Scan(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "remove "+dir)
}

func TestScanEmptyRoot(t *testing.T) {
	repo, err := NewRepository(filepath.Join(t.TempDir(), "absent"), Options{})
	require.NoError(t, err)
	issues, err := repo.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()
	c := clock.NewManual(testNow)
	repo := newTestRepo(t, Options{Clock: c})
	iss, err := repo.Create(ctx, CreateInput{Version: "0.1", Title: "Work"})
	require.NoError(t, err)

	c.Advance(time.Hour)
	updated, from, err := repo.SetStatus(ctx, iss.ID, StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, from)
	assert.Equal(t, StatusInProgress, updated.Status)
	assert.Equal(t, testNow.Add(time.Hour), updated.UpdatedAt)

	_, _, err = repo.SetStatus(ctx, iss.ID, Status("done"))
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, _, err = repo.SetStatus(ctx, iss.ID, StatusBlocked)
	require.NoError(t, err)
	_, _, err = repo.SetStatus(ctx, iss.ID, StatusClosed)
	assert.Error(t, err)

	got, err := repo.Get(ctx, iss.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusBlocked, got.Status)
}

func TestAddDependencyRejectsCycleBeforeWrite(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, Options{})
	a, err := repo.Create(ctx, CreateInput{Version: "0.1", Name: "a", Title: "A"})
	require.NoError(t, err)
	b, err := repo.Create(ctx, CreateInput{Version: "0.1", Name: "b", Title: "B", DependsOn: []string{a.ID}})
	require.NoError(t, err)
	c, err := repo.Create(ctx, CreateInput{Version: "0.1", Name: "c", Title: "C", DependsOn: []string{b.ID}})
	require.NoError(t, err)

	before, err := os.ReadFile(filepath.Join(a.Dir, DocumentFileName))
	require.NoError(t, err)

	err = repo.AddDependency(ctx, a.ID, c.ID)
	require.ErrorIs(t, err, graph.ErrCycle)
	var cycle *graph.CycleError
	require.True(t, errors.As(err, &cycle))
	assert.Equal(t, []string{a.ID, c.ID, b.ID, a.ID}, cycle.Path)

	after, err := os.ReadFile(filepath.Join(a.Dir, DocumentFileName))
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))

	assert.ErrorIs(t, repo.AddDependency(ctx, a.ID, a.ID), graph.ErrCycle)
}

func TestAddAndRemoveDependency(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t, Options{})
	a, err := repo.Create(ctx, CreateInput{Version: "0.1", Name: "a", Title: "A"})
	require.NoError(t, err)
	b, err := repo.Create(ctx, CreateInput{Version: "0.1", Name: "b", Title: "B"})
	require.NoError(t, err)

	require.NoError(t, repo.AddDependency(ctx, b.ID, a.ID))
	require.NoError(t, repo.AddDependency(ctx, b.ID, a.ID))
	gotB, err := repo.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, gotB.DependsOn)
	gotA, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, gotA.Blocks)

	require.NoError(t, repo.RemoveDependency(ctx, b.ID, a.ID))
	gotB, err = repo.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, gotB.DependsOn)
	gotA, err = repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, gotA.Blocks)

	assert.ErrorIs(t, repo.AddDependency(ctx, b.ID, "0.1-ghost"), ErrNotFound)
}
