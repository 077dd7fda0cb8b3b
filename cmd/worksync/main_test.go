package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmtonkinson/worksync/internal/result"
	"github.com/cmtonkinson/worksync/internal/testrepos"
)

type envelope struct {
	OK      bool            `json:"ok"`
	Kind    string          `json:"kind"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// isolate points HOME and the session variable at test-owned values so the
// developer's own config never leaks in.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv(sessionEnv, "")
}

// chdir changes the working directory for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func runJSON(t *testing.T, args ...string) (int, envelope) {
	t.Helper()
	code, stdout, stderr := runCLI(t, append(args, "--json")...)
	var env envelope
	require.NoError(t, json.Unmarshal([]byte(stdout), &env), "stdout=%q stderr=%q", stdout, stderr)
	return code, env
}

func TestVersionJSON(t *testing.T) {
	isolate(t)
	code, env := runJSON(t, "version")
	require.Equal(t, result.ExitOK, code)
	assert.True(t, env.OK)
	var info map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "commit")
}

func TestSessionNewPrintsUUID(t *testing.T) {
	isolate(t)
	code, stdout, _ := runCLI(t, "session", "new")
	require.Equal(t, result.ExitOK, code)
	assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\n$`, stdout)
}

func TestUsageErrors(t *testing.T) {
	isolate(t)
	tests := []struct {
		name string
		args []string
	}{
		{"unknown command", []string{"frobnicate"}},
		{"unknown flag", []string{"next", "--nope"}},
		{"missing argument", []string{"release"}},
		{"too many arguments", []string{"claim", "a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			assert.Equal(t, result.ExitUsage, code)
			assert.Contains(t, stderr, string(result.KindUsage))
		})
	}
}

func TestOutsideRepositoryIsUsage(t *testing.T) {
	isolate(t)
	chdir(t, t.TempDir())
	code, env := runJSON(t, "next")
	assert.Equal(t, result.ExitUsage, code)
	assert.False(t, env.OK)
	assert.Equal(t, string(result.KindUsage), env.Kind)
}

func TestInitCreatesLayout(t *testing.T) {
	isolate(t)
	repo := testrepos.New(t)
	chdir(t, repo.Root)

	code, _, stderr := runCLI(t, "init")
	require.Equal(t, result.ExitOK, code, stderr)
	assert.FileExists(t, filepath.Join(repo.Root, "_worksync", "config.yaml"))
	assert.DirExists(t, filepath.Join(repo.Root, "_worksync", "_local-state", "locks"))

	code, _, _ = runCLI(t, "init")
	assert.Equal(t, result.ExitOK, code)
}

func TestSessionWorkflow(t *testing.T) {
	isolate(t)
	repo := testrepos.New(t)
	chdir(t, repo.Root)

	code, _, stderr := runCLI(t, "init")
	require.Equal(t, result.ExitOK, code, stderr)

	code, env := runJSON(t, "issue", "new", "--version", "0.1", "Auth backend")
	require.Equal(t, result.ExitOK, code, env.Message)
	var created issueView
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "0.1-auth-backend", created.ID)
	assert.Equal(t, "open", created.Status)

	code, env = runJSON(t, "issue", "new", "--version", "0.1", "--name", "login", "--depends-on", "0.1-auth-backend", "Login form")
	require.Equal(t, result.ExitOK, code, env.Message)

	code, env = runJSON(t, "issue", "depend", "0.1-auth-backend", "0.1-login")
	assert.Equal(t, result.ExitError, code)
	assert.Equal(t, string(result.KindCycleDetected), env.Kind)

	code, env = runJSON(t, "next")
	require.Equal(t, result.ExitOK, code, env.Message)
	var next outcomeView
	require.NoError(t, json.Unmarshal(env.Data, &next))
	assert.Equal(t, "found", next.Kind)
	require.NotNil(t, next.Issue)
	assert.Equal(t, "0.1-auth-backend", next.Issue.ID)

	code, env = runJSON(t, "claim", "--session", "alice")
	require.Equal(t, result.ExitOK, code, env.Message)
	var claimed claimView
	require.NoError(t, json.Unmarshal(env.Data, &claimed))
	assert.Equal(t, "created", claimed.Outcome)
	assert.Equal(t, "issue/0.1-auth-backend", claimed.Branch)
	require.DirExists(t, claimed.Worktree)

	code, env = runJSON(t, "claim", "0.1-auth-backend", "--session", "bob")
	assert.Equal(t, result.ExitRetry, code)
	assert.Equal(t, string(result.KindLocked), env.Kind)

	code, env = runJSON(t, "next", "--session", "bob")
	assert.Equal(t, result.ExitRetry, code)
	assert.Equal(t, string(result.KindBlocked), env.Kind)

	code, env = runJSON(t, "integrate", "0.1-auth-backend", "--local", "--session", "bob")
	assert.Equal(t, result.ExitError, code)
	assert.Equal(t, string(result.KindNotOwner), env.Kind)

	code, env = runJSON(t, "check", "0.1-auth-backend")
	require.Equal(t, result.ExitOK, code)
	var st lockView
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.True(t, st.Held)
	assert.Equal(t, "alice", st.Session)

	tip := repo.CommitFile(t, claimed.Worktree, "auth.go", "package auth\n", "Add auth")

	t.Setenv(sessionEnv, "alice")
	code, env = runJSON(t, "heartbeat", "0.1-auth-backend")
	require.Equal(t, result.ExitOK, code, env.Message)

	code, env = runJSON(t, "integrate", "0.1-auth-backend", "--local", "--finish")
	require.Equal(t, result.ExitOK, code, env.Message)
	var integrated integrateView
	require.NoError(t, json.Unmarshal(env.Data, &integrated))
	assert.Equal(t, tip, integrated.FinalCommit)
	assert.True(t, integrated.FastForwarded)
	assert.True(t, integrated.Closed)
	assert.True(t, integrated.BranchDeleted)
	assert.Equal(t, tip, repo.Head(t, "main"))
	assert.NoDirExists(t, claimed.Worktree)

	code, env = runJSON(t, "next", "--session", "bob")
	require.Equal(t, result.ExitOK, code, env.Message)
	require.NoError(t, json.Unmarshal(env.Data, &next))
	assert.Equal(t, "0.1-login", next.Issue.ID)

	code, stdout, _ := runCLI(t, "graph")
	require.Equal(t, result.ExitOK, code)
	assert.Contains(t, stdout, "0.1-login")
	assert.Contains(t, stdout, "1 closed")

	audit, err := os.ReadFile(filepath.Join(repo.Root, "_worksync", "_local-state", "audit.log"))
	require.NoError(t, err)
	assert.Contains(t, string(audit), "event=merge.integrate")
}

func TestGuardCheckRefusesCwd(t *testing.T) {
	isolate(t)
	repo := testrepos.New(t)
	chdir(t, repo.Root)
	code, _, _ := runCLI(t, "init")
	require.Equal(t, result.ExitOK, code)

	code, env := runJSON(t, "guard", "check", repo.Root)
	assert.Equal(t, result.ExitError, code)
	assert.Equal(t, string(result.KindProtected), env.Kind)

	scratch := filepath.Join(repo.Root, "_worksync", "_local-state", "worktrees", "scratch")
	require.NoError(t, os.MkdirAll(scratch, 0o755))
	code, env = runJSON(t, "guard", "rm", scratch)
	require.Equal(t, result.ExitOK, code, env.Message)
	assert.NoDirExists(t, scratch)
}
