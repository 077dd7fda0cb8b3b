// Command worksync coordinates agent sessions that share one repository:
// dependency-aware issue selection, per-issue locks, guarded worktree cleanup,
// and fast-forward integration.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cmtonkinson/worksync/internal/buildinfo"
	"github.com/cmtonkinson/worksync/internal/config"
	"github.com/cmtonkinson/worksync/internal/coord"
	"github.com/cmtonkinson/worksync/internal/repo"
	"github.com/cmtonkinson/worksync/internal/result"
	"github.com/cmtonkinson/worksync/internal/telemetry"
)

const sessionEnv = "WORKSYNC_SESSION"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{out: stdout, errOut: stderr}
	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	a.close()
	if err != nil {
		a.fail(err)
		return result.ExitCode(err)
	}
	return result.ExitOK
}

// app holds global flags and the lazily built coordinator.
type app struct {
	out    io.Writer
	errOut io.Writer

	jsonOutput bool
	verbose    bool
	session    string
	baseBranch string
	remote     string
	push       bool
	stale      time.Duration

	root  *cobra.Command
	coord *coord.Coordinator
	tel   *telemetry.Provider
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "worksync",
		Short: "Coordinate concurrent agent sessions in one git repository",
		Long: `worksync lets independent agent sessions share a repository safely.

Issues live under _worksync/issues/<version>/<name>/. A session asks for the
next executable issue, claims it (taking a lock and a dedicated worktree),
keeps the lock alive with heartbeats, and integrates its branch into the base
branch by fast-forward only.

Every command accepts --json and then prints a single envelope:
  {"ok": bool, "kind": "...", "message": "...", "data": {...}}

Exit codes: 0 ok, 1 failure, 2 usage, 3 locked or blocked (retry later).`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return result.Usage(fmt.Errorf("unknown command %q for %q", args[0], cmd.CommandPath()))
			}
			return cmd.Help()
		},
	}
	a.root = root

	flags := root.PersistentFlags()
	flags.BoolVar(&a.jsonOutput, "json", false, "Print a JSON result envelope")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose output")
	flags.StringVar(&a.session, "session", "", "Session id (defaults to $"+sessionEnv+")")
	flags.StringVar(&a.baseBranch, "base-branch", "", "Override base_branch")
	flags.StringVar(&a.remote, "remote", "", "Override remote")
	flags.BoolVar(&a.push, "push", false, "Override push")
	flags.DurationVar(&a.stale, "stale-threshold", 0, "Override locks.stale_threshold")

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return result.Usage(err)
	})

	root.AddCommand(
		newInitCommand(a),
		newIssueCommand(a),
		newGraphCommand(a),
		newWatchCommand(a),
		newNextCommand(a),
		newClaimCommand(a),
		newReleaseCommand(a),
		newHeartbeatCommand(a),
		newCheckCommand(a),
		newLockCommand(a),
		newIntegrateCommand(a),
		newCleanupCommand(a),
		newGuardCommand(a),
		newSessionCommand(a),
		newVersionCommand(a),
	)
	return root
}

// usageArgs marks positional-argument failures as usage errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return result.Usage(check(cmd, args))
	}
}

func usageError(message string) error {
	return result.Usage(errors.New(message))
}

// mainCheckout finds the repository root that owns the coordination state.
func (a *app) mainCheckout(ctx context.Context) (string, error) {
	root, err := repo.MainCheckoutFromCWD(ctx)
	if err != nil {
		if errors.Is(err, repo.ErrRepoNotFound) {
			return "", result.Usage(err)
		}
		return "", err
	}
	return root, nil
}

// overrides collects the config keys set on the command line.
func (a *app) overrides() map[string]any {
	out := map[string]any{}
	flags := a.root.PersistentFlags()
	if flags.Changed("base-branch") {
		out["base_branch"] = a.baseBranch
	}
	if flags.Changed("remote") {
		out["remote"] = a.remote
	}
	if flags.Changed("push") {
		out["push"] = a.push
	}
	if flags.Changed("stale-threshold") {
		out["locks.stale_threshold"] = a.stale
	}
	return out
}

func (a *app) sessionID() string {
	if s := strings.TrimSpace(a.session); s != "" {
		return s
	}
	return strings.TrimSpace(os.Getenv(sessionEnv))
}

// coordinator builds the coordinator for the current repository once.
func (a *app) coordinator(ctx context.Context) (*coord.Coordinator, error) {
	if a.coord != nil {
		return a.coord, nil
	}
	root, err := a.mainCheckout(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(root, a.overrides(), a.warn)
	if err != nil {
		return nil, err
	}
	tel, err := telemetry.New(ctx, telemetry.Options{
		Enabled:     cfg.Telemetry.Enabled,
		Stdout:      cfg.Telemetry.Stdout,
		Writer:      a.errOut,
		ServiceName: "worksync",
		Version:     buildinfo.Version,
	})
	if err != nil {
		return nil, err
	}
	a.tel = tel

	c, err := coord.New(coord.Options{
		Root:      root,
		Session:   a.sessionID(),
		Config:    cfg,
		Warnings:  a.errOut,
		Telemetry: tel,
		OnMergeRetry: func(attempt int, err error) {
			a.debugf("merge retry %d: %v", attempt, err)
		},
	})
	if err != nil {
		return nil, err
	}
	a.coord = c
	return c, nil
}

// close flushes telemetry.
func (a *app) close() {
	if a.tel == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tel.Shutdown(ctx); err != nil {
		a.warn(fmt.Sprintf("telemetry shutdown: %v", err))
	}
}
