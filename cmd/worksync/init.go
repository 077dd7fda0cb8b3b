package main

import (
	"github.com/spf13/cobra"

	"github.com/cmtonkinson/worksync/internal/config"
)

func newInitCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the _worksync layout in the current repository",
		Long: `Create _worksync/issues/, _worksync/config.yaml with defaults, and the
_worksync/_local-state/ directories for locks and worktrees. Local state is
ignored by git. Existing files are left alone.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := a.mainCheckout(cmd.Context())
			if err != nil {
				return err
			}
			opts := config.InitOptions{Verbose: a.verbose && !a.jsonOutput, Writer: a.out}
			if err := config.InitLayout(root, opts); err != nil {
				return err
			}
			return a.emit("init ok", map[string]string{"root": root}, nil)
		},
	}
}
