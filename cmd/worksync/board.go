package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cmtonkinson/worksync/internal/dag"
	"github.com/cmtonkinson/worksync/internal/tui"
)

func newGraphCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the dependency table with lock holders",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.coordinator(cmd.Context())
			if err != nil {
				return err
			}
			board, err := c.Board(cmd.Context())
			if err != nil {
				return err
			}
			for _, msg := range board.Warnings {
				a.warn(msg)
			}
			summary := dag.GetSummary(board.Issues, board.Held())
			return a.emit("", summary, func(w io.Writer) {
				fmt.Fprint(w, summary.String())
			})
		},
	}
}

func newWatchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Open a live board of issues and locks",
		Long: `Open an interactive board that refreshes whenever the issue tree or the
lock directory changes, and every few seconds so lock ages stay current.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.jsonOutput {
				return usageError("watch is interactive and does not support --json")
			}
			c, err := a.coordinator(cmd.Context())
			if err != nil {
				return err
			}
			layout := c.Layout()
			return tui.Run(cmd.Context(), c.Board, []string{layout.IssuesDir, layout.LocksDir})
		},
	}
}
