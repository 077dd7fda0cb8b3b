package main

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cmtonkinson/worksync/internal/buildinfo"
)

func newSessionCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage session ids",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "new",
		Short: "Print a fresh session id",
		Long: `Print a random session id. Export it so later commands act for the same
session:

  export WORKSYNC_SESSION=$(worksync session new)`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(_ *cobra.Command, _ []string) error {
			id := uuid.NewString()
			if a.jsonOutput {
				return a.emit("session created", map[string]string{"session": id}, nil)
			}
			fmt.Fprintln(a.out, id)
			return nil
		},
	})
	return cmd
}

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(_ *cobra.Command, _ []string) error {
			info := buildinfo.Get()
			if a.jsonOutput {
				return a.emit(info.String(), info, nil)
			}
			return a.emit("", info, func(w io.Writer) {
				fmt.Fprintln(w, info.String())
			})
		},
	}
}
