package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cmtonkinson/worksync/internal/issue"
	"github.com/cmtonkinson/worksync/internal/result"
)

func newIssueCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Create and edit issues",
	}
	cmd.AddCommand(
		newIssueNewCommand(a),
		newIssueListCommand(a),
		newIssueShowCommand(a),
		newIssueStatusCommand(a),
		newIssueDependCommand(a),
	)
	return cmd
}

func newIssueNewCommand(a *app) *cobra.Command {
	var (
		version   string
		name      string
		dependsOn []string
		body      string
		bodyFile  string
	)
	cmd := &cobra.Command{
		Use:   "new <title>",
		Short: "Create an open issue",
		Long: `Create _worksync/issues/<version>/<name>/ with issue.md and plan.md.
The name defaults to a slug of the title. Dependencies must already exist.

Examples:
  worksync issue new --version 0.1 "Add login form"
  worksync issue new --version 0.1 --depends-on 0.1-auth "Wire session cookie"`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if version == "" {
				return result.Usage(fmt.Errorf("--version is required"))
			}
			if body != "" && bodyFile != "" {
				return result.Usage(fmt.Errorf("--body and --body-file are mutually exclusive"))
			}
			if bodyFile != "" {
				data, err := os.ReadFile(bodyFile)
				if err != nil {
					return fmt.Errorf("read body file %s: %w", bodyFile, err)
				}
				body = string(data)
			}
			c, err := a.coordinator(cmd.Context())
			if err != nil {
				return err
			}
			created, err := c.CreateIssue(cmd.Context(), issue.CreateInput{
				Version:   version,
				Title:     strings.Join(args, " "),
				Name:      name,
				DependsOn: dependsOn,
				Body:      body,
			})
			if err != nil {
				return err
			}
			return a.emit("created "+created.ID, viewIssue(created, false), func(w io.Writer) {
				fmt.Fprintln(w, dimText(created.Dir))
			})
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "Issue version (required)")
	cmd.Flags().StringVar(&name, "name", "", "Bare issue name (default: slug of title)")
	cmd.Flags().StringSliceVar(&dependsOn, "depends-on", nil, "Qualified ids this issue depends on")
	cmd.Flags().StringVar(&body, "body", "", "Issue body")
	cmd.Flags().StringVar(&bodyFile, "body-file", "", "Read the issue body from a file")
	return cmd
}

func newIssueListCommand(a *app) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List issues in version then name order",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			var filter issue.Status
			if status != "" {
				parsed, err := issue.ParseStatus(status)
				if err != nil {
					return result.Usage(err)
				}
				filter = parsed
			}
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
			held := board.Held()
			issue.Sort(board.Issues)
			views := []issueView{}
			var lines []string
			for _, iss := range board.Issues {
				if filter != "" && iss.Status != filter {
					continue
				}
				views = append(views, viewIssue(iss, false))
				line := fmt.Sprintf("%-28s %-12s %s", iss.ID, iss.Status, iss.Title)
				if holder, ok := held[iss.ID]; ok {
					line += dimText(" [" + holder + "]")
				}
				lines = append(lines, line)
			}
			return a.emit("", views, func(w io.Writer) {
				if len(lines) == 0 {
					fmt.Fprintln(w, "No issues found.")
					return
				}
				for _, line := range lines {
					fmt.Fprintln(w, line)
				}
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only list issues with this status")
	return cmd
}

func newIssueShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one issue",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.coordinator(cmd.Context())
			if err != nil {
				return err
			}
			iss, err := c.Issues().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.emit("", viewIssue(iss, true), func(w io.Writer) {
				fmt.Fprintf(w, "%s  %s\n", iss.ID, iss.Title)
				fmt.Fprintf(w, "status:     %s\n", iss.Status)
				fmt.Fprintf(w, "depends on: %s\n", joinOrNone(iss.DependsOn))
				fmt.Fprintf(w, "blocks:     %s\n", joinOrNone(iss.Blocks))
				fmt.Fprintf(w, "dir:        %s\n", iss.Dir)
				if strings.TrimSpace(iss.Body) != "" {
					fmt.Fprintf(w, "\n%s\n", strings.TrimRight(iss.Body, "\n"))
				}
			})
		},
	}
}

func newIssueStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <open|in-progress|blocked|closed>",
		Short: "Change an issue's status",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := issue.ParseStatus(args[1])
			if err != nil {
				return err
			}
			c, err := a.coordinator(cmd.Context())
			if err != nil {
				return err
			}
			updated, err := c.SetStatus(cmd.Context(), args[0], to)
			if err != nil {
				return err
			}
			return a.emit(fmt.Sprintf("%s is %s", updated.ID, updated.Status), viewIssue(updated, false), nil)
		},
	}
}

func newIssueDependCommand(a *app) *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "depend <id> <dependency>",
		Short: "Add or remove a dependency edge",
		Long: `Record that <id> depends on <dependency>. Edges that would close a cycle
are rejected and the cycle is reported.`,
		Args: usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.coordinator(cmd.Context())
			if err != nil {
				return err
			}
			id, dep := args[0], args[1]
			data := map[string]string{"issue": id, "dependency": dep}
			if remove {
				if err := c.RemoveDependency(cmd.Context(), id, dep); err != nil {
					return err
				}
				return a.emit(fmt.Sprintf("%s no longer depends on %s", id, dep), data, nil)
			}
			if err := c.AddDependency(cmd.Context(), id, dep); err != nil {
				return err
			}
			return a.emit(fmt.Sprintf("%s depends on %s", id, dep), data, nil)
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "Remove the edge instead of adding it")
	return cmd
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "(none)"
	}
	return strings.Join(values, ", ")
}
