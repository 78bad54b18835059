package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"morgonpodd/internal/api"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the run ledger",
	}
	runsCmd.AddCommand(newRunsListCommand(ctx))
	runsCmd.AddCommand(newRunsShowCommand(ctx))
	runsCmd.AddCommand(newRunsPruneCommand(ctx))
	return runsCmd
}

func newRunsListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := ctx.openLedger()
			if err != nil {
				return err
			}
			runs, err := ledger.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			dtos := api.FromRuns(runs)
			if jsonOutput {
				return writeJSON(cmd, api.RunListResponse{Runs: dtos})
			}
			out := cmd.OutOrStdout()
			if len(dtos) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(dtos))
			for _, r := range dtos {
				rows = append(rows, []string{r.ID, r.EpisodeID, r.Status, r.Stage, fmt.Sprint(r.IssueCount), fmt.Sprintf("%.0fs", float64(r.DurationMs)/1000)})
			}
			fmt.Fprintln(out, renderTable(out, []string{"Run", "Episode", "Status", "Stage", "Issues", "Time"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight}))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print as JSON")
	return cmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its stage events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := ctx.openLedger()
			if err != nil {
				return err
			}
			run, err := ledger.Get(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("run %s not found", args[0])
			}
			events, err := ledger.Events(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			dto := api.FromRun(run)
			dto.Events = api.FromEvents(events)
			if jsonOutput {
				return writeJSON(cmd, dto)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run: %s\nEpisode: %s\nStatus: %s\nIssues: %d\n", dto.ID, dto.EpisodeID, dto.Status, dto.IssueCount)
			if dto.ErrorMessage != "" {
				fmt.Fprintf(out, "Error: %s\n", dto.ErrorMessage)
			}
			if dto.ReportPath != "" {
				fmt.Fprintf(out, "Report: %s\n", dto.ReportPath)
			}
			rows := make([][]string, 0, len(dto.Events))
			for _, ev := range dto.Events {
				rows = append(rows, []string{ev.CreatedAt, ev.Stage, ev.Outcome, ev.Detail})
			}
			if len(rows) > 0 {
				fmt.Fprintln(out, renderTable(out, []string{"Time", "Stage", "Outcome", "Detail"}, rows, nil))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print as JSON")
	return cmd
}

func newRunsPruneCommand(ctx *commandContext) *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old ledger entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			if keep < 1 {
				return fmt.Errorf("--keep must be at least 1")
			}
			ledger, err := ctx.openLedger()
			if err != nil {
				return err
			}
			removed, err := ledger.Prune(cmd.Context(), keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d run(s)\n", removed)
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 100, "Number of most recent runs to keep")
	return cmd
}
