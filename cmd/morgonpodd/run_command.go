package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"morgonpodd/internal/feed"
	"morgonpodd/internal/logging"
	"morgonpodd/internal/pipeline"
	"morgonpodd/internal/runlog"
	"morgonpodd/internal/services"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Produce and publish today's episode",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := notifyContext(cmd.Context())
			defer cancel()

			orch, err := ctx.orchestrator()
			if err != nil {
				return err
			}
			runCtx := services.WithRequestID(signalCtx, uuid.NewString())
			report, runErr := orch.Run(runCtx)
			if report == nil {
				return runErr
			}
			if jsonOutput {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				printReport(cmd.OutOrStdout(), report)
			}
			if runErr != nil {
				return fmt.Errorf("run %s failed: %w", report.RunID, runErr)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run report as JSON")
	return cmd
}

func (c *commandContext) orchestrator() (*pipeline.Orchestrator, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	ledger, err := c.openLedger()
	if err != nil {
		return nil, err
	}
	return pipeline.NewFromConfig(cfg, logger, ledger)
}

func printReport(out io.Writer, report *pipeline.Report) {
	icon := "✅"
	switch report.Status {
	case runlog.StatusPartial:
		icon = "⚠️"
	case runlog.StatusFailed:
		icon = "❌"
	}
	fmt.Fprintf(out, "%s Run %s: %s\n", icon, report.RunID, report.Status)
	fmt.Fprintf(out, "Episode: %s\n", report.EpisodeID)
	if ep := report.Episode; ep != nil {
		fmt.Fprintf(out, "Title: %s\n", ep.Title)
		fmt.Fprintf(out, "Duration: %s\n", feed.FormatDuration(ep.DurationMs))
		fmt.Fprintf(out, "Audio: %s\n", ep.PublicURL)
	}
	if report.FeedURL != "" {
		fmt.Fprintf(out, "Feed: %s\n", report.FeedURL)
	}

	rows := make([][]string, 0, len(report.Stages))
	for _, s := range report.Stages {
		rows = append(rows, []string{s.Name, s.Outcome, fmt.Sprint(s.Issues), fmt.Sprintf("%.1fs", float64(s.DurationMs)/1000)})
	}
	fmt.Fprintln(out, renderTable(out, []string{"Stage", "Outcome", "Issues", "Time"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight, alignRight}))

	if len(report.Issues) > 0 {
		fmt.Fprintln(out, "Issues:")
		for _, issue := range report.Issues {
			marker := "-"
			if issue.Fatal {
				marker = "!"
			}
			fmt.Fprintf(out, "  %s %s\n", marker, issue.String())
		}
	}
	if report.Error != "" {
		fmt.Fprintf(out, "Error (%s): %s\n", report.ErrorKind, report.Error)
	}
	fmt.Fprintf(out, "Artifacts: %s\n", report.RunDir)
}

func newScheduleCommand(ctx *commandContext) *cobra.Command {
	var withServer bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline every day at podcast.generate_time",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := notifyContext(cmd.Context())
			defer cancel()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			orch, err := ctx.orchestrator()
			if err != nil {
				return err
			}
			notifier := notifierFor(cfg)
			sched := pipeline.NewScheduler(cfg, requestScoped{orch}, notifier, logger)

			if withServer {
				go func() {
					if err := serve(signalCtx, ctx); err != nil && !errors.Is(err, context.Canceled) {
						logger.Error("preview server stopped", logging.Args(logging.Error(err))...)
					}
				}()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scheduling daily runs at %s (%s)\n", cfg.Podcast.GenerateTime, strings.TrimSpace(cfg.Podcast.Timezone))
			err = sched.Loop(signalCtx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&withServer, "serve", false, "Also run the preview server on paths.api_bind")
	return cmd
}

// requestScoped tags every scheduled run with a fresh request id.
type requestScoped struct {
	orch *pipeline.Orchestrator
}

func (r requestScoped) Run(ctx context.Context) (*pipeline.Report, error) {
	return r.orch.Run(services.WithRequestID(ctx, uuid.NewString()))
}
