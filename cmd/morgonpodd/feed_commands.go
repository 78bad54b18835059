package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"morgonpodd/internal/api"
	"morgonpodd/internal/feed"
)

func newFeedCommand(ctx *commandContext) *cobra.Command {
	feedCmd := &cobra.Command{
		Use:   "feed",
		Short: "Inspect or republish the podcast feed",
	}
	feedCmd.AddCommand(newFeedListCommand(ctx))
	feedCmd.AddCommand(newFeedRebuildCommand(ctx))
	return feedCmd
}

func newFeedListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List retained episodes, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			state, err := feed.LoadState(cfg.Paths.FeedState, cfg.Podcast.MaxRetained)
			if err != nil {
				return err
			}
			resp := api.FromState(state)
			if jsonOutput {
				return writeJSON(cmd, resp)
			}
			out := cmd.OutOrStdout()
			if len(resp.Episodes) == 0 {
				fmt.Fprintln(out, "No episodes published yet")
				return nil
			}
			rows := make([][]string, 0, len(resp.Episodes))
			for _, ep := range resp.Episodes {
				rows = append(rows, []string{fmt.Sprint(ep.Number), ep.ID, ep.Title, ep.Duration, ep.MimeType})
			}
			fmt.Fprintln(out, renderTable(out, []string{"#", "ID", "Title", "Duration", "Type"}, rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft}))
			fmt.Fprintf(out, "%d of at most %d episodes retained\n", len(resp.Episodes), resp.MaxRetained)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print as JSON")
	return cmd
}

func newFeedRebuildCommand(ctx *commandContext) *cobra.Command {
	var noUpload bool

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Regenerate the feed from the feed state file",
		Long:  "Regenerate feed.xml and feed.json from the feed state file and upload them. Use after editing the state by hand.",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := ctx.orchestrator()
			if err != nil {
				return err
			}
			result, err := orch.RebuildFeed(cmd.Context(), !noUpload)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Rendered %d episodes to %s\n", result.Episodes, result.Path)
			if result.URL != "" {
				fmt.Fprintf(out, "Published %s\n", result.URL)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noUpload, "no-upload", false, "Write the feed locally without uploading")
	return cmd
}
