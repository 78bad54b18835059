package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"morgonpodd/internal/config"
	"morgonpodd/internal/feed"
	"morgonpodd/internal/music"
)

func newMusicCommand(ctx *commandContext) *cobra.Command {
	musicCmd := &cobra.Command{
		Use:   "music",
		Short: "Manage intro, transition and outro music",
	}
	musicCmd.AddCommand(newMusicListCommand(ctx))
	musicCmd.AddCommand(newMusicAddCommand(ctx))
	musicCmd.AddCommand(newMusicRemoveCommand(ctx))
	return musicCmd
}

func newMusicListCommand(ctx *commandContext) *cobra.Command {
	var category string
	var search string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalogued music assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			catalog, err := music.Load(cfg.Paths.MusicCatalog)
			if err != nil {
				return err
			}
			assets := catalog.Assets
			switch {
			case strings.TrimSpace(category) != "":
				assets = catalog.ByCategory(category)
			case strings.TrimSpace(search) != "":
				assets = catalog.Search(search)
			}
			if jsonOutput {
				return writeJSON(cmd, assets)
			}
			out := cmd.OutOrStdout()
			if len(assets) == 0 {
				fmt.Fprintf(out, "No music assets in %s\n", catalog.Path())
				return nil
			}
			rows := make([][]string, 0, len(assets))
			for _, a := range assets {
				rows = append(rows, []string{a.ID, a.Title, a.Artist, strings.Join(a.Categories, ","), feed.FormatDuration(a.DurationMs)})
			}
			fmt.Fprintln(out, renderTable(out, []string{"ID", "Title", "Artist", "Categories", "Duration"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight}))
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Only show assets in this category")
	cmd.Flags().StringVar(&search, "search", "", "Filter by title, artist or mood")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print as JSON")
	return cmd
}

func newMusicAddCommand(ctx *commandContext) *cobra.Command {
	var req music.AddRequest

	cmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Copy a music file into the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			source, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			catalog, err := music.Load(cfg.Paths.MusicCatalog)
			if err != nil {
				return err
			}
			req.Source = source
			asset, err := catalog.Add(req, time.Now())
			if err != nil {
				return err
			}
			if err := catalog.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s) as %s\n", asset.Title, strings.Join(asset.Categories, ","), asset.ID)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&req.Categories, "category", nil, "Category: intro, transition or outro (repeatable)")
	cmd.Flags().StringVar(&req.Title, "title", "", "Display title (defaults to the file name)")
	cmd.Flags().StringVar(&req.Artist, "artist", "", "Artist")
	cmd.Flags().StringSliceVar(&req.Moods, "mood", nil, "Mood tag (repeatable)")
	cmd.Flags().StringVar(&req.Description, "description", "", "Free-form description")
	return cmd
}

func newMusicRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a music asset and its file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			catalog, err := music.Load(cfg.Paths.MusicCatalog)
			if err != nil {
				return err
			}
			removed, err := catalog.Remove(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("music asset %s not found", args[0])
			}
			if err := catalog.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		},
	}
}
