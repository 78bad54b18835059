package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"morgonpodd/internal/api"
	"morgonpodd/internal/storage"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the feed, local audio and run history over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := serve(cmd.Context(), ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func serve(parent context.Context, ctx *commandContext) error {
	signalCtx, cancel := notifyContext(parent)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	ledger, err := ctx.openLedger()
	if err != nil {
		return err
	}
	uploader, err := storage.New(cfg)
	if err != nil {
		return err
	}
	// /health probes binaries and storage only; the remote APIs bill per call.
	diagnose := func(c context.Context) api.Diagnostics {
		return api.Diagnose(c, api.DiagnoseRequest{Config: cfg, Storage: uploader})
	}
	handler := api.NewHandler(cfg, ledger, diagnose, logger)
	return api.Serve(signalCtx, api.DefaultServerConfig(cfg.Paths.APIBind), api.NewServer(handler), logger)
}
