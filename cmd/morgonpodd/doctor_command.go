package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"morgonpodd/internal/api"
	"morgonpodd/internal/pipeline"
	"morgonpodd/internal/storage"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var offline bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check binaries, storage and API credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			uploader, err := storage.New(cfg)
			if err != nil {
				return err
			}
			req := api.DiagnoseRequest{Config: cfg, Storage: uploader}
			if !offline {
				req.Services = []api.ServiceCheck{
					{Name: "script_api", Pinger: pipeline.LLMClient(cfg), Optional: true},
					{Name: "speech_api", Pinger: pipeline.SpeechClient(cfg)},
				}
			}
			diag := api.Diagnose(cmd.Context(), req)
			if jsonOutput {
				if err := writeJSON(cmd, diag); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				rows := make([][]string, 0, len(diag.Dependencies)+len(diag.Services))
				for _, d := range diag.Dependencies {
					detail := d.Version
					if detail == "" {
						detail = d.Detail
					}
					rows = append(rows, []string{d.Name, availability(d.Available, d.Optional), detail})
				}
				for _, s := range diag.Services {
					rows = append(rows, []string{s.Name, availability(s.Ready, false), s.Detail})
				}
				fmt.Fprintln(out, renderTable(out, []string{"Check", "Status", "Detail"}, rows, nil))
				fmt.Fprintf(out, "Ready: %s\n", yesNo(diag.Ready))
			}
			if !diag.Ready {
				return fmt.Errorf("one or more required checks failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print as JSON")
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the script and speech API checks")
	return cmd
}

func availability(ok, optional bool) string {
	switch {
	case ok:
		return "✅ ok"
	case optional:
		return "⚠️ unavailable"
	default:
		return "❌ missing"
	}
}
