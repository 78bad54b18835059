package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"morgonpodd/internal/config"
	"morgonpodd/internal/notifications"
)

func notifierFor(cfg *config.Config) notifications.Service {
	return notifications.NewService(cfg)
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Notifications.NtfyTopic == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Notification not sent: notifications.ntfy_topic is not set")
				return nil
			}
			if err := notifierFor(cfg).Publish(cmd.Context(), notifications.EventTest, notifications.Payload{
				"message": "Test notification from " + cfg.Podcast.Title,
			}); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	}
}
