package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/knakamura13/twitch-open-cv/internal/notify"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test alert through every configured notifier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			notifier, cleanup := notify.New(cfg)
			defer cleanup()

			if err := notifier.Notify(cmd.Context(), cfg.Notify.Title, "Test notification from betwatch"); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Notification partially failed")
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	}
}
