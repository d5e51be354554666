package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"callaudit/internal/notifications"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if client := ctx.dialClient(cmd.Context()); client != nil {
				sent, message, err := client.TestNotification(cmd.Context())
				if err != nil {
					return err
				}
				printNotifyOutcome(out, sent, message)
				return nil
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
				fmt.Fprintln(out, "ntfy topic not configured")
				return nil
			}
			service := notifications.NewService(cfg)
			defer service.Close()
			if err := service.Test(cmd.Context()); err != nil {
				return err
			}
			printNotifyOutcome(out, true, "")
			return nil
		},
	}
}

func printNotifyOutcome(out io.Writer, sent bool, message string) {
	switch {
	case message != "":
		fmt.Fprintln(out, message)
	case sent:
		fmt.Fprintln(out, "Test notification sent")
	default:
		fmt.Fprintln(out, "Notification not sent")
	}
}
