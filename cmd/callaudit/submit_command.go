package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"callaudit/internal/api"
	"callaudit/internal/ledger"
	"callaudit/internal/logging"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var userID string
	var templateName string
	var asBatch bool

	cmd := &cobra.Command{
		Use:   "submit <path>...",
		Short: "Submit audio files or directories for scoring",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			store, err := ledger.OpenFromDir(cfg.Paths.LogDir)
			if err != nil {
				return err
			}
			defer store.Close()

			result, err := api.SubmitCalls(cmd.Context(), api.SubmitRequest{
				Config:       cfg,
				Store:        store,
				Logger:       logging.NewNop(),
				Paths:        args,
				UserID:       userID,
				TemplateName: templateName,
				AsBatch:      asBatch,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if result.BatchID != "" {
				fmt.Fprintf(out, "Submitted %d calls in batch %s\n", len(result.Calls), result.BatchID)
			} else if len(result.Calls) == 1 {
				fmt.Fprintf(out, "Submitted call %d\n", result.Calls[0].ID)
			} else {
				fmt.Fprintf(out, "Submitted %d calls\n", len(result.Calls))
			}
			for _, call := range result.Calls {
				fmt.Fprintf(out, "  %d  %s\n", call.ID, call.OriginalFilename)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "User the calls belong to")
	cmd.Flags().StringVarP(&templateName, "template", "t", "", "Scoring template to apply")
	cmd.Flags().BoolVar(&asBatch, "batch", false, "Group the calls under a batch even for a single file")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}
