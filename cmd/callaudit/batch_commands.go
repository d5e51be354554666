package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	batchCmd := &cobra.Command{
		Use:   "batches",
		Short: "Inspect batch submissions",
	}

	batchCmd.AddCommand(newBatchListCommand(ctx))
	batchCmd.AddCommand(newBatchShowCommand(ctx))

	return batchCmd
}

func newBatchListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withFacade(cmd.Context(), func(facade callAPI) error {
				batches, err := facade.ListBatches(cmd.Context())
				if err != nil {
					return err
				}
				if len(batches) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No batches submitted")
					return nil
				}
				table := renderTable(
					[]string{"ID", "User", "Calls", "Completed", "Failed", "Status", "Created"},
					buildBatchListRows(batches),
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newBatchShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <batchID>",
		Short: "Display a batch with its member calls",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if id == "" {
				return fmt.Errorf("batch id is required")
			}
			return ctx.withFacade(cmd.Context(), func(facade callAPI) error {
				detail, err := facade.DescribeBatch(cmd.Context(), id)
				if err != nil {
					return err
				}
				if detail == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Batch %s not found\n", id)
					return nil
				}
				out := cmd.OutOrStdout()
				batch := detail.Batch
				fmt.Fprintf(out, "Batch %s\n", batch.ID)
				fmt.Fprintf(out, "  User:      %s\n", batch.UserID)
				fmt.Fprintf(out, "  Status:    %s\n", formatStatusLabel(batch.Status))
				fmt.Fprintf(out, "  Calls:     %d (%d completed, %d failed)\n", batch.NumCalls, batch.NumCompleted, batch.NumFailed)
				fmt.Fprintf(out, "  Created:   %s\n", formatDisplayTime(batch.CreatedAt))
				if batch.CompletedAt != "" {
					fmt.Fprintf(out, "  Completed: %s\n", formatDisplayTime(batch.CompletedAt))
				}
				if len(detail.Calls) > 0 {
					fmt.Fprintln(out)
					table := renderTable(
						[]string{"ID", "File", "User", "Status", "Created", "Batch"},
						buildCallListRows(detail.Calls),
						[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
					)
					fmt.Fprintln(out, table)
				}
				return nil
			})
		},
	}
}
