package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"callaudit/internal/api"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <callID>",
		Short: "Display a call with its stage history and evaluation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid call id %q", args[0])
			}
			return ctx.withFacade(cmd.Context(), func(facade callAPI) error {
				detail, err := facade.Describe(cmd.Context(), id)
				if err != nil {
					return err
				}
				if detail == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Call %d not found\n", id)
					return nil
				}
				printCallDetail(cmd.OutOrStdout(), detail)
				return nil
			})
		},
	}
}

func printCallDetail(out io.Writer, detail *api.CallDetail) {
	call := detail.Call
	fmt.Fprintf(out, "Call %d\n", call.ID)
	fmt.Fprintf(out, "  User:     %s\n", call.UserID)
	fmt.Fprintf(out, "  Template: %s\n", call.TemplateName)
	fmt.Fprintf(out, "  File:     %s\n", call.OriginalFilename)
	fmt.Fprintf(out, "  Status:   %s\n", formatStatusLabel(call.Status))
	if call.BatchID != "" {
		fmt.Fprintf(out, "  Batch:    %s\n", call.BatchID)
	}
	if call.DurationSeconds > 0 {
		fmt.Fprintf(out, "  Duration: %ds\n", call.DurationSeconds)
	}
	if call.ErrorMessage != "" {
		fmt.Fprintf(out, "  Error:    %s\n", call.ErrorMessage)
	}
	fmt.Fprintf(out, "  Created:  %s\n", formatDisplayTime(call.CreatedAt))

	if len(detail.Stages) > 0 {
		fmt.Fprintln(out)
		table := renderTable(
			[]string{"Stage", "Status", "Worker", "Started", "Finished", "Error"},
			buildStageRows(detail.Stages),
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
		)
		fmt.Fprintln(out, table)
	}

	if eval := detail.Evaluation; eval != nil {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Overall score: %.1f\n", eval.OverallScore)
		if eval.Summary != "" {
			fmt.Fprintf(out, "Summary: %s\n", eval.Summary)
		}
		if eval.ModelUsed != "" {
			fmt.Fprintf(out, "Model: %s\n", eval.ModelUsed)
		}
	}
}
