package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"callaudit/internal/api"
)

func newCallsCommand(ctx *commandContext) *cobra.Command {
	callsCmd := &cobra.Command{
		Use:   "calls",
		Short: "Inspect and manage submitted calls",
	}

	callsCmd.AddCommand(newCallsStatusCommand(ctx))
	callsCmd.AddCommand(newCallsListCommand(ctx))
	callsCmd.AddCommand(newCallsRetryCommand(ctx))
	callsCmd.AddCommand(newCallsCancelCommand(ctx))
	callsCmd.AddCommand(newCallsClearCommand(ctx))
	callsCmd.AddCommand(newCallsHealthCommand(ctx))

	return callsCmd
}

func newCallsHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show ledger diagnostics and call counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withFacade(cmd.Context(), func(facade callAPI) error {
				report, err := facade.Health(cmd.Context())
				if err != nil {
					return err
				}
				printHealthReport(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}
}

func printHealthReport(out io.Writer, report *api.HealthReport) {
	db := report.Database
	fmt.Fprintf(out, "Ledger database: %s\n", db.Path)
	fmt.Fprintf(out, "  Exists: %s\n", yesNo(db.Exists))
	fmt.Fprintf(out, "  Readable: %s\n", yesNo(db.Readable))
	fmt.Fprintf(out, "  Schema present: %s\n", yesNo(db.SchemaPresent))
	fmt.Fprintf(out, "  Integrity check: %s\n", yesNo(db.IntegrityOK))
	if db.Error != "" {
		fmt.Fprintf(out, "  Error: %s\n", db.Error)
	}
	fmt.Fprintln(out)

	calls := report.Calls
	rows := [][]string{
		{"Total", strconv.Itoa(calls.Total)},
		{"Queued", strconv.Itoa(calls.Queued)},
		{"Processing", strconv.Itoa(calls.Processing)},
		{"Completed", strconv.Itoa(calls.Completed)},
		{"Failed", strconv.Itoa(calls.Failed)},
		{"Cancelled", strconv.Itoa(calls.Cancelled)},
	}
	table := renderTable([]string{"Calls", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
	fmt.Fprintln(out, table)
}

func newCallsStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show call counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withFacade(cmd.Context(), func(facade callAPI) error {
				stats, err := facade.Stats(cmd.Context())
				if err != nil {
					return err
				}
				rows := buildCallStatusRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No calls submitted")
					return nil
				}
				table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newCallsListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List submitted calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withFacade(cmd.Context(), func(facade callAPI) error {
				calls, err := facade.List(cmd.Context(), listStatuses)
				if err != nil {
					return err
				}
				if len(calls) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No calls submitted")
					return nil
				}
				table := renderTable(
					[]string{"ID", "File", "User", "Status", "Created", "Batch"},
					buildCallListRows(calls),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by call status (repeatable)")
	return cmd
}

func newCallsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <callID>...",
		Short: "Requeue failed calls",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withFacade(cmd.Context(), func(facade callAPI) error {
				result, err := facade.Retry(cmd.Context(), ids)
				if err != nil {
					return err
				}
				printRetryResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
}

func newCallsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <callID>...",
		Short: "Cancel queued or processing calls",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withFacade(cmd.Context(), func(facade callAPI) error {
				result, err := facade.Cancel(cmd.Context(), ids)
				if err != nil {
					return err
				}
				printCancelResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
}

func newCallsClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished calls from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearCompleted && clearFailed {
				return errors.New("specify only one of --completed or --failed")
			}
			var statuses []string
			switch {
			case clearCompleted:
				statuses = []string{"completed"}
			case clearFailed:
				statuses = []string{"failed"}
			}
			return ctx.withFacade(cmd.Context(), func(facade callAPI) error {
				removed, err := facade.ClearFinished(cmd.Context(), statuses)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d %s\n", removed, clearLabel(clearCompleted, clearFailed))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove only completed calls")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove only failed calls")
	return cmd
}

func clearLabel(completed, failed bool) string {
	switch {
	case completed:
		return "completed calls"
	case failed:
		return "failed calls"
	default:
		return "finished calls"
	}
}

func parsePositiveIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid call id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func printRetryResult(out io.Writer, result api.RetryCallsResult) {
	for _, call := range result.Calls {
		switch call.Outcome {
		case api.RetryNotFound:
			fmt.Fprintf(out, "Call %d not found\n", call.ID)
		case api.RetryNotFailed:
			fmt.Fprintf(out, "Call %d is not in a retryable state (only failed calls can be retried)\n", call.ID)
		case api.RetryUpdated:
			fmt.Fprintf(out, "Call %d requeued for scoring\n", call.ID)
		}
	}
}

func printCancelResult(out io.Writer, result api.CancelCallsResult) {
	for _, call := range result.Calls {
		switch call.Outcome {
		case api.CancelNotFound:
			fmt.Fprintf(out, "Call %d not found\n", call.ID)
		case api.CancelAlreadyCompleted:
			fmt.Fprintf(out, "Call %d is already completed\n", call.ID)
		case api.CancelAlreadyFailed:
			fmt.Fprintf(out, "Call %d is already failed\n", call.ID)
		case api.CancelImmediate:
			fmt.Fprintf(out, "Call %d cancelled\n", call.ID)
		case api.CancelRequested:
			message := fmt.Sprintf("Call %d cancellation requested", call.ID)
			if call.PriorStatus != "" {
				message = fmt.Sprintf("Call %d cancellation requested (currently %s; will halt after current stage)",
					call.ID, formatStatusLabel(call.PriorStatus))
			}
			fmt.Fprintln(out, message)
		}
	}
}
