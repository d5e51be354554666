package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and pipeline status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			client := ctx.dialClient(cmd.Context())
			if client == nil {
				fmt.Fprintln(out, "Daemon: not running")
				return ctx.withFacade(cmd.Context(), func(facade callAPI) error {
					stats, err := facade.Stats(cmd.Context())
					if err != nil {
						return err
					}
					rows := buildCallStatusRows(stats)
					if len(rows) == 0 {
						fmt.Fprintln(out, "No calls submitted")
						return nil
					}
					table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
					fmt.Fprintln(out, table)
					return nil
				})
			}

			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Daemon: running (pid %d)\n", status.PID)
			fmt.Fprintf(out, "Ledger: %s\n", status.LedgerDBPath)
			fmt.Fprintf(out, "Lock:   %s\n", status.LockFilePath)

			if rows := buildCallStatusRows(status.Pipeline.CallStats); len(rows) > 0 {
				fmt.Fprintln(out)
				table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(out, table)
			}

			if len(status.Pipeline.StageHealth) > 0 {
				rows := make([][]string, 0, len(status.Pipeline.StageHealth))
				for _, health := range status.Pipeline.StageHealth {
					rows = append(rows, []string{health.Name, yesNo(health.Ready), health.Detail})
				}
				fmt.Fprintln(out)
				table := renderTable([]string{"Stage", "Ready", "Detail"}, rows, []columnAlignment{alignLeft, alignLeft, alignLeft})
				fmt.Fprintln(out, table)
			}

			if len(status.Dependencies) > 0 {
				rows := make([][]string, 0, len(status.Dependencies))
				for _, dep := range status.Dependencies {
					rows = append(rows, []string{dep.Name, yesNo(dep.Available), dep.Detail})
				}
				fmt.Fprintln(out)
				table := renderTable([]string{"Dependency", "Available", "Detail"}, rows, []columnAlignment{alignLeft, alignLeft, alignLeft})
				fmt.Fprintln(out, table)
			}
			return nil
		},
	}
}
