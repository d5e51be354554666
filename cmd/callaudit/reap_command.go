package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newReapCommand(ctx *commandContext) *cobra.Command {
	var age time.Duration

	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Fail calls stuck in processing beyond an age threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			if age <= 0 {
				return fmt.Errorf("age must be positive")
			}
			return ctx.withFacade(cmd.Context(), func(facade callAPI) error {
				count, err := facade.Reap(cmd.Context(), age)
				if err != nil {
					return err
				}
				if count == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No stuck calls found")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Failed %d stuck calls\n", count)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&age, "age", 30*time.Minute, "Minimum time a call must have been processing")
	return cmd
}
