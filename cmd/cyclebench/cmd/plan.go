package cmd

import (
	"github.com/spf13/cobra"

	"github.com/armadaproject/cyclebench/internal/cyclebench/benchctl"
	"github.com/armadaproject/cyclebench/internal/cyclebench/input"
)

// Print the op schedule of a workload.
func planCmd(app *benchctl.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the ops of a workload and the op each cycle selects.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			workloadPath, err := cmd.Flags().GetString("workload")
			if err != nil {
				return err
			}
			cyclesFlag, err := cmd.Flags().GetString("cycles")
			if err != nil {
				return err
			}
			var cycles input.CycleRange
			if cyclesFlag != "" {
				if cycles, err = input.ParseCycleRange(cyclesFlag); err != nil {
					return err
				}
			}
			return app.Plan(workloadPath, cycles)
		},
	}

	cmd.Flags().String("workload", "", "Workload file.")
	cmd.Flags().String("cycles", "", "Cycles to print. Defaults to one pass of the schedule.")
	_ = cmd.MarkFlagRequired("workload")
	return cmd
}
