package cmd

import (
	"github.com/spf13/cobra"

	"github.com/armadaproject/cyclebench/internal/cyclebench/benchctl"
	"github.com/armadaproject/cyclebench/internal/cyclebench/errorhandling"
)

// List the error kinds of a driver.
func kindsCmd(app *benchctl.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kinds",
		Short: "Print the error kinds of a driver with their result codes and groups.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, err := cmd.Flags().GetString("driver")
			if err != nil {
				return err
			}
			spec, err := cmd.Flags().GetString("errors")
			if err != nil {
				return err
			}
			return app.Kinds(driver, spec)
		},
	}

	cmd.Flags().String("driver", "diag", "Driver name.")
	cmd.Flags().String("errors", errorhandling.DefaultErrorSpec, "Error groups and policies to apply.")
	return cmd
}
