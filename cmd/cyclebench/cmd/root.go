package cmd

import (
	"github.com/spf13/cobra"

	"github.com/armadaproject/cyclebench/internal/cyclebench/benchctl"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cyclebench",
		Short: "cyclebench drives numbered cycles of operations against a backend and reports how they resolved.",
		Long: `cyclebench drives numbered cycles of operations against a backend and reports how they resolved.

Runs are configured with one or more YAML files passed with --config, merged in order.
Any setting can also be given as a CYCLEBENCH_ environment variable, e.g. CYCLEBENCH_THREADS=16.

Example config:
threads: 16
cycles: 1M
cycleRate: 5000
driver:
  name: redis
  settings:
    addrs: [localhost:6379]
workload: workloads/kv.yaml`,
		SilenceUsage: true,
	}

	cmd.AddCommand(
		runCmd(benchctl.New()),
		planCmd(benchctl.New()),
		kindsCmd(benchctl.New()),
		versionCmd(benchctl.New()),
	)

	return cmd
}

// Print version info and exit.
func versionCmd(app *benchctl.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Version()
		},
	}
	return cmd
}
