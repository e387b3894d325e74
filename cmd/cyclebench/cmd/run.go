package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/armadaproject/cyclebench/internal/common/app"
	"github.com/armadaproject/cyclebench/internal/common/logging"
	"github.com/armadaproject/cyclebench/internal/cyclebench/benchctl"
)

// Flags that override a config key of the same name.
var runOverrides = map[string]string{
	"threads":      "threads",
	"cycles":       "cycles",
	"cycle-rate":   "cycleRate",
	"errors":       "errors",
	"workload":     "workload",
	"driver":       "driver.name",
	"max-tries":    "maxTries",
	"report-dir":   "reportDir",
	"cycle-log":    "cycleLog.path",
	"metrics-port": "metricsPort",
}

// Execute a workload and print the report.
// Exits non-zero unless every cycle in the range was resolved.
func runCmd(a *benchctl.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run cycles of a workload against a driver.",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logging.ConfigureApplicationLogging(); err != nil {
				return err
			}
			return initRunParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.CreateContextWithShutdown()
			defer cancel()
			_, err := a.Run(ctx)
			if err != nil {
				logging.WithStacktrace(err).Error("Run failed")
			}
			return err
		},
	}

	cmd.Flags().StringSlice("config", nil, "Config files, merged in order.")
	cmd.Flags().Int("threads", 1, "Number of motors executing cycles concurrently.")
	cmd.Flags().String("cycles", "1", `Cycles to run, e.g. "1M" or "1000..2000".`)
	cmd.Flags().Float64("cycle-rate", 0, "Cycles per second across all motors. Zero means unlimited.")
	cmd.Flags().String("errors", "", `Error groups and policies, e.g. "retryable:warn,retry;stop".`)
	cmd.Flags().String("workload", "", "Workload file.")
	cmd.Flags().StringToString("op", nil, "Fields of a single op, used instead of a workload, e.g. result={cycle}.")
	cmd.Flags().String("driver", "", "Driver name.")
	cmd.Flags().Int("max-tries", 10, "Maximum attempts per cycle.")
	cmd.Flags().String("report-dir", "", "Directory the JSON report is written to.")
	cmd.Flags().String("cycle-log", "", "SQLite file every cycle's result is written to.")
	cmd.Flags().Uint16("metrics-port", 0, "Port prometheus metrics are served on. Zero disables metrics.")
	return cmd
}

func initRunParams(cmd *cobra.Command, params *benchctl.Params) error {
	configFiles, err := cmd.Flags().GetStringSlice("config")
	if err != nil {
		return errors.WithStack(err)
	}
	params.ConfigFiles = configFiles

	for flag, key := range runOverrides {
		if err := params.Viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return errors.WithStack(err)
		}
	}
	if cmd.Flags().Changed("op") {
		op, err := cmd.Flags().GetStringToString("op")
		if err != nil {
			return errors.WithStack(err)
		}
		params.Viper.Set("op", op)
	}
	return nil
}
