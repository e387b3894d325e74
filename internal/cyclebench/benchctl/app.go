// Package benchctl implements the cyclebench commands. The cobra layer in cmd/cyclebench only parses flags.
package benchctl

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"

	"github.com/armadaproject/cyclebench/internal/common/logging"
	commonmetrics "github.com/armadaproject/cyclebench/internal/common/metrics"
	"github.com/armadaproject/cyclebench/internal/cyclebench/activity"
	"github.com/armadaproject/cyclebench/internal/cyclebench/build"
	"github.com/armadaproject/cyclebench/internal/cyclebench/configuration"
	"github.com/armadaproject/cyclebench/internal/cyclebench/report"
)

type App struct {
	// Parameters passed to the CLI by the user.
	Params *Params
	// Out is used to write the output. Defaults to standard out,
	// but can be overridden in tests to make assertions on the applications's output.
	Out io.Writer
}

// Params holds everything the user can set on the command line.
type Params struct {
	// Config files, merged in order over the defaults.
	ConfigFiles []string
	// Holds the defaults, the environment and any flags bound by the command.
	Viper *viper.Viper
}

// New instantiates an App with default parameters and standard output.
func New() *App {
	return &App{
		Params: &Params{Viper: configuration.NewViper()},
		Out:    os.Stdout,
	}
}

// Version prints build information (e.g., current git commit) to the app output.
func (a *App) Version() error {
	w := tabwriter.NewWriter(a.Out, 1, 1, 1, ' ', 0)
	defer w.Flush()
	fmt.Fprintf(w, "Version:\t%s\n", build.ReleaseVersion)
	fmt.Fprintf(w, "Commit:\t%s\n", build.GitCommit)
	fmt.Fprintf(w, "Go version:\t%s\n", build.GoVersion)
	fmt.Fprintf(w, "Built:\t%s\n", build.BuildTime)
	return nil
}

// Run loads the configuration, executes the activity and prints its report.
// An error is returned if the run did not resolve every cycle.
func (a *App) Run(ctx context.Context) (*report.Report, error) {
	config, err := configuration.Load(a.Params.Viper, a.Params.ConfigFiles)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		logging.MessageCounter(),
	)
	if config.MetricsPort != 0 {
		server, err := commonmetrics.ServeMetrics(config.MetricsPort, registry)
		if err != nil {
			return nil, err
		}
		defer server.Shutdown()
	}

	result, runErr := activity.NewRunner(config, registry).Run(ctx)
	if result == nil {
		return nil, runErr
	}
	if err := result.Print(a.Out); err != nil {
		return result, err
	}
	if runErr != nil {
		return result, runErr
	}
	if result.Outcome != report.Finished {
		return result, errors.Errorf("run %s %s with %d of %d cycles resolved", result.RunID, result.Outcome, result.Resolved, result.Cycles.Count())
	}
	return result, nil
}
