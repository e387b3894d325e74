// Package activity runs a configured workload against a driver and reports the outcome.
package activity

import (
	"context"
	"io"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tevino/abool"
	"golang.org/x/sync/errgroup"

	"github.com/armadaproject/cyclebench/internal/common/logging"
	"github.com/armadaproject/cyclebench/internal/common/task"
	"github.com/armadaproject/cyclebench/internal/common/util"
	"github.com/armadaproject/cyclebench/internal/cyclebench/configuration"
	"github.com/armadaproject/cyclebench/internal/cyclebench/cyclelog"
	"github.com/armadaproject/cyclebench/internal/cyclebench/drivers"
	"github.com/armadaproject/cyclebench/internal/cyclebench/errorhandling"
	"github.com/armadaproject/cyclebench/internal/cyclebench/input"
	"github.com/armadaproject/cyclebench/internal/cyclebench/marker"
	"github.com/armadaproject/cyclebench/internal/cyclebench/metrics"
	"github.com/armadaproject/cyclebench/internal/cyclebench/motor"
	"github.com/armadaproject/cyclebench/internal/cyclebench/ops"
	"github.com/armadaproject/cyclebench/internal/cyclebench/report"
	"github.com/armadaproject/cyclebench/internal/cyclebench/workload"
)

const taskShutdownTimeout = 10 * time.Second

// Runner executes one activity: a range of cycles driven through a workload by a pool of motors.
type Runner struct {
	config     configuration.CyclebenchConfig
	registerer prometheus.Registerer
	driver     ops.Driver
}

// NewRunner creates a Runner. Metrics are registered with registerer.
func NewRunner(config configuration.CyclebenchConfig, registerer prometheus.Registerer) *Runner {
	return &Runner{config: config, registerer: registerer}
}

// WithDriver makes the runner use driver instead of building the configured one. The runner closes it.
func (r *Runner) WithDriver(driver ops.Driver) *Runner {
	r.driver = driver
	return r
}

// Run executes the activity.
//
// It performs the following steps:
//  1. Loads the workload and creates the driver
//  2. Builds the kind table from the driver's kinds and applies the configured error policies
//  3. Builds one op dispenser per template and the op selection sequence
//  4. Starts the motors and the background poll that publishes resolved segments
//  5. Waits for the motors, then closes the output and summarises the run
//
// The returned report is non-nil whenever the motors were started, including when a defect ended the run, in
// which case the error is returned as well. Policy stops and cancellation of ctx are not errors.
func (r *Runner) Run(ctx context.Context) (*report.Report, error) {
	w, err := r.loadWorkload()
	if err != nil {
		return nil, err
	}
	driver, err := r.newDriver()
	if err != nil {
		return nil, err
	}
	defer util.CloseResource(driver.Name()+" driver", driver)

	classifier, err := NewClassifier(driver, &r.config.Errors)
	if err != nil {
		return nil, err
	}
	sequence, err := w.Dispensers(driver)
	if err != nil {
		return nil, err
	}

	runMetrics := metrics.New(r.registerer)
	counter := &report.CodeCounter{}
	sinks := []marker.SegmentSink{counter}
	if r.config.CycleLog.Enabled() {
		cycleLog, err := cyclelog.Open(cyclelog.Config{
			Path:          r.config.CycleLog.Path,
			BatchSize:     r.config.CycleLog.BatchSize,
			BatchInterval: r.config.CycleLog.BatchInterval,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, cycleLog)
	}
	cycles := r.config.Cycles
	chunker, err := marker.NewContiguousOutputChunker(cycles.Min, cycles.Max, marker.ExtentSizeFor(cycles.Count()), r.config.MaxExtents, sinks...)
	if err != nil {
		closeSinks(sinks)
		return nil, err
	}

	limiter, err := input.NewLimiter(r.config.CycleRate, r.config.BurstRatio)
	if err != nil {
		closeSinks(sinks)
		return nil, err
	}
	in := input.NewAtomicInput(cycles, limiter)
	stop := abool.New()
	handler := errorhandling.NewHandler(classifier, stop, runMetrics)
	tally := motor.NewRunStateTally()

	g, gctx := errgroup.WithContext(ctx)
	outputCtx, releaseWaiters := context.WithCancel(gctx)
	defer releaseWaiters()
	deps := motor.Dependencies{
		Input:    in,
		Sequence: sequence,
		Output:   &stoppableOutput{chunker: chunker, ctx: outputCtx},
		Handler:  handler,
		Stop:     stop,
		Tally:    tally,
		Observer: runMetrics,
	}
	motorConfig := motor.Config{
		MaxTries:      r.config.MaxTries,
		RetryDelay:    r.config.RetryDelay,
		MaxRetryDelay: r.config.MaxRetryDelay,
	}
	motors := make([]*motor.Motor, r.config.Threads)
	for slot := range motors {
		motors[slot], err = motor.NewMotor(slot, deps, motorConfig)
		if err != nil {
			closeSinks(sinks)
			return nil, err
		}
	}

	result := &report.Report{
		RunID:    report.NewRunID(),
		Driver:   driver.Name(),
		Workload: r.config.Workload,
		Cycles:   cycles,
		Threads:  r.config.Threads,
		Started:  time.Now(),
	}
	logging.
		WithField("runId", result.RunID).
		WithField("driver", driver.Name()).
		WithField("threads", r.config.Threads).
		Infof("Starting run of cycles %s with %d ops", cycles, len(w.Ops))

	tasks := task.NewBackgroundTaskManager(metrics.MetricPrefix, r.registerer)
	poller := &poller{chunker: chunker, stop: stop, tally: tally, metrics: runMetrics, releaseWaiters: releaseWaiters, lastMarked: -1}
	tasks.RegisterWithFinalRun(poller.poll, r.config.PollInterval, "poll")
	if r.config.ProgressInterval > 0 {
		progress := &progressLogger{chunker: chunker, input: in, handler: handler, start: result.Started}
		tasks.Register(progress.log, r.config.ProgressInterval, "progress")
	}

	for _, m := range motors {
		m := m
		g.Go(func() error {
			return m.Run(gctx)
		})
	}
	var runErr error
	if err := g.Wait(); err != nil {
		stop.Set()
		logging.WithStacktrace(err).Error("Run ended by a defect")
		runErr = err
	}
	releaseWaiters()
	if tasks.StopAll(taskShutdownTimeout) {
		logging.Warn("Background tasks did not stop in time")
	}

	status, err := chunker.Close()
	if err != nil {
		logging.WithStacktrace(err).Error("Error closing output")
		runErr = multierror.Append(runErr, err).ErrorOrNil()
	}
	runMetrics.SetWatermark(status.Watermark)

	result.Duration = time.Since(result.Started)
	result.Attempted = in.Taken()
	result.ErrorsByGroup = handler.Counts()
	result.MotorStates = tally.Snapshot()
	result.Summarise(status, counter.Counts(), classifier, runErr)
	for slot, last := range handler.LastStatuses() {
		logging.WithField("motor", slot).Debugf("Last error: %s", last)
	}
	logging.
		WithField("runId", result.RunID).
		WithField("outcome", result.Outcome).
		Infof("Run ended after %s with watermark %d", result.Duration.Round(time.Millisecond), result.Watermark)

	if r.config.ReportDir != "" {
		path, err := result.WriteJSON(r.config.ReportDir)
		if err != nil {
			logging.WithStacktrace(err).Error("Could not write report")
			runErr = multierror.Append(runErr, err).ErrorOrNil()
		} else {
			logging.Infof("Report written to %s", path)
		}
	}
	return result, runErr
}

func (r *Runner) loadWorkload() (*workload.Workload, error) {
	if r.config.Workload != "" {
		return workload.Load(r.config.Workload)
	}
	w := workload.Single("op", r.config.Op)
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

func (r *Runner) newDriver() (ops.Driver, error) {
	if r.driver != nil {
		return r.driver, nil
	}
	return drivers.New(r.config.Driver.Name, r.config.Driver.Settings)
}

// NewClassifier builds the kind table for driver and applies spec to the default groups.
func NewClassifier(driver ops.Driver, spec *errorhandling.ErrorSpec) (*errorhandling.Classifier, error) {
	registry := errorhandling.NewKindRegistry()
	driver.RegisterKinds(registry)
	table, err := registry.Build()
	if err != nil {
		return nil, errors.WithMessagef(err, "building error kinds of %s driver", driver.Name())
	}
	classifier, err := errorhandling.NewClassifier(table)
	if err != nil {
		return nil, err
	}
	if spec != nil {
		if err := classifier.Apply(spec); err != nil {
			return nil, err
		}
	}
	return classifier, nil
}

func closeSinks(sinks []marker.SegmentSink) {
	for _, sink := range sinks {
		if closer, ok := sink.(io.Closer); ok {
			util.CloseResource("segment sink", closer)
		}
	}
}
