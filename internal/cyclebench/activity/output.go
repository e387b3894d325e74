package activity

import (
	"context"
	"time"

	"github.com/tevino/abool"

	"github.com/armadaproject/cyclebench/internal/common/logging"
	"github.com/armadaproject/cyclebench/internal/cyclebench/errorhandling"
	"github.com/armadaproject/cyclebench/internal/cyclebench/input"
	"github.com/armadaproject/cyclebench/internal/cyclebench/marker"
	"github.com/armadaproject/cyclebench/internal/cyclebench/metrics"
	"github.com/armadaproject/cyclebench/internal/cyclebench/motor"
)

// stoppableOutput records results in the chunker. Motors waiting for the window to reach their cycle are
// released with marker.ErrChunkerClosed once ctx is cancelled.
type stoppableOutput struct {
	chunker *marker.ContiguousOutputChunker
	ctx     context.Context
}

func (o *stoppableOutput) OnCycleResult(ctx context.Context, cycle int64, code marker.ResultCode) error {
	err := o.chunker.OnCycleResult(o.ctx, cycle, code)
	if err != nil && ctx.Err() == nil && o.ctx.Err() != nil {
		return marker.ErrChunkerClosed
	}
	return err
}

// poller publishes resolved segments and run state. Once the run is stopping, every live motor is parked above
// the window and no result has been recorded for a whole poll interval, nothing is left to fill the gap below
// them, so they are released. A motor still executing a slow op keeps the others parked.
type poller struct {
	chunker        *marker.ContiguousOutputChunker
	stop           *abool.AtomicBool
	tally          *motor.RunStateTally
	metrics        *metrics.Metrics
	releaseWaiters context.CancelFunc
	lastMarked     int64
}

func (p *poller) poll() {
	watermark, err := p.chunker.Poll()
	if err != nil {
		if p.stop.SetToIf(false, true) {
			logging.WithStacktrace(err).Error("Stopping run: segment sink failed")
		}
	}
	p.metrics.SetWatermark(watermark)
	p.metrics.SetMotorStates(p.tally.Snapshot())

	if p.stop.IsSet() {
		marked := p.chunker.Status().Marked
		waiting := p.chunker.Waiting()
		if marked == p.lastMarked && waiting > 0 && waiting >= p.tally.Active() {
			p.releaseWaiters()
		}
		p.lastMarked = marked
	}
}

type progressLogger struct {
	chunker *marker.ContiguousOutputChunker
	input   *input.AtomicInput
	handler *errorhandling.Handler
	start   time.Time
}

func (l *progressLogger) log() {
	status := l.chunker.Status()
	elapsed := time.Since(l.start)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(status.Marked) / elapsed.Seconds()
	}
	fields := map[string]any{
		"taken":     l.input.Taken(),
		"resolved":  status.Marked,
		"watermark": status.Watermark,
	}
	for group, count := range l.handler.Counts() {
		fields["errors."+group] = count
	}
	logging.WithFields(fields).Infof("%.0f cycles/s", rate)
}
