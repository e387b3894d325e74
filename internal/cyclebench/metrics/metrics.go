package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/armadaproject/cyclebench/internal/cyclebench/marker"
)

const MetricPrefix = "cyclebench_"

// Metrics records what motors do. It implements motor.Observer and errorhandling.ErrorRecorder.
type Metrics struct {
	cycles    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	tries     *prometheus.HistogramVec
	errors    *prometheus.CounterVec
	watermark prometheus.Gauge
	motors    *prometheus.GaugeVec
}

func New(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		cycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricPrefix + "cycles_total",
				Help: "Cycles completed, by op and result code",
			},
			[]string{"op", "result"}),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricPrefix + "cycle_latency_seconds",
				Help:    "Time to complete a cycle including retries, by op",
				Buckets: prometheus.ExponentialBuckets(0.00005, 2, 20),
			},
			[]string{"op"}),
		tries: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricPrefix + "cycle_tries",
				Help:    "Attempts needed per cycle, by op",
				Buckets: prometheus.LinearBuckets(1, 1, 10),
			},
			[]string{"op"}),
		errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricPrefix + "errors_total",
				Help: "Errors counted by policy, by group and kind",
			},
			[]string{"group", "kind"}),
		watermark: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: MetricPrefix + "watermark",
				Help: "Every cycle below this one has a result",
			}),
		motors: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricPrefix + "motors",
				Help: "Motors by state",
			},
			[]string{"state"}),
	}
}

func (m *Metrics) ObserveCycle(op string, code marker.ResultCode, tries int, elapsed time.Duration) {
	m.cycles.WithLabelValues(op, strconv.Itoa(int(code))).Inc()
	m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
	m.tries.WithLabelValues(op).Observe(float64(tries))
}

func (m *Metrics) RecordError(group, kind string) {
	m.errors.WithLabelValues(group, kind).Inc()
}

func (m *Metrics) SetWatermark(watermark int64) {
	m.watermark.Set(float64(watermark))
}

// SetMotorStates publishes a snapshot of motor counts by state.
func (m *Metrics) SetMotorStates(counts map[string]int64) {
	for state, count := range counts {
		m.motors.WithLabelValues(state).Set(float64(count))
	}
}
