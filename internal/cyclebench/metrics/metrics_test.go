package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveCycle("write", 0, 1, time.Millisecond)
	m.ObserveCycle("write", 0, 3, time.Millisecond)
	m.ObserveCycle("read", 20, 1, time.Millisecond)
	m.RecordError("retryable", "timeout")
	m.RecordError("retryable", "timeout")
	m.SetWatermark(1234)
	m.SetMotorStates(map[string]int64{"running": 3, "finished": 1})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cycles.WithLabelValues("write", "0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("read", "20")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.errors.WithLabelValues("retryable", "timeout")))
	assert.Equal(t, 1234.0, testutil.ToFloat64(m.watermark))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.motors.WithLabelValues("running")))
	count, err := testutil.GatherAndCount(registry, MetricPrefix+"cycle_latency_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNew_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
