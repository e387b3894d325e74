package logging

import (
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusHook(t *testing.T) {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.AddHook(NewPrometheusHook())

	warnBefore := testutil.ToFloat64(logMessages.WithLabelValues(logrus.WarnLevel.String()))
	l.Warn("one")
	l.Warn("two")
	l.Debug("not logged at info level")

	assert.Equal(t, warnBefore+2, testutil.ToFloat64(logMessages.WithLabelValues(logrus.WarnLevel.String())))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(MessageCounter(), "cyclebench_log_messages_total"), 1)
}
