package pulsardriver

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/cyclebench/internal/common/util"
	"github.com/armadaproject/cyclebench/internal/cyclebench/errorhandling"
	"github.com/armadaproject/cyclebench/internal/cyclebench/ops"
)

const testURLEnv = "CYCLEBENCH_TEST_PULSAR"

func TestRegisterKinds(t *testing.T) {
	registry := errorhandling.NewKindRegistry()
	(&Driver{}).RegisterKinds(registry)
	table, err := registry.Build()
	require.NoError(t, err)

	kind, ok := table.Get(KindRetryable)
	require.True(t, ok)
	assert.Equal(t, errorhandling.GroupRetryable, kind.Group)
}

func TestClassify_PassesThroughOtherErrors(t *testing.T) {
	err := errors.New("not pulsar")
	assert.Equal(t, err, classify(err))
}

func TestNewDispenser_TopicMustBeStatic(t *testing.T) {
	driver := NewWithClient(nil, Config{})
	_, err := driver.NewDispenser(ops.OpTemplate{Name: "send", Fields: map[string]string{"topic": "events-{cycle}"}})
	assert.Error(t, err)
	_, err = driver.NewDispenser(ops.OpTemplate{Name: "send"})
	assert.Error(t, err)
}

func TestNew_RejectsUnknownCompression(t *testing.T) {
	_, err := New(map[string]any{"compressionType": "brotli"})
	assert.Error(t, err)
}

func TestPulsar_Send(t *testing.T) {
	url := os.Getenv(testURLEnv)
	if url == "" {
		t.Skipf("%s is not set", testURLEnv)
	}
	driver, err := New(map[string]any{"url": url, "compressionType": "lz4", "operationTimeout": "10s"})
	require.NoError(t, err)
	defer driver.Close()

	topic := "persistent://public/default/cyclebench-" + util.NewULID()
	dispenser, err := driver.NewDispenser(ops.OpTemplate{Name: "send", Fields: map[string]string{
		"topic":   topic,
		"payload": "message-{cycle}",
		"key":     "{cycle}",
	}})
	require.NoError(t, err)
	op, err := dispenser.Op(1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	id, err := op.Apply(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}
