package natsdriver

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/cyclebench/internal/cyclebench/errorhandling"
	"github.com/armadaproject/cyclebench/internal/cyclebench/ops"
)

func withNats(t *testing.T, action func(driver *Driver, conn *nats.Conn)) {
	t.Helper()
	server := test.RunRandClientPortServer()
	defer server.Shutdown()

	driver, err := New(map[string]any{"url": server.ClientURL()})
	require.NoError(t, err)
	defer driver.Close()

	conn, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer conn.Close()
	action(driver.(*Driver), conn)
}

func apply(t *testing.T, driver *Driver, fields map[string]string, cycle int64) (any, error) {
	t.Helper()
	dispenser, err := driver.NewDispenser(ops.OpTemplate{Name: "op", Fields: fields})
	require.NoError(t, err)
	op, err := dispenser.Op(cycle)
	require.NoError(t, err)
	return op.Apply(context.Background())
}

func TestNats_PublishIsDelivered(t *testing.T) {
	withNats(t, func(driver *Driver, conn *nats.Conn) {
		sub, err := conn.SubscribeSync("bench.>")
		require.NoError(t, err)
		require.NoError(t, conn.Flush())

		result, err := apply(t, driver, map[string]string{"subject": "bench.{cycle}", "payload": "msg-{cycle}", "flush": "true"}, 8)
		require.NoError(t, err)
		assert.Equal(t, 5, result)

		msg, err := sub.NextMsg(5 * time.Second)
		require.NoError(t, err)
		assert.Equal(t, "bench.8", msg.Subject)
		assert.Equal(t, "msg-8", string(msg.Data))
	})
}

func TestNats_Request(t *testing.T) {
	withNats(t, func(driver *Driver, conn *nats.Conn) {
		_, err := conn.Subscribe("echo", func(msg *nats.Msg) {
			_ = msg.Respond(append([]byte("echo:"), msg.Data...))
		})
		require.NoError(t, err)
		require.NoError(t, conn.Flush())

		result, err := apply(t, driver, map[string]string{"subject": "echo", "payload": "{cycle}", "mode": "request"}, 3)
		require.NoError(t, err)
		assert.Equal(t, "echo:3", result)
	})
}

func TestNats_NoRespondersIsRetryable(t *testing.T) {
	withNats(t, func(driver *Driver, conn *nats.Conn) {
		registry := errorhandling.NewKindRegistry()
		driver.RegisterKinds(registry)
		table, err := registry.Build()
		require.NoError(t, err)
		classifier, err := errorhandling.NewClassifier(table)
		require.NoError(t, err)

		_, err = apply(t, driver, map[string]string{"subject": "nobody.home", "mode": "request"}, 1)
		require.Error(t, err)
		assert.Equal(t, errorhandling.GroupRetryable, classifier.Classify(err))
	})
}

func TestNats_InvalidTemplate(t *testing.T) {
	driver := &Driver{}
	_, err := driver.NewDispenser(ops.OpTemplate{Name: "op"})
	assert.Error(t, err)
	_, err = driver.NewDispenser(ops.OpTemplate{Name: "op", Fields: map[string]string{"subject": "s", "mode": "broadcast"}})
	assert.Error(t, err)
	_, err = driver.NewDispenser(ops.OpTemplate{Name: "op", Fields: map[string]string{"subject": "s", "timeout": "later"}})
	assert.Error(t, err)
}
