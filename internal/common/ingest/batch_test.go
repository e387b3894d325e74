package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clock "k8s.io/utils/clock/testing"
)

const (
	defaultMaxItems   = 3
	defaultMaxTimeOut = 5 * time.Second
)

func startBatcher(t *testing.T, input chan int) (*clock.FakeClock, <-chan []int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	testClock := clock.NewFakeClock(time.Now())
	output := make(chan []int, 10)
	batcher := NewBatcher[int](input, defaultMaxItems, defaultMaxTimeOut, func(a []int) { output <- a })
	batcher.clock = testClock
	go func() {
		batcher.Run(ctx)
		close(output)
	}()
	return testClock, output
}

func receive(t *testing.T, output <-chan []int) []int {
	t.Helper()
	select {
	case batch := <-output:
		return batch
	case <-time.After(time.Second):
		require.FailNow(t, "no batch received")
		return nil
	}
}

func TestBatch_MaxItems(t *testing.T) {
	inputChan := make(chan int)
	_, output := startBatcher(t, inputChan)

	// Six items without advancing the clock make two full batches
	for i := 1; i <= 6; i++ {
		inputChan <- i
	}
	assert.Equal(t, []int{1, 2, 3}, receive(t, output))
	assert.Equal(t, []int{4, 5, 6}, receive(t, output))
}

func TestBatch_Time(t *testing.T) {
	inputChan := make(chan int)
	testClock, output := startBatcher(t, inputChan)

	inputChan <- 1
	inputChan <- 2
	waitForWaiters(t, testClock)
	testClock.Step(defaultMaxTimeOut)
	assert.Equal(t, []int{1, 2}, receive(t, output))

	inputChan <- 3
	waitForWaiters(t, testClock)
	testClock.Step(defaultMaxTimeOut)
	assert.Equal(t, []int{3}, receive(t, output))
}

func TestBatch_FlushesOnClose(t *testing.T) {
	inputChan := make(chan int)
	_, output := startBatcher(t, inputChan)

	inputChan <- 1
	inputChan <- 2
	close(inputChan)
	assert.Equal(t, []int{1, 2}, receive(t, output))
	_, open := <-output
	assert.False(t, open)
}

func waitForWaiters(t *testing.T, c *clock.FakeClock) {
	t.Helper()
	require.Eventually(t, c.HasWaiters, time.Second, time.Millisecond)
}
