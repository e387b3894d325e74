package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatch(t *testing.T) {
	assert.Equal(t, [][]int64{}, Batch([]int64{}, 1))
	assert.Equal(t, [][]int64{{1}}, Batch([]int64{1}, 1))
	assert.Equal(t, [][]int64{{1}}, Batch([]int64{1}, 10))
	assert.Equal(t, [][]int64{{1}, {2}}, Batch([]int64{1, 2}, 1))
	assert.Equal(t, [][]int64{{1, 2}}, Batch([]int64{1, 2}, 2))
	assert.Equal(t, [][]int64{{1, 2, 3}, {4, 5}}, Batch([]int64{1, 2, 3, 4, 5}, 3))
	assert.Equal(t, [][]int64{{1}, {2}}, Batch([]int64{1, 2}, 0))
}

func TestBatch_DoesNotShareCapacity(t *testing.T) {
	batches := Batch([]int64{1, 2, 3, 4}, 2)
	batches[0] = append(batches[0], 99)
	assert.Equal(t, []int64{3, 4}, batches[1])
}
