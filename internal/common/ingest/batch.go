package ingest

import (
	"context"
	"time"

	"k8s.io/utils/clock"

	log "github.com/armadaproject/cyclebench/internal/common/logging"
)

// Batcher batches up items from a channel. Batches are created whenever maxItems have been
// received or maxTimeout has elapsed since the batch was started (whichever occurs first).
// Items still buffered when the input channel closes are delivered as a final batch.
type Batcher[T any] struct {
	input      <-chan T
	maxItems   int
	maxTimeout time.Duration
	clock      clock.Clock
	callback   func([]T)
	buffer     []T
}

func NewBatcher[T any](input <-chan T, maxItems int, maxTimeout time.Duration, callback func([]T)) *Batcher[T] {
	return &Batcher[T]{
		input:      input,
		maxItems:   maxItems,
		maxTimeout: maxTimeout,
		callback:   callback,
		clock:      clock.RealClock{},
	}
}

// Run batches until the input channel is closed or ctx is done. Buffered items are dropped if ctx ends first.
func (b *Batcher[T]) Run(ctx context.Context) {
	for {
		b.buffer = make([]T, 0, b.maxItems)
		expire := b.clock.After(b.maxTimeout)
		for appendToBatch := true; appendToBatch; {
			select {
			case <-ctx.Done():
				if len(b.buffer) > 0 {
					log.Warnf("Batcher: context is done, dropping %d buffered items", len(b.buffer))
				}
				return
			case value, ok := <-b.input:
				if !ok {
					if len(b.buffer) > 0 {
						b.callback(b.buffer)
					}
					return
				}
				b.buffer = append(b.buffer, value)
				if len(b.buffer) == b.maxItems {
					b.callback(b.buffer)
					appendToBatch = false
				}
			case <-expire:
				if len(b.buffer) > 0 {
					b.callback(b.buffer)
					appendToBatch = false
				} else {
					expire = b.clock.After(b.maxTimeout)
				}
			}
		}
	}
}
