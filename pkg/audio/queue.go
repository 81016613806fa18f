package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrQueueClosed is returned by [FrameQueue.Dequeue] once the queue has been
// closed and every buffered frame has been consumed.
var ErrQueueClosed = errors.New("audio: frame queue closed")

// FrameQueue is a bounded FIFO of audio frames that never blocks its producer.
// When full, Enqueue evicts the single oldest frame before inserting the new
// one, so a slow consumer loses the stalest audio rather than stalling a
// real-time capture callback.
//
// FrameQueue supports exactly one producer and any number of consumers. The
// buffered channel is the ring; the producer mutex makes evict-then-insert
// atomic with respect to Close.
type FrameQueue struct {
	ch chan AudioFrame

	mu     sync.Mutex
	closed bool

	dropped atomic.Uint64
}

// NewFrameQueue returns a queue holding at most capacity frames. A capacity
// below 1 is treated as 1.
func NewFrameQueue(capacity int) *FrameQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &FrameQueue{ch: make(chan AudioFrame, capacity)}
}

// Enqueue inserts f without blocking. It reports whether an older frame was
// evicted to make room. Frames enqueued after Close are discarded.
func (q *FrameQueue) Enqueue(f AudioFrame) (dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	select {
	case q.ch <- f:
		return false
	default:
	}

	// Full. A consumer may have drained a slot since the failed send, in which
	// case there is nothing to evict.
	select {
	case <-q.ch:
		q.dropped.Add(1)
		dropped = true
	default:
	}

	// The mutex admits one producer, so a slot is guaranteed free here.
	q.ch <- f
	return dropped
}

// Dequeue blocks until a frame is available, ctx is done, or the queue is
// closed and empty.
func (q *FrameQueue) Dequeue(ctx context.Context) (AudioFrame, error) {
	select {
	case f, ok := <-q.ch:
		if !ok {
			return AudioFrame{}, ErrQueueClosed
		}
		return f, nil
	case <-ctx.Done():
		return AudioFrame{}, ctx.Err()
	}
}

// Close stops accepting frames. Frames already buffered remain available to
// Dequeue. Close is idempotent.
func (q *FrameQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Len returns the number of frames currently buffered.
func (q *FrameQueue) Len() int { return len(q.ch) }

// Cap returns the fixed capacity.
func (q *FrameQueue) Cap() int { return cap(q.ch) }

// Dropped returns the total number of frames evicted since construction.
func (q *FrameQueue) Dropped() uint64 { return q.dropped.Load() }
