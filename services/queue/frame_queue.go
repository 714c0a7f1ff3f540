// Package queue holds the bounded FIFO that hands frames from the capture
// loop to the upload loop.
//
// The queue is a buffered channel. Its capacity is the memory bound: at most
// Cap() frames are resident between capture and upload, whatever the network
// does. A receive on the empty channel is the consumer's "data available"
// wait; a send on the full channel is the producer's "space available"
// wait. Both wake the other side without an explicit signal.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"frame-relay/models"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained.
var ErrClosed = errors.New("frame queue closed")

// Result is the outcome of an enqueue attempt.
type Result int

const (
	Accepted Result = iota
	Rejected        // queue full
	Closed          // queue closed or caller cancelled
)

func (r Result) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time view of the queue counters.
type Stats struct {
	Capacity  int    `json:"capacity"`
	Length    int    `json:"length"`
	HighWater int    `json:"high_water"`
	Accepted  uint64 `json:"accepted"`
	Rejected  uint64 `json:"rejected"`
	Dequeued  uint64 `json:"dequeued"`
}

// FrameQueue is a bounded FIFO of immutable frames, safe for one producer
// and one consumer running concurrently.
type FrameQueue struct {
	frames    chan *models.Frame
	done      chan struct{}
	closeOnce sync.Once

	accepted  atomic.Uint64
	rejected  atomic.Uint64
	dequeued  atomic.Uint64
	highWater atomic.Int64
}

// New returns an empty queue holding at most capacity frames.
// A capacity below one is raised to one.
func New(capacity int) *FrameQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &FrameQueue{
		frames: make(chan *models.Frame, capacity),
		done:   make(chan struct{}),
	}
}

// TryEnqueue appends f if there is room and never blocks.
func (q *FrameQueue) TryEnqueue(f *models.Frame) Result {
	if q.isClosed() {
		return Closed
	}
	select {
	case q.frames <- f:
		q.noteAccepted()
		return Accepted
	default:
		q.rejected.Add(1)
		return Rejected
	}
}

// EnqueueWait appends f, waiting at most timeout for space. It returns
// Rejected when the wait times out and Closed when ctx ends or the queue
// is closed first. It never blocks past timeout.
func (q *FrameQueue) EnqueueWait(ctx context.Context, f *models.Frame, timeout time.Duration) Result {
	if q.isClosed() {
		return Closed
	}
	select {
	case q.frames <- f:
		q.noteAccepted()
		return Accepted
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case q.frames <- f:
		q.noteAccepted()
		return Accepted
	case <-timer.C:
		q.rejected.Add(1)
		return Rejected
	case <-ctx.Done():
		return Closed
	case <-q.done:
		return Closed
	}
}

// Dequeue removes and returns the head frame, blocking while the queue is
// empty. A cancelled ctx returns ctx.Err() and leaves queued frames in
// place. ErrClosed is returned once the queue has been closed and every
// remaining frame has been taken.
func (q *FrameQueue) Dequeue(ctx context.Context) (*models.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Prefer buffered frames over a pending close.
	if f, ok := q.TryDequeue(); ok {
		return f, nil
	}

	select {
	case f := <-q.frames:
		q.dequeued.Add(1)
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.done:
		if f, ok := q.TryDequeue(); ok {
			return f, nil
		}
		return nil, ErrClosed
	}
}

// TryDequeue removes the head frame if one is present.
func (q *FrameQueue) TryDequeue() (*models.Frame, bool) {
	select {
	case f := <-q.frames:
		q.dequeued.Add(1)
		return f, true
	default:
		return nil, false
	}
}

// Close stops further enqueues. Frames already queued can still be
// dequeued. Close is idempotent.
func (q *FrameQueue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

// Len is the number of frames currently resident.
func (q *FrameQueue) Len() int { return len(q.frames) }

// Cap is the configured capacity.
func (q *FrameQueue) Cap() int { return cap(q.frames) }

// Stats returns a snapshot of the counters.
func (q *FrameQueue) Stats() Stats {
	return Stats{
		Capacity:  q.Cap(),
		Length:    q.Len(),
		HighWater: int(q.highWater.Load()),
		Accepted:  q.accepted.Load(),
		Rejected:  q.rejected.Load(),
		Dequeued:  q.dequeued.Load(),
	}
}

func (q *FrameQueue) isClosed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

func (q *FrameQueue) noteAccepted() {
	q.accepted.Add(1)
	depth := int64(len(q.frames))
	for {
		cur := q.highWater.Load()
		if depth <= cur || q.highWater.CompareAndSwap(cur, depth) {
			return
		}
	}
}
