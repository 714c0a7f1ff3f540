package ingest

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"frame-relay/models"
	"frame-relay/services/queue"
	"frame-relay/utils"
)

// CaptureStats is a snapshot of the producer counters.
type CaptureStats struct {
	Captured     uint64 `json:"captured"`
	Empty        uint64 `json:"empty_reads"`
	Enqueued     uint64 `json:"enqueued"`
	Backpressure uint64 `json:"backpressure"` // captures that found the queue full
	Resampled    uint64 `json:"resampled"`    // full-queue frames replaced by a newer capture
}

// CaptureLoop is the producer: it pulls frames from the camera at device
// cadence and pushes them into the bounded queue.
//
// When the queue is full the configured policy decides what happens to the
// captured frame:
//   - wait: hold the same frame and wait for space, one capture interval at
//     a time, until it is queued or the loop is stopped.
//   - resample: let the frame go and capture a fresh one; under sustained
//     overload newer frames win.
type CaptureLoop struct {
	source   FrameSource
	queue    *queue.FrameQueue
	policy   string
	interval time.Duration
	seq      uint64
	done     chan struct{}

	captured     uint64
	empty        uint64
	enqueued     uint64
	backpressure uint64
	resampled    uint64
}

// NewCaptureLoop wires a frame source to the queue.
func NewCaptureLoop(cfg utils.RelayConfig, src FrameSource, q *queue.FrameQueue) *CaptureLoop {
	policy := cfg.Queue.Backpressure
	if policy == "" {
		policy = utils.BackpressureWait
	}
	return &CaptureLoop{
		source:   src,
		queue:    q,
		policy:   policy,
		interval: cfg.CaptureInterval(),
		done:     make(chan struct{}),
	}
}

// Start launches the capture goroutine; it runs until ctx is cancelled.
func (c *CaptureLoop) Start(ctx context.Context) {
	go c.run(ctx)
	utils.L().Info("capture loop started   (interval=%v, capacity=%d, backpressure=%s)",
		c.interval, c.queue.Cap(), c.policy)
}

// Wait blocks until the capture goroutine has returned.
func (c *CaptureLoop) Wait() {
	<-c.done
}

func (c *CaptureLoop) run(ctx context.Context) {
	defer close(c.done)

	for {
		if ctx.Err() != nil {
			utils.L().Info("capture loop stopped   (captured=%d, enqueued=%d, empty=%d, resampled=%d)",
				atomic.LoadUint64(&c.captured), atomic.LoadUint64(&c.enqueued),
				atomic.LoadUint64(&c.empty), atomic.LoadUint64(&c.resampled))
			return
		}

		data, ok := c.source.GetFrame()
		if !ok {
			// Sensor not ready: not an error, just read again.
			atomic.AddUint64(&c.empty, 1)
			utils.L().Debug("camera: unable to get frame")
			continue
		}

		c.seq++
		atomic.AddUint64(&c.captured, 1)
		c.offer(ctx, models.NewFrame(c.seq, data))
	}
}

// offer pushes one frame, applying the backpressure policy when full.
func (c *CaptureLoop) offer(ctx context.Context, f *models.Frame) {
	switch c.queue.TryEnqueue(f) {
	case queue.Accepted:
		c.accepted(f)
		return
	case queue.Closed:
		return
	}

	atomic.AddUint64(&c.backpressure, 1)
	utils.L().Warn("queue full (%d/%d), frame %d under %s backpressure",
		c.queue.Len(), c.queue.Cap(), f.Seq, c.policy)

	if c.policy == utils.BackpressureResample {
		atomic.AddUint64(&c.resampled, 1)
		runtime.Gosched()
		return
	}

	for {
		switch c.queue.EnqueueWait(ctx, f, c.interval) {
		case queue.Accepted:
			c.accepted(f)
			return
		case queue.Closed:
			utils.L().Info("capture loop: frame %d not queued, shutting down", f.Seq)
			return
		}
		utils.L().Debug("queue still full after %v, holding frame %d", c.interval, f.Seq)
	}
}

func (c *CaptureLoop) accepted(f *models.Frame) {
	atomic.AddUint64(&c.enqueued, 1)
	utils.L().Debug("frame %d added to queue (size=%d, depth=%d/%d)",
		f.Seq, f.SizeBytes(), c.queue.Len(), c.queue.Cap())
}

// Stats returns the producer counters atomically.
func (c *CaptureLoop) Stats() CaptureStats {
	return CaptureStats{
		Captured:     atomic.LoadUint64(&c.captured),
		Empty:        atomic.LoadUint64(&c.empty),
		Enqueued:     atomic.LoadUint64(&c.enqueued),
		Backpressure: atomic.LoadUint64(&c.backpressure),
		Resampled:    atomic.LoadUint64(&c.resampled),
	}
}
