package upload

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"frame-relay/models"
	"frame-relay/services/queue"
	"frame-relay/utils"
)

// ErrAbandoned is returned by Deliver when a frame used up its attempts.
var ErrAbandoned = errors.New("frame abandoned after max attempts")

// UploadStats is a snapshot of the consumer counters.
type UploadStats struct {
	Uploaded   uint64 `json:"uploaded"`    // frames the server answered for
	Attempts   uint64 `json:"attempts"`    // POSTs issued, retries included
	Failures   uint64 `json:"failures"`    // transport-level failures
	Abandoned  uint64 `json:"abandoned"`   // frames dropped at max_attempts
	NonSuccess uint64 `json:"non_success"` // answered with a non-2xx status
	BytesSent  uint64 `json:"bytes_sent"`
}

// Uploader is the consumer: it takes frames off the queue one at a time
// and posts each until the server answers.
//
// A frame is encoded once. Every retry resends the same body after the
// backoff delay; the next frame is not dequeued until this one is done.
// Nothing here touches the queue while a request is in flight.
type Uploader struct {
	queue       *queue.FrameQueue
	encoder     *MultipartEncoder
	transport   Transport
	uri         string
	backoff     *Backoff
	maxAttempts int
	done        chan struct{}

	uploaded   uint64
	attempts   uint64
	failures   uint64
	abandoned  uint64
	nonSuccess uint64
	bytesSent  uint64
}

// NewUploader wires the queue to the transport using the upload config.
func NewUploader(cfg utils.RelayConfig, q *queue.FrameQueue, enc *MultipartEncoder, tr Transport) *Uploader {
	base := utils.MillisDuration(cfg.Upload.BackoffMs, 5*time.Second)
	maxDelay := utils.MillisDuration(cfg.Upload.MaxBackoffMs, base)
	return &Uploader{
		queue:       q,
		encoder:     enc,
		transport:   tr,
		uri:         cfg.UploadURI(),
		backoff:     NewBackoff(base, maxDelay),
		maxAttempts: cfg.Upload.MaxAttempts,
		done:        make(chan struct{}),
	}
}

// Start launches the upload goroutine; it runs until ctx is cancelled.
func (u *Uploader) Start(ctx context.Context) {
	go u.run(ctx)
	utils.L().Info("upload loop started    (uri=%s, backoff=%v, max_backoff=%v, max_attempts=%d)",
		u.uri, u.backoff.base, u.backoff.max, u.maxAttempts)
}

// Wait blocks until the upload goroutine has returned.
func (u *Uploader) Wait() {
	<-u.done
}

func (u *Uploader) run(ctx context.Context) {
	defer close(u.done)

	for {
		if u.queue.Len() == 0 {
			utils.L().Debug("waiting for frames")
		}
		f, err := u.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				utils.L().Info("queue closed and drained")
			}
			u.stopped(err)
			return
		}

		err = u.Deliver(ctx, f)
		switch {
		case err == nil, errors.Is(err, ErrAbandoned):
		case ctx.Err() != nil:
			utils.L().Info("frame %d not delivered, shutting down", f.Seq)
			u.stopped(ctx.Err())
			return
		default:
			utils.L().Info("frame %d not delivered: %v", f.Seq, err)
		}
	}
}

func (u *Uploader) stopped(reason error) {
	utils.L().Info("upload loop stopped    (%v; uploaded=%d, failures=%d, abandoned=%d, left in queue=%d)",
		reason, atomic.LoadUint64(&u.uploaded), atomic.LoadUint64(&u.failures),
		atomic.LoadUint64(&u.abandoned), u.queue.Len())
}

// Prepare encodes f into the request that every attempt will reuse.
func (u *Uploader) Prepare(f *models.Frame) (*models.UploadAttempt, error) {
	body, err := u.encoder.Encode(f.FileName(), f.Data)
	if err != nil {
		return nil, fmt.Errorf("encode frame %d: %w", f.Seq, err)
	}
	return &models.UploadAttempt{
		URI: u.uri,
		Headers: []models.Header{
			{Name: "Content-Type", Value: u.encoder.ContentType()},
			{Name: "X-Frame-Trace", Value: f.TraceID},
			{Name: "X-Frame-Seq", Value: strconv.FormatUint(f.Seq, 10)},
			{Name: "X-Frame-Hash", Value: f.HashHex()},
		},
		Body:    body,
		Seq:     f.Seq,
		TraceID: f.TraceID,
	}, nil
}

// Deliver posts f until the server answers, ctx ends, or (when
// max_attempts is set) the attempts run out. A request cut short by ctx
// is not counted as a transport failure.
func (u *Uploader) Deliver(ctx context.Context, f *models.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	att, err := u.Prepare(f)
	if err != nil {
		atomic.AddUint64(&u.abandoned, 1)
		utils.L().Error("dropping frame %d: %v", f.Seq, err)
		return err
	}

	for {
		if att.Attempts == 0 {
			att.Started = time.Now()
		}
		att.Attempts++
		atomic.AddUint64(&u.attempts, 1)

		resp, err := u.transport.Post(ctx, att.URI, att.Headers, att.Body)
		if err == nil {
			u.backoff.Reset()
			u.succeeded(att, resp)
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		atomic.AddUint64(&u.failures, 1)
		if u.maxAttempts > 0 && att.Attempts >= u.maxAttempts {
			atomic.AddUint64(&u.abandoned, 1)
			utils.L().Warn("dropping frame %d (trace=%s) after %d attempts over %v: %v",
				att.Seq, att.TraceID, att.Attempts, att.Age().Round(time.Millisecond), err)
			return fmt.Errorf("frame %d: %w", att.Seq, ErrAbandoned)
		}

		delay := u.backoff.Next()
		utils.L().Warn("unable to reach server (frame %d, attempt %d): %v; retrying in %v",
			att.Seq, att.Attempts, err, delay)
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
		utils.L().Info("trying to reach server again (frame %d)", att.Seq)
	}
}

func (u *Uploader) succeeded(att *models.UploadAttempt, resp *Response) {
	atomic.AddUint64(&u.uploaded, 1)
	atomic.AddUint64(&u.bytesSent, uint64(len(att.Body)))

	if !resp.OK() {
		atomic.AddUint64(&u.nonSuccess, 1)
		utils.L().Warn("POST %s %d : %q (frame %d, not retried)", att.URI, resp.StatusCode, resp.Body, att.Seq)
		return
	}
	utils.L().Info("frame %d sent successfully: POST %s %d : %q (attempts=%d, age=%v)",
		att.Seq, att.URI, resp.StatusCode, resp.Body, att.Attempts, att.Age().Round(time.Millisecond))
}

// Stats returns the consumer counters atomically.
func (u *Uploader) Stats() UploadStats {
	return UploadStats{
		Uploaded:   atomic.LoadUint64(&u.uploaded),
		Attempts:   atomic.LoadUint64(&u.attempts),
		Failures:   atomic.LoadUint64(&u.failures),
		Abandoned:  atomic.LoadUint64(&u.abandoned),
		NonSuccess: atomic.LoadUint64(&u.nonSuccess),
		BytesSent:  atomic.LoadUint64(&u.bytesSent),
	}
}
