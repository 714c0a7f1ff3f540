package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"frame-relay/services/ingest"
	"frame-relay/services/queue"
	"frame-relay/services/telemetry"
	"frame-relay/services/upload"
	"frame-relay/utils"
)

// RelayController owns the device pipeline: the bounded queue, the capture
// loop feeding it, the upload loop draining it and, when enabled, the
// telemetry reporter. The two loops share nothing but the queue.
type RelayController struct {
	cfg      utils.RelayConfig
	queue    *queue.FrameQueue
	capture  *ingest.CaptureLoop
	uploader *upload.Uploader
	reporter *telemetry.Reporter
	started  time.Time
}

// NewRelayController assembles the pipeline. pub may be nil, in which case
// no telemetry is published.
func NewRelayController(cfg utils.RelayConfig, src ingest.FrameSource, tr upload.Transport, pub telemetry.Publisher) (*RelayController, error) {
	enc, err := upload.NewMultipartEncoder(cfg.Upload.Boundary, cfg.Upload.Field, cfg.Upload.Mime)
	if err != nil {
		return nil, fmt.Errorf("multipart encoder: %w", err)
	}

	q := queue.New(cfg.Queue.Capacity)
	rc := &RelayController{
		cfg:      cfg,
		queue:    q,
		capture:  ingest.NewCaptureLoop(cfg, src, q),
		uploader: upload.NewUploader(cfg, q, enc, tr),
	}
	if pub != nil {
		rc.reporter = telemetry.NewReporter(cfg, pub, rc.Status)
	}
	return rc, nil
}

// Start launches the upload loop, then the capture loop, then telemetry.
func (rc *RelayController) Start(ctx context.Context) {
	rc.started = time.Now()
	rc.uploader.Start(ctx)
	rc.capture.Start(ctx)
	if rc.reporter != nil {
		rc.reporter.Start(ctx)
	}
	utils.L().Info("relay controller: pipeline launched (device=%s)", rc.cfg.Device.ID)
}

// Wait blocks until every goroutine started by Start has returned. Cancel
// the context passed to Start first. The queue is closed once capture has
// stopped, so nothing can be added after shutdown.
func (rc *RelayController) Wait() {
	rc.capture.Wait()
	rc.queue.Close()
	rc.uploader.Wait()
	if rc.reporter != nil {
		rc.reporter.Wait()
	}
}

// Status is a snapshot of every counter in the pipeline.
func (rc *RelayController) Status() telemetry.Status {
	return telemetry.Status{
		DeviceID:      rc.cfg.Device.ID,
		TimestampNs:   utils.NowNano(),
		UptimeSeconds: time.Since(rc.started).Seconds(),
		Queue:         rc.queue.Stats(),
		Capture:       rc.capture.Stats(),
		Upload:        rc.uploader.Stats(),
	}
}

// LogStats prints the pipeline counters.
func (rc *RelayController) LogStats() {
	s := rc.Status()
	utils.L().Info("  queue    depth=%d/%d  high_water=%d  rejected=%s",
		s.Queue.Length, s.Queue.Capacity, s.Queue.HighWater, humanize.Comma(int64(s.Queue.Rejected)))
	utils.L().Info("  capture  captured=%s  enqueued=%s  empty=%s  backpressure=%s  resampled=%s",
		humanize.Comma(int64(s.Capture.Captured)), humanize.Comma(int64(s.Capture.Enqueued)),
		humanize.Comma(int64(s.Capture.Empty)), humanize.Comma(int64(s.Capture.Backpressure)),
		humanize.Comma(int64(s.Capture.Resampled)))
	utils.L().Info("  upload   uploaded=%s  sent=%s  attempts=%s  failures=%s  abandoned=%d  non_2xx=%d",
		humanize.Comma(int64(s.Upload.Uploaded)), humanize.Bytes(s.Upload.BytesSent),
		humanize.Comma(int64(s.Upload.Attempts)), humanize.Comma(int64(s.Upload.Failures)),
		s.Upload.Abandoned, s.Upload.NonSuccess)
	if rc.reporter != nil {
		ok, failed := rc.reporter.Stats()
		utils.L().Info("  telemetry published=%d  failed=%d", ok, failed)
	}
}
