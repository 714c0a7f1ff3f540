package telemetry

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"frame-relay/services/ingest"
	"frame-relay/services/queue"
	"frame-relay/services/upload"
	"frame-relay/utils"
)

// Status is one snapshot of the relay, published as JSON.
type Status struct {
	DeviceID      string              `json:"device_id"`
	TimestampNs   int64               `json:"timestamp_ns"`
	UptimeSeconds float64             `json:"uptime_s"`
	Queue         queue.Stats         `json:"queue"`
	Capture       ingest.CaptureStats `json:"capture"`
	Upload        upload.UploadStats  `json:"upload"`
}

// Topic is where a device's status snapshots go.
func Topic(prefix, deviceID string) string {
	return prefix + "/" + deviceID + "/status"
}

// Reporter publishes a Status every interval until its context ends.
// Failed publishes are logged and counted; they never stop the relay.
type Reporter struct {
	pub      Publisher
	topic    string
	interval time.Duration
	snapshot func() Status
	done     chan struct{}

	published uint64
	errors    uint64
}

// NewReporter builds a reporter for cfg.Telemetry. snapshot is called
// from the reporter goroutine and must only read atomic state.
func NewReporter(cfg utils.RelayConfig, pub Publisher, snapshot func() Status) *Reporter {
	return &Reporter{
		pub:      pub,
		topic:    Topic(cfg.Telemetry.TopicPrefix, cfg.Device.ID),
		interval: utils.MillisDuration(cfg.Telemetry.IntervalMs, 10*time.Second),
		snapshot: snapshot,
		done:     make(chan struct{}),
	}
}

// Start launches the publish goroutine.
func (r *Reporter) Start(ctx context.Context) {
	go r.run(ctx)
	utils.L().Info("telemetry started       (topic=%s, interval=%v)", r.topic, r.interval)
}

// Wait blocks until the publish goroutine has returned.
func (r *Reporter) Wait() {
	<-r.done
}

func (r *Reporter) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.PublishOnce()
		}
	}
}

// PublishOnce sends the current snapshot.
func (r *Reporter) PublishOnce() {
	payload, err := json.Marshal(r.snapshot())
	if err == nil {
		err = r.pub.Publish(r.topic, 0, payload)
	}
	if err != nil {
		atomic.AddUint64(&r.errors, 1)
		utils.L().Warn("telemetry: %v", err)
		return
	}
	atomic.AddUint64(&r.published, 1)
	utils.L().Debug("telemetry published to %s (%d bytes)", r.topic, len(payload))
}

// Stats returns published and failed publish counts.
func (r *Reporter) Stats() (published, failed uint64) {
	return atomic.LoadUint64(&r.published), atomic.LoadUint64(&r.errors)
}
