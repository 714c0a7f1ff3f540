package utils

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Placeholder credentials shipped in the example config. A device
// still carrying them has not been provisioned.
const (
	DefaultWifiSSID = "WifiName"
	DefaultWifiPSK  = "WifiPassword"
)

// Backpressure policies for a full frame queue.
const (
	BackpressureWait     = "wait"
	BackpressureResample = "resample"
)

// Frame sources.
const (
	SourceSim = "sim"
	SourceDir = "dir"
)

// ErrDefaultCredentials is returned when the Wi-Fi credentials were left
// at their placeholder values.
var ErrDefaultCredentials = errors.New("wifi credentials are still the defaults")

// ─── Relay (device) configs ─────────────────────────────────────────────

type DeviceConfig struct {
	ID              string `yaml:"id"`
	WifiSSID        string `yaml:"wifi_ssid"`
	WifiPSK         string `yaml:"wifi_psk"`
	UseFlash        bool   `yaml:"use_flash"`
	FlashBrightness int    `yaml:"flash_brightness"`
}

type ServerConfig struct {
	BaseURL string `yaml:"base_url"`
}

type CameraConfig struct {
	Source     string  `yaml:"source"` // "sim" or "dir"
	FPS        int     `yaml:"fps"`
	Dir        string  `yaml:"dir"`
	Pattern    string  `yaml:"pattern"`
	EmptyRatio float64 `yaml:"empty_ratio"` // sim only: share of reads that find no frame
	FrameKB    int     `yaml:"frame_kb"`    // sim only: mean synthetic frame size
}

type QueueConfig struct {
	Capacity     int    `yaml:"capacity"`
	Backpressure string `yaml:"backpressure"`
}

type UploadConfig struct {
	Field            string `yaml:"field"`
	Mime             string `yaml:"mime"`
	Boundary         string `yaml:"boundary"`
	BackoffMs        int    `yaml:"backoff_ms"`
	MaxBackoffMs     int    `yaml:"max_backoff_ms"`
	MaxAttempts      int    `yaml:"max_attempts"` // 0 retries forever
	RequestTimeoutMs int    `yaml:"request_timeout_ms"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
	IntervalMs  int    `yaml:"interval_ms"`
}

type RunConfig struct {
	DurationSeconds int `yaml:"duration_seconds"`
	StatsIntervalMs int `yaml:"stats_interval_ms"`
}

// RelayConfig is the top-level structure for relay.yaml. It is loaded
// once at startup and passed by value into every component.
type RelayConfig struct {
	Device    DeviceConfig    `yaml:"device"`
	Server    ServerConfig    `yaml:"server"`
	Camera    CameraConfig    `yaml:"camera"`
	Queue     QueueConfig     `yaml:"queue"`
	Upload    UploadConfig    `yaml:"upload"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Run       RunConfig       `yaml:"run"`
}

// DefaultRelayConfig holds the board firmware defaults.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		Device: DeviceConfig{
			ID:              "esp32cam",
			WifiSSID:        DefaultWifiSSID,
			WifiPSK:         DefaultWifiPSK,
			FlashBrightness: 32,
		},
		Camera: CameraConfig{
			Source:  SourceSim,
			FPS:     10,
			Pattern: "*.jpg",
			FrameKB: 24,
		},
		Queue: QueueConfig{
			Capacity:     5,
			Backpressure: BackpressureWait,
		},
		Upload: UploadConfig{
			Field:            "file",
			Mime:             "image/jpeg",
			Boundary:         "----WebKitFormBoundary7MA4YWxkTrZu0gW",
			BackoffMs:        5000,
			RequestTimeoutMs: 10000,
		},
		Telemetry: TelemetryConfig{
			TopicPrefix: "frame-relay",
			IntervalMs:  10000,
		},
		Run: RunConfig{
			StatsIntervalMs: 5000,
		},
	}
}

// Validate fails fast on anything the device cannot run with.
func (c *RelayConfig) Validate() error {
	if c.Device.WifiSSID == "" || c.Device.WifiPSK == "" ||
		c.Device.WifiSSID == DefaultWifiSSID || c.Device.WifiPSK == DefaultWifiPSK {
		return ErrDefaultCredentials
	}
	if c.Device.FlashBrightness < 0 || c.Device.FlashBrightness > 255 {
		return fmt.Errorf("flash_brightness %d out of range 0-255", c.Device.FlashBrightness)
	}
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server base_url %q must be an absolute http(s) URL", c.Server.BaseURL)
	}
	switch c.Camera.Source {
	case SourceSim:
	case SourceDir:
		if c.Camera.Dir == "" {
			return fmt.Errorf("camera source %q needs camera.dir", SourceDir)
		}
	default:
		return fmt.Errorf("unknown camera source %q", c.Camera.Source)
	}
	if c.Camera.FPS <= 0 {
		return fmt.Errorf("camera fps must be positive, got %d", c.Camera.FPS)
	}
	if c.Camera.EmptyRatio < 0 || c.Camera.EmptyRatio >= 1 {
		return fmt.Errorf("camera empty_ratio %.2f out of range [0,1)", c.Camera.EmptyRatio)
	}
	if c.Queue.Capacity < 1 {
		return fmt.Errorf("queue capacity must be at least 1, got %d", c.Queue.Capacity)
	}
	if c.Queue.Backpressure != BackpressureWait && c.Queue.Backpressure != BackpressureResample {
		return fmt.Errorf("unknown backpressure policy %q", c.Queue.Backpressure)
	}
	if c.Upload.Field == "" || c.Upload.Boundary == "" {
		return fmt.Errorf("upload field and boundary must be set")
	}
	if c.Upload.MaxAttempts < 0 {
		return fmt.Errorf("upload max_attempts must not be negative")
	}
	if c.Telemetry.Enabled && c.Telemetry.Broker == "" {
		return fmt.Errorf("telemetry enabled without a broker")
	}
	return nil
}

// UploadURI is the endpoint every frame is posted to.
func (c *RelayConfig) UploadURI() string {
	return strings.TrimRight(c.Server.BaseURL, "/") + "/post"
}

// CaptureInterval is one frame period at the configured FPS.
func (c *RelayConfig) CaptureInterval() time.Duration {
	if c.Camera.FPS <= 0 {
		return 100 * time.Millisecond
	}
	return time.Second / time.Duration(c.Camera.FPS)
}

// ─── Sink (server) configs ──────────────────────────────────────────────

type CSVStorageConfig struct {
	FlushIntervalMs int  `yaml:"flush_interval_ms"`
	BufferSizeKB    int  `yaml:"buffer_size_kb"`
	WriteHeader     bool `yaml:"write_header"`
}

type SinkConfig struct {
	Sink struct {
		Listen        string           `yaml:"listen"`
		BaseDir       string           `yaml:"base_dir"`
		SessionPrefix string           `yaml:"session_prefix"`
		MaxUploadMB   int              `yaml:"max_upload_mb"`
		CSV           CSVStorageConfig `yaml:"csv"`
	} `yaml:"sink"`
}

// DefaultSinkConfig listens on :8080 and accepts uploads up to 10 MB.
func DefaultSinkConfig() SinkConfig {
	var c SinkConfig
	c.Sink.Listen = ":8080"
	c.Sink.BaseDir = "./sessions"
	c.Sink.SessionPrefix = "frames"
	c.Sink.MaxUploadMB = 10
	c.Sink.CSV = CSVStorageConfig{FlushIntervalMs: 500, BufferSizeKB: 64, WriteHeader: true}
	return c
}

// ─── Loaders ────────────────────────────────────────────────────────────

// LoadRelayConfig reads relay.yaml over the defaults and validates it.
func LoadRelayConfig(path string) (*RelayConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read relay config: %w", err)
	}
	return ParseRelayConfig(data)
}

// ParseRelayConfig decodes relay YAML over DefaultRelayConfig and
// validates the result.
func ParseRelayConfig(data []byte) (*RelayConfig, error) {
	cfg := DefaultRelayConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse relay config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate relay config: %w", err)
	}
	return &cfg, nil
}

// LoadSinkConfig reads and parses sink.yaml over the defaults.
func LoadSinkConfig(path string) (*SinkConfig, error) {
	cfg := DefaultSinkConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sink config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse sink config: %w", err)
	}
	if cfg.Sink.MaxUploadMB <= 0 {
		return nil, fmt.Errorf("sink max_upload_mb must be positive")
	}
	return &cfg, nil
}
