package utils

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validRelayYAML = `
device:
  id: porch-cam
  wifi_ssid: home
  wifi_psk: s3cret
server:
  base_url: http://10.0.0.2:8080
`

func TestParseRelayConfigAppliesDefaults(t *testing.T) {
	cfg, err := ParseRelayConfig([]byte(validRelayYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Queue.Capacity != 5 {
		t.Errorf("capacity = %d, want 5", cfg.Queue.Capacity)
	}
	if cfg.Queue.Backpressure != BackpressureWait {
		t.Errorf("backpressure = %q, want %q", cfg.Queue.Backpressure, BackpressureWait)
	}
	if cfg.Upload.BackoffMs != 5000 {
		t.Errorf("backoff = %d, want 5000", cfg.Upload.BackoffMs)
	}
	if cfg.Device.FlashBrightness != 32 {
		t.Errorf("flash brightness = %d, want 32", cfg.Device.FlashBrightness)
	}
	if got := cfg.UploadURI(); got != "http://10.0.0.2:8080/post" {
		t.Errorf("upload uri = %q", got)
	}
	if got := cfg.CaptureInterval(); got != 100*time.Millisecond {
		t.Errorf("capture interval = %v, want 100ms", got)
	}
}

func TestParseRelayConfigRejects(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "default credentials",
			yaml:    "server:\n  base_url: http://x:1\n",
			wantErr: ErrDefaultCredentials.Error(),
		},
		{
			name:    "relative url",
			yaml:    "device: {wifi_ssid: a, wifi_psk: b}\nserver: {base_url: /upload}\n",
			wantErr: "absolute http(s) URL",
		},
		{
			name:    "zero capacity",
			yaml:    validRelayYAML + "queue: {capacity: 0}\n",
			wantErr: "capacity",
		},
		{
			name:    "unknown policy",
			yaml:    validRelayYAML + "queue: {backpressure: drop-oldest}\n",
			wantErr: "backpressure",
		},
		{
			name:    "brightness out of range",
			yaml:    "device: {wifi_ssid: a, wifi_psk: b, flash_brightness: 300}\nserver: {base_url: http://x:1}\n",
			wantErr: "flash_brightness",
		},
		{
			name:    "dir source without dir",
			yaml:    validRelayYAML + "camera: {source: dir}\n",
			wantErr: "camera.dir",
		},
		{
			name:    "telemetry without broker",
			yaml:    validRelayYAML + "telemetry: {enabled: true}\n",
			wantErr: "broker",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRelayConfig([]byte(tt.yaml))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultCredentialsIsSentinel(t *testing.T) {
	_, err := ParseRelayConfig([]byte("server: {base_url: http://x:1}\n"))
	if !errors.Is(err, ErrDefaultCredentials) {
		t.Fatalf("err = %v, want ErrDefaultCredentials", err)
	}
}

func TestLoadSinkConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sink.yaml")
	data := "sink:\n  listen: \":9090\"\n  csv:\n    flush_interval_ms: 50\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadSinkConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Sink.Listen != ":9090" {
		t.Errorf("listen = %q", cfg.Sink.Listen)
	}
	if cfg.Sink.MaxUploadMB != 10 {
		t.Errorf("max upload = %d, want default 10", cfg.Sink.MaxUploadMB)
	}
	if cfg.Sink.CSV.FlushIntervalMs != 50 {
		t.Errorf("flush interval = %d", cfg.Sink.CSV.FlushIntervalMs)
	}
}

func TestLoadRelayConfigMissingFile(t *testing.T) {
	if _, err := LoadRelayConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
