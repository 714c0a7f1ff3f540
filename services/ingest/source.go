package ingest

import (
	"fmt"

	"frame-relay/utils"
)

// FrameSource is the camera driver boundary. GetFrame returns the next
// captured JPEG, or false when the sensor had nothing ready. It is paced
// by the hardware: a call may wait up to one frame period.
type FrameSource interface {
	GetFrame() ([]byte, bool)
}

// SourceFunc adapts a plain function to FrameSource.
type SourceFunc func() ([]byte, bool)

// GetFrame calls f.
func (f SourceFunc) GetFrame() ([]byte, bool) { return f() }

// NewSource picks the frame source named by cfg.Source.
func NewSource(cfg utils.CameraConfig) (FrameSource, error) {
	switch cfg.Source {
	case utils.SourceSim, "":
		return NewSimSource(cfg), nil
	case utils.SourceDir:
		src, err := NewDirSource(cfg)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unknown camera source %q", cfg.Source)
	}
}
