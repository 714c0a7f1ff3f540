package ingest

import (
	"math/rand"
	"time"

	"frame-relay/utils"
)

// SimSource synthesises JPEG-shaped frames at a fixed cadence. It stands
// in for the camera when running on a host.
type SimSource struct {
	interval   time.Duration
	meanSize   int
	emptyRatio float64
	rng        *rand.Rand
	next       time.Time
}

// NewSimSource builds a simulated camera from the camera config.
func NewSimSource(cfg utils.CameraConfig) *SimSource {
	fps := cfg.FPS
	if fps <= 0 {
		fps = 10
	}
	size := cfg.FrameKB * 1024
	if size <= 0 {
		size = 24 * 1024
	}
	return &SimSource{
		interval:   time.Second / time.Duration(fps),
		meanSize:   size,
		emptyRatio: cfg.EmptyRatio,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GetFrame waits for the next frame slot, then either reports an empty
// read (with probability emptyRatio) or returns a fresh buffer.
func (s *SimSource) GetFrame() ([]byte, bool) {
	now := time.Now()
	if s.next.After(now) {
		time.Sleep(s.next.Sub(now))
		now = s.next
	}
	s.next = now.Add(s.interval)

	if s.emptyRatio > 0 && s.rng.Float64() < s.emptyRatio {
		return nil, false
	}

	// 75%-125% of the mean size, like a real JPEG stream.
	sz := s.meanSize*3/4 + s.rng.Intn(s.meanSize/2+1)
	if sz < 4 {
		sz = 4
	}
	jpeg := make([]byte, sz)
	s.rng.Read(jpeg)
	// SOI and EOI markers so the bytes at least look like a JPEG.
	jpeg[0], jpeg[1] = 0xFF, 0xD8
	jpeg[sz-2], jpeg[sz-1] = 0xFF, 0xD9
	return jpeg, true
}
