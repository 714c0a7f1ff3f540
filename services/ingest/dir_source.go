package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"frame-relay/utils"
)

// DirSource replays JPEG files from a directory in name order at a fixed
// FPS, looping forever. Useful for feeding real images through the relay.
type DirSource struct {
	paths    []string
	idx      int
	interval time.Duration
	next     time.Time
}

// NewDirSource lists cfg.Dir/cfg.Pattern. An empty match is a startup
// error: the device would have nothing to send.
func NewDirSource(cfg utils.CameraConfig) (*DirSource, error) {
	pattern := cfg.Pattern
	if pattern == "" {
		pattern = "*.jpg"
	}
	paths, err := filepath.Glob(filepath.Join(cfg.Dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("glob frames: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no frames matching %s in %s", pattern, cfg.Dir)
	}
	sort.Strings(paths)

	fps := cfg.FPS
	if fps <= 0 {
		fps = 10
	}
	return &DirSource{
		paths:    paths,
		interval: time.Second / time.Duration(fps),
	}, nil
}

// Len is the number of files in one replay loop.
func (d *DirSource) Len() int { return len(d.paths) }

// GetFrame returns the next file's bytes. A file that cannot be read is
// an empty read, not a failure; the next call moves on.
func (d *DirSource) GetFrame() ([]byte, bool) {
	now := time.Now()
	if d.next.After(now) {
		time.Sleep(d.next.Sub(now))
		now = d.next
	}
	d.next = now.Add(d.interval)

	path := d.paths[d.idx]
	d.idx = (d.idx + 1) % len(d.paths)

	data, err := os.ReadFile(path)
	if err != nil {
		utils.L().Warn("camera: read %s: %v", path, err)
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}
	return data, true
}
