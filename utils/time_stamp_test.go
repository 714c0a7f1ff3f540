package utils

import (
	"strings"
	"testing"
	"time"
)

func TestMillisDuration(t *testing.T) {
	if got := MillisDuration(250, time.Second); got != 250*time.Millisecond {
		t.Errorf("250 ms gave %v", got)
	}
	for _, ms := range []int{0, -5} {
		if got := MillisDuration(ms, time.Second); got != time.Second {
			t.Errorf("%d ms gave %v, want the default", ms, got)
		}
	}
}

func TestSessionName(t *testing.T) {
	name := SessionName("frames")
	if !strings.HasPrefix(name, "frames_") || len(name) != len("frames_20060102_150405") {
		t.Errorf("session name %q", name)
	}
}
