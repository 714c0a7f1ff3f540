package utils

import (
	"fmt"
	"time"
)

// NowNano returns the current time as nanoseconds since Unix epoch.
// Wall-clock nanos keep frame timestamps comparable between the device
// and the sink.
func NowNano() int64 {
	return time.Now().UnixNano()
}

// SessionName returns a unique session directory name:
//
//	<prefix>_YYYYMMDD_HHMMSS
func SessionName(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, time.Now().Format("20060102_150405"))
}

// MillisDuration converts a millisecond config value, falling back to def
// when ms is not positive.
func MillisDuration(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
