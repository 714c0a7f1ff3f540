package models

import "time"

// Header is one request header, kept ordered so the wire request is
// reproducible across retries.
type Header struct {
	Name  string
	Value string
}

// UploadAttempt is the transient state of delivering one frame: the
// encoded request plus how many times it has been submitted. It is built
// once per frame and reused verbatim for every retry.
type UploadAttempt struct {
	URI      string
	Headers  []Header
	Body     []byte
	Seq      uint64
	TraceID  string
	Attempts int
	Started  time.Time
}

// Age is how long this frame has been in flight since its first submit.
func (a *UploadAttempt) Age() time.Duration {
	if a.Started.IsZero() {
		return 0
	}
	return time.Since(a.Started)
}
