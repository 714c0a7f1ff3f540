package models

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
)

// Frame holds one captured JPEG with its metadata.
// A Frame is never modified after NewFrame returns: the capture loop, the
// queue and the upload loop all share the same pointer.
type Frame struct {
	Seq         uint64 `json:"seq"`          // capture sequence, monotonic per process
	TraceID     string `json:"trace_id"`     // follows the frame into the sink's journal
	TimestampNs int64  `json:"timestamp_ns"` // capture time
	Hash        uint64 `json:"hash"`         // xxh3 of Data
	// Data is the JPEG as read from the sensor. NewFrame keeps the caller's
	// slice without copying, so neither side may modify it afterwards.
	Data        []byte `json:"-"`
}

// NewFrame stamps raw sensor bytes with a sequence number, trace id,
// capture time and content hash.
func NewFrame(seq uint64, data []byte) *Frame {
	return &Frame{
		Seq:         seq,
		TraceID:     uuid.NewString(),
		TimestampNs: time.Now().UnixNano(),
		Hash:        xxh3.Hash(data),
		Data:        data,
	}
}

// SizeBytes is the payload length.
func (f *Frame) SizeBytes() int { return len(f.Data) }

// HashHex renders Hash the way it travels in the X-Frame-Hash header.
func (f *Frame) HashHex() string { return FormatHash(f.Hash) }

// FileName is the multipart filename used for this frame.
func (f *Frame) FileName() string {
	return fmt.Sprintf("frame_%06d.jpg", f.Seq)
}

// FormatHash renders an xxh3 sum as fixed-width lowercase hex.
func FormatHash(h uint64) string {
	return fmt.Sprintf("%016x", h)
}

// ParseHash reads a FormatHash string back.
func ParseHash(s string) (uint64, error) {
	return strconv.ParseUint(s, 16, 64)
}
