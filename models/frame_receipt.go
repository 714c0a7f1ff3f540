package models

// Hash check outcomes recorded in a receipt.
const (
	HashOK       = "ok"
	HashMismatch = "mismatch"
	HashAbsent   = "absent"
)

// FrameReceipt is the sink's record of one stored upload.
// The JPEG bytes are on disk at FilePath; the journal keeps metadata only.
type FrameReceipt struct {
	ReceivedNs int64  `json:"received_ns"`
	TraceID    string `json:"trace_id"`
	DeviceSeq  string `json:"device_seq"` // as sent by the device, may be empty
	RemoteAddr string `json:"remote_addr"`
	FilePath   string `json:"file_path"` // relative to the session dir
	SizeBytes  int    `json:"size_bytes"`
	Hash       string `json:"hash"`
	HashCheck  string `json:"hash_check"`
}

// CSVHeader returns the ordered column names for the receipts journal.
func (FrameReceipt) CSVHeader() []string {
	return []string{
		"received_ns", "trace_id", "device_seq", "remote_addr",
		"file_path", "size_bytes", "hash", "hash_check",
	}
}

// CSVRow serialises one receipt into a CSV-compatible string slice.
func (r *FrameReceipt) CSVRow() []string {
	return []string{
		itoa64(r.ReceivedNs),
		r.TraceID,
		r.DeviceSeq,
		r.RemoteAddr,
		r.FilePath,
		itoa(r.SizeBytes),
		r.Hash,
		r.HashCheck,
	}
}
