package models

import "strconv"

func itoa(v int) string     { return strconv.Itoa(v) }
func itoa64(v int64) string { return strconv.FormatInt(v, 10) }

// CSVRowWriter is implemented by records that go into a CSV journal.
type CSVRowWriter interface {
	CSVHeader() []string
	CSVRow() []string
}

var _ CSVRowWriter = (*FrameReceipt)(nil)
