package views

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return recs
}

func TestCSVWriterConcurrentRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipts.csv")
	w, err := NewCSVWriter(path, 128, true, []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				w.WriteRow([]string{"x", "y,z"})
			}
		}()
	}
	wg.Wait()

	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if w.Rows() != 400 {
		t.Errorf("rows = %d, want 400", w.Rows())
	}

	recs := readAll(t, path)
	if len(recs) != 401 || recs[0][0] != "a" || recs[1][1] != "y,z" {
		t.Errorf("file has %d records, first %v", len(recs), recs[0])
	}
}

func TestCSVWriterReopenKeepsOneHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipts.csv")
	for i := 0; i < 2; i++ {
		w, err := NewCSVWriter(path, 0, true, []string{"h"})
		if err != nil {
			t.Fatal(err)
		}
		w.WriteRow([]string{"r"})
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
	}

	recs := readAll(t, path)
	if len(recs) != 3 || recs[0][0] != "h" || recs[2][0] != "r" {
		t.Errorf("records = %v", recs)
	}
}

func TestCSVWriterFlushMakesRowsVisible(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipts.csv")
	w, err := NewCSVWriter(path, 1<<16, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	w.WriteRow([]string{"1"})
	if recs := readAll(t, path); len(recs) != 0 {
		t.Fatalf("row visible before flush: %v", recs)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	if recs := readAll(t, path); len(recs) != 1 {
		t.Errorf("after flush: %v", recs)
	}
}

func TestCSVWriterKeepsFirstError(t *testing.T) {
	w, err := NewCSVWriter(filepath.Join(t.TempDir(), "receipts.csv"), 0, true, []string{"seq"})
	if err != nil {
		t.Fatal(err)
	}
	if w.Err() != nil {
		t.Fatalf("fresh journal reports %v", w.Err())
	}

	w.file.Close()
	w.WriteRow([]string{"1"})
	if err := w.Flush(); err == nil {
		t.Fatal("flush to a closed file should fail")
	}
	first := w.Err()
	if first == nil {
		t.Fatal("Err() lost the flush error")
	}
	w.WriteRow([]string{"2"})
	w.Flush()
	if w.Err() != first {
		t.Errorf("Err() = %v, want the first error %v", w.Err(), first)
	}
}
