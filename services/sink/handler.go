// Package sink is the receiving side of the relay: it accepts multipart
// frame uploads, stores them and previews them live to websocket viewers.
package sink

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/zeebo/xxh3"

	"frame-relay/models"
	"frame-relay/utils"
)

// FormField is the multipart field carrying the JPEG.
const FormField = "file"

// Journal records one row per stored frame.
type Journal interface {
	WriteRow(row []string)
}

// Stats counts requests on the upload endpoint.
type Stats struct {
	Stored     uint64 `json:"stored"`
	Rejected   uint64 `json:"rejected"`
	BytesSaved uint64 `json:"bytes_saved"`
}

// Handler serves the sink's HTTP endpoints.
type Handler struct {
	sessionDir string
	framesRel  string
	maxBytes   int64
	journal    Journal
	hub        *Hub

	stored     uint64
	rejected   uint64
	bytesSaved uint64
}

// NewHandler stores frames under sessionDir/frames. The directory is
// created if missing.
func NewHandler(sessionDir string, maxUploadMB int, journal Journal, hub *Hub) (*Handler, error) {
	if maxUploadMB <= 0 {
		maxUploadMB = 10
	}
	h := &Handler{
		sessionDir: sessionDir,
		framesRel:  "frames",
		maxBytes:   int64(maxUploadMB) << 20,
		journal:    journal,
		hub:        hub,
	}
	if err := os.MkdirAll(filepath.Join(sessionDir, h.framesRel), 0755); err != nil {
		return nil, fmt.Errorf("create frames dir: %w", err)
	}
	return h, nil
}

// Routes returns the sink's mux wrapped in the CORS middleware.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/post", h.handlePost)
	mux.Handle("/stream", h.hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	return cors(mux)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Frame-Trace, X-Frame-Seq, X-Frame-Hash")
		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.reject(w, r, http.StatusMethodNotAllowed, "method not allowed",
			fmt.Errorf("%s %s", r.Method, r.URL.Path))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		status := http.StatusBadRequest
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			status = http.StatusRequestEntityTooLarge
		}
		h.reject(w, r, status, "could not parse form-data", err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile(FormField)
	if err != nil {
		h.reject(w, r, http.StatusBadRequest, "missing "+FormField+" part", err)
		return
	}
	data, err := io.ReadAll(file)
	file.Close()
	if err != nil {
		h.reject(w, r, http.StatusInternalServerError, "could not read file", err)
		return
	}

	sum := xxh3.Hash(data)
	check := models.HashAbsent
	if claimed := r.Header.Get("X-Frame-Hash"); claimed != "" {
		want, err := models.ParseHash(claimed)
		if err != nil || want != sum {
			h.reject(w, r, http.StatusUnprocessableEntity, "frame hash mismatch",
				fmt.Errorf("header %q, body %s", claimed, models.FormatHash(sum)))
			return
		}
		check = models.HashOK
	}

	now := utils.NowNano()
	rcpt := &models.FrameReceipt{
		ReceivedNs: now,
		TraceID:    r.Header.Get("X-Frame-Trace"),
		DeviceSeq:  r.Header.Get("X-Frame-Seq"),
		RemoteAddr: r.RemoteAddr,
		FilePath:   filepath.Join(h.framesRel, frameFileName(r.Header.Get("X-Frame-Seq"), now)),
		SizeBytes:  len(data),
		Hash:       models.FormatHash(sum),
		HashCheck:  check,
	}
	if err := os.WriteFile(filepath.Join(h.sessionDir, rcpt.FilePath), data, 0644); err != nil {
		h.reject(w, r, http.StatusInternalServerError, "could not save frame", err)
		return
	}

	h.journal.WriteRow(rcpt.CSVRow())
	atomic.AddUint64(&h.stored, 1)
	atomic.AddUint64(&h.bytesSaved, uint64(len(data)))
	utils.L().Info("frame received: seq=%s trace=%s size=%d from %s",
		rcpt.DeviceSeq, rcpt.TraceID, rcpt.SizeBytes, rcpt.RemoteAddr)

	if h.hub != nil {
		h.hub.Broadcast(data)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"message":  "frame stored",
		"trace_id": rcpt.TraceID,
	})
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request, status int, msg string, err error) {
	atomic.AddUint64(&h.rejected, 1)
	utils.L().Warn("upload from %s rejected (%d %s): %v", r.RemoteAddr, status, msg, err)
	http.Error(w, msg, status)
}

// frameFileName names a stored frame by receive time, plus the device
// sequence when it is a number. A restarted device reuses sequence
// numbers, so the sequence alone is not unique.
func frameFileName(seq string, receivedNs int64) string {
	if n, err := strconv.ParseUint(seq, 10, 64); err == nil {
		return fmt.Sprintf("%d_%06d.jpg", receivedNs, n)
	}
	return fmt.Sprintf("%d.jpg", receivedNs)
}

// Stats returns the endpoint counters.
func (h *Handler) Stats() Stats {
	return Stats{
		Stored:     atomic.LoadUint64(&h.stored),
		Rejected:   atomic.LoadUint64(&h.rejected),
		BytesSaved: atomic.LoadUint64(&h.bytesSaved),
	}
}
