package controller

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"frame-relay/models"
	"frame-relay/services/sink"
	"frame-relay/utils"
	"frame-relay/views"
)

const shutdownGrace = 5 * time.Second

// SinkController runs the receiving server for one session:
//   - frames land in <session>/frames/
//   - one receipt row per frame goes to <session>/receipts.csv
//   - the journal is flushed on a timer, never inside a request
type SinkController struct {
	cfg        *utils.SinkConfig
	sessionDir string

	journal *views.CSVWriter
	hub     *sink.Hub
	handler *sink.Handler

	server   *http.Server
	listener net.Listener
	wg       sync.WaitGroup
}

// NewSinkController creates the session directory and the receipts journal.
func NewSinkController(cfg *utils.SinkConfig) (*SinkController, error) {
	sessionDir := filepath.Join(cfg.Sink.BaseDir, utils.SessionName(cfg.Sink.SessionPrefix))
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	csvCfg := cfg.Sink.CSV
	journal, err := views.NewCSVWriter(
		filepath.Join(sessionDir, "receipts.csv"), csvCfg.BufferSizeKB*1024, csvCfg.WriteHeader,
		models.FrameReceipt{}.CSVHeader(),
	)
	if err != nil {
		return nil, err
	}

	hub := sink.NewHub()
	handler, err := sink.NewHandler(sessionDir, cfg.Sink.MaxUploadMB, journal, hub)
	if err != nil {
		journal.Close()
		return nil, err
	}

	utils.L().Info("sink controller ready  session=%s", sessionDir)
	return &SinkController{
		cfg:        cfg,
		sessionDir: sessionDir,
		journal:    journal,
		hub:        hub,
		handler:    handler,
	}, nil
}

// Start binds the listen address, serves in the background and starts the
// periodic journal flush. It returns once the socket is bound.
func (sc *SinkController) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", sc.cfg.Sink.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", sc.cfg.Sink.Listen, err)
	}
	sc.listener = ln
	sc.server = &http.Server{
		Handler:           sc.handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sc.wg.Add(1)
	go func() {
		defer sc.wg.Done()
		if err := sc.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.L().Error("http server: %v", err)
		}
	}()

	sc.wg.Add(1)
	go func() {
		defer sc.wg.Done()
		ticker := time.NewTicker(utils.MillisDuration(sc.cfg.Sink.CSV.FlushIntervalMs, 500*time.Millisecond))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := sc.journal.Flush(); err != nil {
					utils.L().Error("flush receipts: %v", err)
				}
			}
		}
	}()

	utils.L().Info("sink listening on %s (POST /post, GET /stream, GET /healthz)", ln.Addr())
	return nil
}

// Addr is the bound listen address, valid after Start.
func (sc *SinkController) Addr() string {
	return sc.listener.Addr().String()
}

// Stop shuts the server down gracefully, disconnects viewers, waits for the
// background goroutines and closes the journal. Cancel the Start context
// first so the flusher exits.
func (sc *SinkController) Stop() {
	if sc.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := sc.server.Shutdown(ctx); err != nil {
			utils.L().Error("http shutdown: %v", err)
		}
	}
	sc.hub.Close()
	sc.wg.Wait()

	if err := sc.journal.Close(); err != nil {
		utils.L().Error("close receipts: %v", err)
	}
	st := sc.handler.Stats()
	utils.L().Info("sink controller stopped  (stored=%d, rejected=%d, session=%s)",
		st.Stored, st.Rejected, sc.sessionDir)
}

// SessionDir returns the path to the active session directory.
func (sc *SinkController) SessionDir() string {
	return sc.sessionDir
}

// Stats returns the upload endpoint counters.
func (sc *SinkController) Stats() sink.Stats {
	return sc.handler.Stats()
}

// LogStats prints the endpoint counters.
func (sc *SinkController) LogStats() {
	st := sc.handler.Stats()
	utils.L().Info("  sink     stored=%s  rejected=%s  saved=%s  viewers=%d (skipped %s)  journal_rows=%s",
		humanize.Comma(int64(st.Stored)), humanize.Comma(int64(st.Rejected)),
		humanize.Bytes(st.BytesSaved), sc.hub.Viewers(), humanize.Comma(int64(sc.hub.Skipped())),
		humanize.Comma(int64(sc.journal.Rows())))
	if err := sc.journal.Err(); err != nil {
		utils.L().Warn("  sink     receipts journal failing: %v", err)
	}
}
