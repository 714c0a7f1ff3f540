package sink

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"frame-relay/models"
	"frame-relay/services/upload"
)

type memJournal struct {
	mu   sync.Mutex
	rows [][]string
}

func (j *memJournal) WriteRow(row []string) {
	j.mu.Lock()
	j.rows = append(j.rows, row)
	j.mu.Unlock()
}

func (j *memJournal) Rows() [][]string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([][]string(nil), j.rows...)
}

func newTestSink(t *testing.T, maxMB int) (*Handler, *memJournal, *httptest.Server) {
	t.Helper()
	j := &memJournal{}
	h, err := NewHandler(t.TempDir(), maxMB, j, NewHub())
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return h, j, srv
}

func postFrame(t *testing.T, url string, f *models.Frame, hash string) *http.Response {
	t.Helper()
	enc, err := upload.NewMultipartEncoder(upload.DefaultBoundary, "file", "image/jpeg")
	if err != nil {
		t.Fatal(err)
	}
	body, err := enc.Encode(f.FileName(), f.Data)
	if err != nil {
		t.Fatal(err)
	}
	req, _ := http.NewRequest(http.MethodPost, url+"/post", bytes.NewReader(body))
	req.Header.Set("Content-Type", enc.ContentType())
	req.Header.Set("X-Frame-Trace", f.TraceID)
	req.Header.Set("X-Frame-Seq", "7")
	if hash != "" {
		req.Header.Set("X-Frame-Hash", hash)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func TestPostStoresFrame(t *testing.T) {
	h, j, srv := newTestSink(t, 1)
	f := models.NewFrame(7, []byte{0xFF, 0xD8, 1, 2, 3, 0xFF, 0xD9})

	resp := postFrame(t, srv.URL, f, f.HashHex())
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status %d: %s", resp.StatusCode, b)
	}

	var reply map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		t.Fatalf("reply is not JSON: %v", err)
	}
	if reply["message"] != "frame stored" || reply["trace_id"] != f.TraceID {
		t.Errorf("reply = %v", reply)
	}

	rows := j.Rows()
	if len(rows) != 1 {
		t.Fatalf("journal rows = %d, want 1", len(rows))
	}
	row := rows[0]
	if row[1] != f.TraceID || row[2] != "7" || row[5] != "7" || row[7] != models.HashOK {
		t.Errorf("row = %v", row)
	}
	if !strings.HasSuffix(row[4], "_000007.jpg") {
		t.Errorf("file path %q", row[4])
	}

	saved, err := os.ReadFile(filepath.Join(h.sessionDir, row[4]))
	if err != nil {
		t.Fatalf("read saved frame: %v", err)
	}
	if !bytes.Equal(saved, f.Data) {
		t.Error("saved bytes differ from upload")
	}
	if st := h.Stats(); st.Stored != 1 || st.BytesSaved != uint64(len(f.Data)) {
		t.Errorf("stats = %+v", st)
	}
}

func TestPostWithoutHashHeader(t *testing.T) {
	_, j, srv := newTestSink(t, 1)
	resp := postFrame(t, srv.URL, models.NewFrame(1, []byte("jpeg")), "")
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if rows := j.Rows(); len(rows) != 1 || rows[0][7] != models.HashAbsent {
		t.Errorf("rows = %v", rows)
	}
}

func TestPostRejects(t *testing.T) {
	h, j, srv := newTestSink(t, 1)

	t.Run("method", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/post")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("status %d, want 405", resp.StatusCode)
		}
	})

	t.Run("not multipart", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/post", "image/jpeg", strings.NewReader("raw"))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status %d, want 400", resp.StatusCode)
		}
	})

	t.Run("wrong field", func(t *testing.T) {
		enc, _ := upload.NewMultipartEncoder("", "image", "")
		body, _ := enc.Encode("x.jpg", []byte("jpeg"))
		resp, err := http.Post(srv.URL+"/post", enc.ContentType(), bytes.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status %d, want 400", resp.StatusCode)
		}
	})

	t.Run("hash mismatch", func(t *testing.T) {
		resp := postFrame(t, srv.URL, models.NewFrame(2, []byte("jpeg")), "0000000000000001")
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Errorf("status %d, want 422", resp.StatusCode)
		}
	})

	t.Run("too large", func(t *testing.T) {
		enc, _ := upload.NewMultipartEncoder("", "", "")
		body, _ := enc.Encode("big.jpg", bytes.Repeat([]byte{1}, 2<<20))
		resp, err := http.Post(srv.URL+"/post", enc.ContentType(), bytes.NewReader(body))
		if err != nil {
			// The server may hang up before the client finishes writing.
			return
		}
		resp.Body.Close()
		if resp.StatusCode < 400 || resp.StatusCode >= 500 {
			t.Errorf("status %d, want 4xx", resp.StatusCode)
		}
	})

	if n := len(j.Rows()); n != 0 {
		t.Errorf("rejected uploads journaled %d rows", n)
	}
	if st := h.Stats(); st.Stored != 0 || st.Rejected != 5 {
		t.Errorf("stats = %+v", st)
	}
}

func TestCORSAndHealth(t *testing.T) {
	_, _, srv := newTestSink(t, 1)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/post", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight: %d %v", resp.StatusCode, resp.Header)
	}

	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Errorf("healthz = %q", body)
	}
}

func TestStreamBroadcastsStoredFrames(t *testing.T) {
	h, _, srv := newTestSink(t, 1)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.hub.Viewers() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("viewer never registered")
		}
		time.Sleep(2 * time.Millisecond)
	}

	f := models.NewFrame(1, []byte{0xFF, 0xD8, 9, 0xFF, 0xD9})
	resp := postFrame(t, srv.URL, f, "")
	resp.Body.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if kind != websocket.BinaryMessage || !bytes.Equal(msg, f.Data) {
		t.Errorf("got kind %d, %d bytes", kind, len(msg))
	}

	h.hub.Close()
	if h.hub.Viewers() != 0 {
		t.Error("viewers left after Close")
	}
}

func dialViewer(t *testing.T, hub *Hub, srv *httptest.Server, want int) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.Viewers() != want {
		if time.Now().After(deadline) {
			t.Fatalf("viewers = %d, want %d", hub.Viewers(), want)
		}
		time.Sleep(2 * time.Millisecond)
	}
	return conn
}

func TestBroadcastDoesNotWaitOnStalledViewer(t *testing.T) {
	h, _, srv := newTestSink(t, 1)
	defer h.hub.Close()

	// Never read from this one; its socket buffers fill up.
	dialViewer(t, h.hub, srv, 1)
	live := dialViewer(t, h.hub, srv, 2)

	frame := bytes.Repeat([]byte{0xAB}, 1<<20)
	start := time.Now()
	for i := 0; i < 64; i++ {
		h.hub.Broadcast(frame)
	}
	if took := time.Since(start); took > time.Second {
		t.Fatalf("64 broadcasts took %v with a stalled viewer", took)
	}
	if h.hub.Skipped() == 0 {
		t.Error("no frame skipped for a viewer that never reads")
	}

	_ = live.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, msg, err := live.ReadMessage(); err != nil || len(msg) != len(frame) {
		t.Errorf("reading viewer: %d bytes, err %v", len(msg), err)
	}
}
