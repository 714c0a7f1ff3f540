package sink

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"frame-relay/utils"
)

const (
	viewerWriteTimeout = 2 * time.Second
	// Frames a viewer may have pending before newer ones are skipped.
	viewerBacklog = 1
)

// viewer is one preview connection. Only its writeLoop writes data frames.
type viewer struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans each stored frame out to the connected preview viewers.
// Broadcast never waits on a viewer's socket: a viewer that is still
// writing an older frame skips the new one.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	viewers map[*viewer]struct{}

	skipped atomic.Uint64
}

// NewHub returns a hub with no viewers. Any origin may connect.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		viewers: make(map[*viewer]struct{}),
	}
}

// ServeHTTP upgrades the request and keeps the viewer until it goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		utils.L().Warn("stream: upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	utils.L().Info("stream: viewer connected from %s", r.RemoteAddr)

	v := &viewer{conn: conn, send: make(chan []byte, viewerBacklog)}
	h.mu.Lock()
	h.viewers[v] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(v)
	defer h.drop(v)

	// Viewers never send anything useful; reading only detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			utils.L().Debug("stream: viewer %s left: %v", r.RemoteAddr, err)
			return
		}
	}
}

func (h *Hub) writeLoop(v *viewer) {
	for frame := range v.send {
		_ = v.conn.SetWriteDeadline(time.Now().Add(viewerWriteTimeout))
		if err := v.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			utils.L().Warn("stream: dropping viewer %s: %v", v.conn.RemoteAddr(), err)
			h.drop(v)
			return
		}
	}
}

// Broadcast queues frame for every viewer as one binary message and
// returns without touching the network.
func (h *Hub) Broadcast(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for v := range h.viewers {
		select {
		case v.send <- frame:
		default:
			h.skipped.Add(1)
			utils.L().Debug("stream: viewer %s busy, frame skipped", v.conn.RemoteAddr())
		}
	}
}

// Viewers is the number of connected viewers.
func (h *Hub) Viewers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

// Skipped counts frames not sent to a viewer because it was busy.
func (h *Hub) Skipped() uint64 { return h.skipped.Load() }

// Close disconnects every viewer. http.Server.Shutdown does not track
// hijacked connections, so the owner calls this on stop.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for v := range h.viewers {
		_ = v.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping"),
			time.Now().Add(time.Second))
		h.removeLocked(v)
	}
}

func (h *Hub) drop(v *viewer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(v)
}

// removeLocked is a no-op for a viewer already removed.
func (h *Hub) removeLocked(v *viewer) {
	if _, ok := h.viewers[v]; !ok {
		return
	}
	delete(h.viewers, v)
	close(v.send)
	v.conn.Close()
}
