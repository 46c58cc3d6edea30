package events

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"bibxml/internal/xml2rfc"
)

const (
	clientBuffer = 64
	writeWait    = 2 * time.Second
)

// Hub fans events out to connected websocket clients. Each client has its
// own send buffer drained by a writer goroutine; a client whose buffer is
// full is dropped, so publishing never waits on a socket.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]*client
	logger  *slog.Logger
}

type client struct {
	ws   *websocket.Conn
	send chan []byte
}

type Stats struct {
	WSClients int `json:"ws_clients"`
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*websocket.Conn]*client),
		logger:  logger,
	}
}

// Add registers ws and starts its writer. Nothing else may write to ws
// afterwards.
func (h *Hub) Add(ws *websocket.Conn) {
	c := &client{ws: ws, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[ws] = c
	h.mu.Unlock()
	go h.writeLoop(c)
}

func (h *Hub) Remove(ws *websocket.Conn) {
	h.mu.Lock()
	h.dropLocked(ws)
	h.mu.Unlock()
	_ = ws.Close()
}

// dropLocked unregisters ws and stops its writer. h.mu must be held.
func (h *Hub) dropLocked(ws *websocket.Conn) {
	if c, ok := h.clients[ws]; ok {
		delete(h.clients, ws)
		close(c.send)
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.ws.Close()
	for b := range c.send {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
			h.Remove(c.ws)
			return
		}
	}
}

func (h *Hub) BroadcastJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("marshal event failed", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for ws, c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.logger.Warn("dropping slow event stream client", "remote", ws.RemoteAddr().String())
			h.dropLocked(ws)
			_ = ws.Close()
		}
	}
}

// Publish broadcasts a finished resolution.
func (h *Hub) Publish(r *xml2rfc.Report) {
	h.BroadcastJSON(ResolutionEvent{
		ID:       uuid.NewString(),
		Type:     TypeResolution,
		Subpath:  r.Subpath,
		Anchor:   r.Anchor,
		Outcome:  r.MetricLabel(),
		Outcomes: r.Outcomes,
		At:       time.Now().UTC(),
	})
}

// PublishManualMap broadcasts a manual map change. An empty docid marks
// a deletion.
func (h *Hub) PublishManualMap(subpath, docid string) {
	typ := TypeManualMapUpdate
	if docid == "" {
		typ = TypeManualMapDelete
	}
	h.BroadcastJSON(ManualMapEvent{
		ID:      uuid.NewString(),
		Type:    typ,
		Subpath: subpath,
		DocID:   docid,
		At:      time.Now().UTC(),
	})
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{WSClients: len(h.clients)}
}
