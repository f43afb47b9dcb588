package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/avelin/peercall/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const sendBuffer = 32

// Hub is the stateless relay: every frame received from one connected client
// is forwarded verbatim to every other client. No addressing, no filtering,
// no persistence; discarding third-party traffic is the session's job.
type Hub struct {
	readLimit int64

	mu      sync.RWMutex
	clients map[string]*wsConn
}

func NewHub(readLimit int64) *Hub {
	return &Hub{
		readLimit: readLimit,
		clients:   make(map[string]*wsConn),
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS upgrades the request and runs the connection's pumps until the
// client goes away or ctx is cancelled.
func (h *Hub) HandleWS(ctx context.Context, c *gin.Context) {
	id := uuid.NewString()

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal.hub").Msg("ws upgrade")
		return
	}
	if h.readLimit > 0 {
		ws.SetReadLimit(h.readLimit)
	}

	conn := newWSConn(ws, sendBuffer)
	h.register(id, conn)
	log.Info().Str("module", "signal.hub").Str("client", id).Msg("client connected")

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		h.writePump(ctx, conn)
		cancel()
	}()
	go func() {
		h.readPump(ctx, id, conn)
		cancel()
		h.unregister(id)
	}()
}

func (h *Hub) register(id string, conn *wsConn) {
	h.mu.Lock()
	h.clients[id] = conn
	h.mu.Unlock()
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	conn, ok := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()
	if ok {
		conn.Close()
		log.Info().Str("module", "signal.hub").Str("client", id).Msg("client disconnected")
	}
}

// BroadcastFrom forwards a frame to every client except its origin.
func (h *Hub) BroadcastFrom(origin string, data core.Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, conn := range h.clients {
		if id == origin {
			continue
		}
		if err := conn.TrySend(data); err != nil {
			log.Warn().Err(err).Str("module", "signal.hub").Str("client", id).Msg("drop frame")
		}
	}
}

// Broadcast forwards a frame to every connected client. Serves the HTTP
// /send path, where the poster holds no websocket of its own.
func (h *Hub) Broadcast(data core.Frame) {
	h.BroadcastFrom("", data)
}

// ClientCount reports connected clients, for the health endpoint.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) writePump(ctx context.Context, c *wsConn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal.hub").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal.hub").Msg("writePump write error")
				return
			}
		}
	}
}

func (h *Hub) readPump(ctx context.Context, id string, c *wsConn) {
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal.hub").Str("client", id).Msg("readPump done")
				return
			}
			h.BroadcastFrom(id, data)
		}
	}
}
