package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"dm-service/internal/observability"
)

// ErrConnectionGone signals that a connection id no longer maps to a live
// websocket. It is the only push failure callers may recover from; anything
// else is fatal for the invocation.
var ErrConnectionGone = errors.New("connection gone")

// Hub is the process-wide registry of live websocket connections.
type Hub struct {
	conns  map[string]*connection
	infos  map[string]ConnInfo
	mu     sync.RWMutex
	logger zerolog.Logger
}

// connection serializes writes to a single websocket.
type connection struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		conns:  make(map[string]*connection),
		infos:  make(map[string]ConnInfo),
		logger: logger,
	}
}

// Register adds a connection under its id.
func (h *Hub) Register(connectionID string, ws *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[connectionID] = &connection{ws: ws}
	h.infos[connectionID] = info
}

// Unregister removes a connection. The websocket itself is closed by the caller.
func (h *Hub) Unregister(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, connectionID)
	delete(h.infos, connectionID)
}

// Send writes a text frame to the connection. An unknown id or a failed write
// returns ErrConnectionGone; a failed write also evicts the connection.
func (h *Hub) Send(ctx context.Context, connectionID string, data []byte) error {
	h.mu.RLock()
	c, ok := h.conns[connectionID]
	info := h.infos[connectionID]
	h.mu.RUnlock()

	if !ok {
		return ErrConnectionGone
	}

	c.mu.Lock()
	err := c.ws.WriteMessage(websocket.TextMessage, data)
	c.mu.Unlock()
	if err != nil {
		h.logger.Warn().Err(err).Str("conn_id", connectionID).Msg("websocket write failed")
		c.ws.Close()
		h.Unregister(connectionID)
		h.publishWSError(ctx, info, err)
		return ErrConnectionGone
	}
	return nil
}

// Len reports the number of registered connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) publishWSError(ctx context.Context, info ConnInfo, err error) {
	if info.ConnID == "" {
		return
	}

	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       "ws_error",
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"nickname": info.Nickname,
			"ip":       info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(ctx, "ws_events.dm", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent("ws_error")
}
