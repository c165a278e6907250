package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"dm-service/internal/models"
	"dm-service/internal/observability"
)

// Dispatcher routes one inbound event to its handler.
type Dispatcher interface {
	Dispatch(ctx context.Context, event models.Event) (models.Result, error)
}

// Gateway upgrades websocket connections and turns frames into events.
type Gateway struct {
	hub        *Hub
	dispatcher Dispatcher
	logger     zerolog.Logger
}

// NewGateway constructs a Gateway.
func NewGateway(hub *Hub, dispatcher Dispatcher, logger zerolog.Logger) *Gateway {
	return &Gateway{hub: hub, dispatcher: dispatcher, logger: logger}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, registers it and runs the connect handler.
// A forbidden result rejects the connection with a policy-violation close frame.
func (g *Gateway) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("dm-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	nickname := c.Query("nickname")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	connectionID := newConnID()
	info := ConnInfo{
		ConnID:      connectionID,
		Nickname:    nickname,
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	g.hub.Register(connectionID, conn, info)

	res, err := g.dispatcher.Dispatch(ctx, models.Event{
		Action:       models.ActionConnect,
		ConnectionID: connectionID,
		QueryParams:  map[string]string{"nickname": nickname},
	})
	if err != nil || res.StatusCode != http.StatusOK {
		if err != nil {
			g.logger.Error().Err(err).Str("conn_id", connectionID).Msg("connect failed")
		} else {
			g.logger.Info().Str("conn_id", connectionID).Str("nickname", nickname).Msg("connect forbidden")
		}
		g.hub.Unregister(connectionID)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "nickname unavailable"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	g.publishLifecycleEvent(ctx, "ws_connect", info, "")

	// The request context is canceled once this handler returns; the read loop
	// keeps its trace values but must outlive it.
	go g.readLoop(context.WithoutCancel(ctx), conn, connectionID, info)
}

// readLoop parses frames as {action, ...} events until the connection drops,
// then runs the disconnect handler.
func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn, connectionID string, info ConnInfo) {
	var closeReason string
	defer func() {
		g.hub.Unregister(connectionID)
		if _, err := g.dispatcher.Dispatch(ctx, models.Event{
			Action:       models.ActionDisconnect,
			ConnectionID: connectionID,
		}); err != nil {
			g.logger.Error().Err(err).Str("conn_id", connectionID).Msg("disconnect failed")
		}
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		g.publishLifecycleEvent(ctx, "ws_disconnect", info, closeReason)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				g.publishLifecycleEvent(ctx, "ws_error", info, closeReason)
			}
			return
		}

		var frame struct {
			Action models.Action `json:"action"`
		}
		// An unparsable frame dispatches with an empty action and fails as unknown.
		_ = json.Unmarshal(data, &frame)

		// Lifecycle actions belong to the gateway, not to clients.
		if frame.Action == models.ActionConnect || frame.Action == models.ActionDisconnect {
			g.logger.Warn().Str("conn_id", connectionID).Str("action", string(frame.Action)).Msg("lifecycle action in frame rejected")
			continue
		}

		res, err := g.dispatcher.Dispatch(ctx, models.Event{
			Action:       frame.Action,
			ConnectionID: connectionID,
			Body:         data,
		})
		if err != nil {
			closeReason = err.Error()
			g.logger.Error().Err(err).Str("conn_id", connectionID).Str("action", string(frame.Action)).Msg("handler failed")
			return
		}
		if res.StatusCode != http.StatusOK {
			g.logger.Warn().Str("conn_id", connectionID).Str("action", string(frame.Action)).Int("status", res.StatusCode).Msg("event rejected")
		}
	}
}

func (g *Gateway) publishLifecycleEvent(ctx context.Context, event string, info ConnInfo, reason string) {
	_ = observability.PublishEvent(ctx, "ws_events.dm", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"nickname": info.Nickname,
				"ip":       info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
