package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"dm-service/internal/models"
	"dm-service/internal/observability"
	"dm-service/internal/repositories"
	"dm-service/internal/telemetry"
	"dm-service/internal/ws"
)

// Notifier pushes a payload to a single live connection. Implementations return
// ws.ErrConnectionGone when the connection no longer exists.
type Notifier interface {
	Send(ctx context.Context, connectionID string, data []byte) error
}

var (
	resultOK        = models.Result{StatusCode: http.StatusOK}
	resultForbidden = models.Result{StatusCode: http.StatusForbidden}
	resultFailure   = models.Result{StatusCode: http.StatusInternalServerError}
)

// Router dispatches inbound events to the operation handlers.
type Router struct {
	clients  repositories.ClientRepository
	messages repositories.MessageRepository
	notifier Notifier
	audit    *telemetry.AuditEmitter
}

// NewRouter builds a Router. audit may be nil.
func NewRouter(clients repositories.ClientRepository, messages repositories.MessageRepository, notifier Notifier, audit *telemetry.AuditEmitter) *Router {
	return &Router{
		clients:  clients,
		messages: messages,
		notifier: notifier,
		audit:    audit,
	}
}

// Dispatch routes the event to exactly one handler. A HandlerError raised by a
// handler is pushed back to the originating connection as an error payload and
// the event still reports success; any other error propagates.
func (r *Router) Dispatch(ctx context.Context, event models.Event) (models.Result, error) {
	res, err := r.route(ctx, event)
	if err != nil {
		var herr *HandlerError
		if errors.As(err, &herr) {
			if _, perr := r.push(ctx, event.ConnectionID, models.NewError(herr.Error())); perr != nil {
				return models.Result{}, perr
			}
			observability.IncEvent(string(event.Action), strconv.Itoa(resultOK.StatusCode))
			return resultOK, nil
		}
		return models.Result{}, err
	}
	observability.IncEvent(string(event.Action), strconv.Itoa(res.StatusCode))
	return res, nil
}

func (r *Router) route(ctx context.Context, event models.Event) (models.Result, error) {
	switch event.Action {
	case models.ActionConnect:
		return r.handleConnect(ctx, event.ConnectionID, event.QueryParams)
	case models.ActionDisconnect:
		return r.handleDisconnect(ctx, event.ConnectionID)
	case models.ActionGetClients:
		return r.handleGetClients(ctx, event.ConnectionID)
	case models.ActionSendMessage:
		return r.handleSendMessage(ctx, event.ConnectionID, event.Body)
	case models.ActionGetMessages:
		return r.handleGetMessages(ctx, event.ConnectionID, event.Body)
	default:
		return resultFailure, nil
	}
}

// push sends a payload to one connection. The transport's gone signal deletes
// the stale client row and reports not-delivered; this is the only place stale
// rows are collected outside an explicit disconnect. Other failures are fatal.
func (r *Router) push(ctx context.Context, connectionID string, payload interface{}) (bool, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}

	if err := r.notifier.Send(ctx, connectionID, data); err != nil {
		if errors.Is(err, ws.ErrConnectionGone) {
			observability.IncPush("gone")
			if derr := r.clients.Delete(ctx, connectionID); derr != nil {
				return false, derr
			}
			return false, nil
		}
		observability.IncPush("error")
		return false, err
	}
	observability.IncPush("delivered")
	return true, nil
}
