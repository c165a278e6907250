package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"dm-service/internal/models"
	"dm-service/internal/repositories"
)

// handleConnect registers a nickname for the connection. The nickname is taken
// only when its current holder still answers a liveness probe; a dead holder is
// cleaned up by the probe itself and the nickname is treated as free.
func (r *Router) handleConnect(ctx context.Context, connectionID string, queryParams map[string]string) (models.Result, error) {
	nickname := queryParams["nickname"]
	if nickname == "" {
		return resultForbidden, nil
	}

	existing, err := r.clients.GetByNickname(ctx, nickname)
	if err != nil && !errors.Is(err, repositories.ErrClientNotFound) {
		return models.Result{}, err
	}
	if err == nil {
		delivered, perr := r.push(ctx, existing.ConnectionID, models.NewPing())
		if perr != nil {
			return models.Result{}, perr
		}
		if delivered {
			return resultForbidden, nil
		}
	}

	if err := r.clients.Put(ctx, models.Client{ConnectionID: connectionID, Nickname: nickname}); err != nil {
		return models.Result{}, err
	}

	if err := r.notifyClients(ctx, connectionID); err != nil {
		return models.Result{}, err
	}

	r.emitAudit(ctx, "client connected", nickname)
	return resultOK, nil
}

// handleDisconnect removes the client row and broadcasts the updated roster.
func (r *Router) handleDisconnect(ctx context.Context, connectionID string) (models.Result, error) {
	client, err := r.clients.Get(ctx, connectionID)
	if err != nil && !errors.Is(err, repositories.ErrClientNotFound) {
		return models.Result{}, err
	}

	if err := r.clients.Delete(ctx, connectionID); err != nil {
		return models.Result{}, err
	}

	if err := r.notifyClients(ctx, connectionID); err != nil {
		return models.Result{}, err
	}

	r.emitAudit(ctx, "client disconnected", client.Nickname)
	return resultOK, nil
}

// handleGetClients pushes the full roster to the requesting connection.
func (r *Router) handleGetClients(ctx context.Context, connectionID string) (models.Result, error) {
	clients, err := r.allClients(ctx)
	if err != nil {
		return models.Result{}, err
	}

	if _, err := r.push(ctx, connectionID, models.NewClients(clients)); err != nil {
		return models.Result{}, err
	}
	return resultOK, nil
}

type sendMessageBody struct {
	Message           *string `json:"message"`
	RecipientNickname *string `json:"recipientNickname"`
}

func parseSendMessageBody(body []byte) (sendMessageBody, error) {
	var parsed sendMessageBody
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Message == nil || parsed.RecipientNickname == nil {
		return sendMessageBody{}, newHandlerError("incorrect sendMessage body format")
	}
	return parsed, nil
}

// handleSendMessage persists the message and delivers it when the recipient is
// online. An offline recipient only gets the stored copy; there is no queueing.
func (r *Router) handleSendMessage(ctx context.Context, connectionID string, body []byte) (models.Result, error) {
	parsed, err := parseSendMessageBody(body)
	if err != nil {
		return models.Result{}, err
	}

	sender, err := r.senderClient(ctx, connectionID)
	if err != nil {
		return models.Result{}, err
	}

	msg := models.Message{
		MessageID:       uuid.NewString(),
		CreatedAt:       time.Now().UnixMilli(),
		ConversationKey: models.ConversationKey(sender.Nickname, *parsed.RecipientNickname),
		Message:         *parsed.Message,
		Sender:          sender.Nickname,
	}
	if err := r.messages.Create(ctx, msg); err != nil {
		return models.Result{}, err
	}

	recipient, err := r.clients.GetByNickname(ctx, *parsed.RecipientNickname)
	if err != nil {
		if errors.Is(err, repositories.ErrClientNotFound) {
			return resultOK, nil
		}
		return models.Result{}, err
	}
	if _, err := r.push(ctx, recipient.ConnectionID, models.NewMessage(sender.Nickname, *parsed.Message)); err != nil {
		return models.Result{}, err
	}
	return resultOK, nil
}

type getMessagesBody struct {
	TargetNickname *string `json:"targetNickname"`
	Limit          *int    `json:"limit"`
	StartKey       string  `json:"startKey"`
}

func parseGetMessagesBody(body []byte) (getMessagesBody, error) {
	var parsed getMessagesBody
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.TargetNickname == nil || parsed.Limit == nil {
		return getMessagesBody{}, newHandlerError("incorrect getMessages body format")
	}
	return parsed, nil
}

// handleGetMessages pushes one newest-first page of the shared conversation.
func (r *Router) handleGetMessages(ctx context.Context, connectionID string, body []byte) (models.Result, error) {
	parsed, err := parseGetMessagesBody(body)
	if err != nil {
		return models.Result{}, err
	}

	requester, err := r.senderClient(ctx, connectionID)
	if err != nil {
		return models.Result{}, err
	}

	key := models.ConversationKey(requester.Nickname, *parsed.TargetNickname)
	msgs, _, err := r.messages.Conversation(ctx, key, *parsed.Limit, parsed.StartKey)
	if err != nil {
		if errors.Is(err, repositories.ErrBadCursor) {
			return models.Result{}, newHandlerError("incorrect getMessages startKey")
		}
		return models.Result{}, err
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	if _, err := r.push(ctx, connectionID, models.NewMessages(msgs)); err != nil {
		return models.Result{}, err
	}
	return resultOK, nil
}

// senderClient resolves the caller's own registration. A missing row is a user
// error rather than a crash: the registry may have been cleaned up under us.
func (r *Router) senderClient(ctx context.Context, connectionID string) (models.Client, error) {
	client, err := r.clients.Get(ctx, connectionID)
	if errors.Is(err, repositories.ErrClientNotFound) {
		return models.Client{}, newHandlerError("connection is not registered")
	}
	return client, err
}

// notifyClients broadcasts the full roster to every registered client except the
// excluded connection. Pushes run concurrently; individual gone connections are
// cleaned up without aborting the broadcast.
func (r *Router) notifyClients(ctx context.Context, excludeConnectionID string) error {
	clients, err := r.allClients(ctx)
	if err != nil {
		return err
	}

	roster := models.NewClients(clients)
	g, gctx := errgroup.WithContext(ctx)
	for _, client := range clients {
		if client.ConnectionID == excludeConnectionID {
			continue
		}
		connectionID := client.ConnectionID
		g.Go(func() error {
			_, err := r.push(gctx, connectionID, roster)
			return err
		})
	}
	return g.Wait()
}

func (r *Router) allClients(ctx context.Context) ([]models.Client, error) {
	clients, err := r.clients.All(ctx)
	if err != nil {
		return nil, err
	}
	if clients == nil {
		clients = []models.Client{}
	}
	return clients, nil
}

func (r *Router) emitAudit(ctx context.Context, text, nickname string) {
	if r.audit == nil {
		return
	}
	var subject *string
	if nickname != "" {
		subject = &nickname
	}
	r.audit.Emit(ctx, "INFO", text, "", subject)
}
