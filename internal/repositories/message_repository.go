package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"dm-service/internal/models"
)

// MessageRepository defines interactions with the append-only message log.
type MessageRepository interface {
	Create(ctx context.Context, msg models.Message) error
	// Conversation returns one newest-first page of a conversation, resuming from
	// the opaque cursor when it is non-empty. The returned cursor is empty once
	// the conversation is exhausted.
	Conversation(ctx context.Context, key string, limit int, cursor string) ([]models.Message, string, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create stores a message row.
func (r *MessageRepo) Create(ctx context.Context, msg models.Message) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO messages (message_id, conversation_key, sender, message, created_at)
        VALUES ($1, $2, $3, $4, $5)`,
		msg.MessageID, msg.ConversationKey, msg.Sender, msg.Message, msg.CreatedAt)
	return err
}

// Conversation pages through a conversation newest-first using a keyset cursor
// over (created_at, message_id).
func (r *MessageRepo) Conversation(ctx context.Context, key string, limit int, cursor string) ([]models.Message, string, error) {
	if limit <= 0 {
		return nil, "", nil
	}

	var msgs []models.Message
	if cursor == "" {
		query := `SELECT message_id, conversation_key, sender, message, created_at FROM messages
            WHERE conversation_key=$1
            ORDER BY created_at DESC, message_id DESC
            LIMIT $2`
		if err := r.db.SelectContext(ctx, &msgs, query, key, limit); err != nil {
			return nil, "", err
		}
	} else {
		pos, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		query := `SELECT message_id, conversation_key, sender, message, created_at FROM messages
            WHERE conversation_key=$1 AND (created_at, message_id) < ($2, $3)
            ORDER BY created_at DESC, message_id DESC
            LIMIT $4`
		if err := r.db.SelectContext(ctx, &msgs, query, key, pos.CreatedAt, pos.MessageID, limit); err != nil {
			return nil, "", err
		}
	}

	next := ""
	if len(msgs) == limit {
		last := msgs[len(msgs)-1]
		next = encodeCursor(cursorPosition{CreatedAt: last.CreatedAt, MessageID: last.MessageID})
	}
	return msgs, next, nil
}

var _ MessageRepository = (*MessageRepo)(nil)
var _ ClientRepository = (*ClientRepo)(nil)
