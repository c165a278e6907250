package models

import (
	"sort"
	"strings"
)

// Message is a persisted direct message. Rows are append-only and immutable.
type Message struct {
	MessageID       string `db:"message_id" json:"messageId"`
	CreatedAt       int64  `db:"created_at" json:"createdAt"`
	ConversationKey string `db:"conversation_key" json:"nicknameToNickname"`
	Message         string `db:"message" json:"message"`
	Sender          string `db:"sender" json:"sender"`
}

// ConversationKey derives the shared history key for a pair of nicknames.
// The key is order-independent: ConversationKey(a, b) == ConversationKey(b, a).
func ConversationKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "#")
}
