package repositories

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

var ErrBadCursor = errors.New("malformed pagination cursor")

// cursorPosition marks the last row of a page. Clients receive it base64-encoded
// and hand it back verbatim as startKey.
type cursorPosition struct {
	CreatedAt int64  `json:"createdAt"`
	MessageID string `json:"messageId"`
}

func encodeCursor(pos cursorPosition) string {
	raw, _ := json.Marshal(pos)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(cursor string) (cursorPosition, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return cursorPosition{}, ErrBadCursor
	}
	var pos cursorPosition
	if err := json.Unmarshal(raw, &pos); err != nil {
		return cursorPosition{}, ErrBadCursor
	}
	if pos.MessageID == "" {
		return cursorPosition{}, ErrBadCursor
	}
	return pos, nil
}
