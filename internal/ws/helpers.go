package ws

import (
	"crypto/rand"
	"encoding/hex"
)

// newConnID mints the opaque connection identifier handed to every handler.
func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
