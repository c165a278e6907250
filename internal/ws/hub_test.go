package ws

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestHubRegisterAndUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	hub.Register("c1", nil, ConnInfo{ConnID: "c1"})
	if hub.Len() != 1 {
		t.Fatalf("expected connection to be registered")
	}

	hub.Unregister("c1")
	if hub.Len() != 0 {
		t.Fatalf("expected connection to be removed")
	}
}

func TestHubSendToUnknownConnectionIsGone(t *testing.T) {
	hub := NewHub(zerolog.Nop())

	err := hub.Send(context.Background(), "ghost", []byte(`{"type":"ping"}`))
	if !errors.Is(err, ErrConnectionGone) {
		t.Fatalf("expected ErrConnectionGone, got %v", err)
	}
}
