package models

import "time"

// Client represents a connected user: one row per live websocket connection.
type Client struct {
	ConnectionID string    `db:"connection_id" json:"connectionId"`
	Nickname     string    `db:"nickname" json:"nickname"`
	ConnectedAt  time.Time `db:"connected_at" json:"-"`
}
