package ws

import "time"

type ConnInfo struct {
	ConnID      string
	Nickname    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
