package models

// Action identifies the operation an inbound event requests.
type Action string

const (
	ActionConnect     Action = "connect"
	ActionDisconnect  Action = "disconnect"
	ActionGetClients  Action = "getClients"
	ActionSendMessage Action = "sendMessage"
	ActionGetMessages Action = "getMessages"
)

// Event is one inbound request from a connection. QueryParams is set for connect
// only; Body carries the raw JSON frame for sendMessage and getMessages.
type Event struct {
	Action       Action
	ConnectionID string
	QueryParams  map[string]string
	Body         []byte
}

// Result is the transport-level outcome of an event.
type Result struct {
	StatusCode int
}
