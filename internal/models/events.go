package models

// Payloads pushed to clients over the websocket, tagged by "type".

// PingPayload is a liveness probe with no content.
type PingPayload struct {
	Type string `json:"type"`
}

// ClientsPayload carries the full roster of connected clients.
type ClientsPayload struct {
	Type  string       `json:"type"`
	Value ClientsValue `json:"value"`
}

type ClientsValue struct {
	Clients []Client `json:"clients"`
}

// MessagePayload delivers a single incoming message to its recipient.
type MessagePayload struct {
	Type  string       `json:"type"`
	Value MessageValue `json:"value"`
}

type MessageValue struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// MessagesPayload carries one page of conversation history.
type MessagesPayload struct {
	Type  string        `json:"type"`
	Value MessagesValue `json:"value"`
}

type MessagesValue struct {
	Messages []Message `json:"messages"`
}

// ErrorPayload reports a handled user error back to the sender.
type ErrorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewPing() PingPayload {
	return PingPayload{Type: "ping"}
}

func NewClients(clients []Client) ClientsPayload {
	return ClientsPayload{Type: "clients", Value: ClientsValue{Clients: clients}}
}

func NewMessage(sender, message string) MessagePayload {
	return MessagePayload{Type: "message", Value: MessageValue{Sender: sender, Message: message}}
}

func NewMessages(messages []Message) MessagesPayload {
	return MessagesPayload{Type: "messages", Value: MessagesValue{Messages: messages}}
}

func NewError(message string) ErrorPayload {
	return ErrorPayload{Type: "error", Message: message}
}
