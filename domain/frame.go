package domain

import "time"

const (
	GreetingText     = "Hi, any questions?"
	NoModeratorsText = "There is no moderators at the moment. " +
		"We will get an email and reply you as soon as we can."
	EmailReceivedText = "We received your message and will reply by email as soon as we can."

	StatusNoModerators  = "no_moderators"
	StatusEmailReceived = "email_received"
)

// Websocket close codes sent by the relay.
const (
	CloseNormal      = 1000
	CloseUnavailable = 1013
	CloseForbidden   = 4403
)

// InboundFrame is the raw shape of a client frame.
type InboundFrame struct {
	Command  string `json:"command"`
	Message  string `json:"message"`
	Email    string `json:"email"`
	RoomName string `json:"room_name"`
}

// ChatMessage is the wire form of a Message.
type ChatMessage struct {
	Content string  `json:"content"`
	Sent    string  `json:"sent"`
	Sender  *string `json:"sender"`
}

func ToChatMessage(m Message) ChatMessage {
	return ChatMessage{
		Content: m.Content,
		Sent:    m.Sent.UTC().Format(time.RFC3339Nano),
		Sender:  m.Sender,
	}
}

type GreetingFrame struct {
	Message string `json:"message"`
}

type StatusFrame struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type ErrorFrame struct {
	Error string `json:"error"`
}

type HistoryFrame struct {
	RoomName RoomID        `json:"room_name,omitempty"`
	Messages []ChatMessage `json:"messages"`
}

// DeliveryFrame is what the fanout carries. Visitors receive it without RoomName.
type DeliveryFrame struct {
	RoomName RoomID      `json:"room_name,omitempty"`
	Message  ChatMessage `json:"message"`
}
