package websocket

import (
	"github.com/examguard/examguard-backend/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSend Action = "send"
	ActionPing Action = "ping"
)

// RequestPayload is the single client message shape on the chat socket.
type RequestPayload struct {
	Action Action `json:"action"`
	Body   string `json:"body,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError       Event = "error"
	EventMessage     Event = "message"
	EventChatBlocked Event = "chat_blocked"
	EventPong        Event = "pong"
)

// MessageResponse carries one chat message to the client.
type MessageResponse struct {
	Event   Event              `json:"event"`
	Message *model.ChatMessage `json:"message"`
}

// ChatBlockedResponse notifies the client of a block flag change.
type ChatBlockedResponse struct {
	Event   Event `json:"event"`
	Blocked bool  `json:"blocked"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
