package domain

// WebSocket message types from client.
const (
	MsgTypeAuth        = "auth"
	MsgTypeChatMessage = "chat_message"
	MsgTypePing        = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeAuthResult = "auth_result"
	MsgTypeMessageAck = "message_ack"
	MsgTypeError      = "error"
	MsgTypePong       = "pong"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

type AuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type ChatMessageWS struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Server -> Client messages

type AuthResultMessage struct {
	Type        string `json:"type"`
	Success     bool   `json:"success"`
	UserID      string `json:"userId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Message     string `json:"message,omitempty"`
}

type MessageAck struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
}

type PongMessage struct {
	Type string `json:"type"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorMessage builds an error frame whose code is the error kind.
func NewErrorMessage(err error) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    KindOf(err).String(),
		Message: PublicMessage(err),
	}
}
