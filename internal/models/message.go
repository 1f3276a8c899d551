package models

// MessageType tracks a message through its lifecycle. A user turn is always
// "outgoing". An assistant turn starts as "loading", moves to "streaming" once
// deltas arrive, and ends as "complete" or "failed".
type MessageType string

const (
	TypeOutgoing  MessageType = "outgoing"
	TypeLoading   MessageType = "loading"
	TypeStreaming MessageType = "streaming"
	TypeComplete  MessageType = "complete"
	TypeFailed    MessageType = "failed"
)

// Message is one turn in a chat. Body grows while the assistant streams.
type Message struct {
	ID         int64       `json:"id"`
	UserID     int64       `json:"user_id"`
	ChatID     int64       `json:"chat_id"`
	Type       MessageType `json:"type"`
	Body       string      `json:"body"`
	Created    int64       `json:"created"` // unix microseconds
	ReplyMsgID int64       `json:"reply_msg_id,omitempty"`
	Model      string      `json:"model,omitempty"`
	StreamID   string      `json:"stream_id,omitempty"`
}
