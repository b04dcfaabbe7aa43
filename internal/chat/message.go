// Package chat defines the chat message payload carried by PUBLISH frames
// and the processor that stamps and validates it before fan-out.
package chat

// MessageType distinguishes regular chat lines from room notices.
type MessageType string

const (
	// TypeTalk is an ordinary chat line.
	TypeTalk MessageType = "TALK"
	// TypeEnter announces a participant joining a room.
	TypeEnter MessageType = "ENTER"
)

const (
	// MaxSenderLength bounds Message.Sender in characters.
	MaxSenderLength = 50
	// MaxContentLength bounds Message.Content in characters.
	MaxContentLength = 1000
)

// Message is the JSON payload of a chat PUBLISH frame.
type Message struct {
	RoomID    string      `json:"roomId"`
	Sender    string      `json:"sender"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type,omitempty"`
	MessageID string      `json:"messageId,omitempty"`
	CreatedAt string      `json:"createdAt,omitempty"`
	Read      bool        `json:"read"`
}
