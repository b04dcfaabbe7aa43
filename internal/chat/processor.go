package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	// ErrInvalidMessage is wrapped by every validation failure.
	ErrInvalidMessage = errors.New("invalid chat message")
)

// Processor assigns identifiers and timestamps to chat messages and applies
// the room rules before they are routed. It holds no mutable state.
type Processor struct {
	now   func() time.Time
	newID func() string
}

// NewProcessor returns a Processor using the wall clock and random UUIDs.
func NewProcessor() *Processor {
	return &Processor{
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// Process returns the processed copy of msg addressed to destination.
func (p *Processor) Process(_ context.Context, destination string, msg Message) (Message, error) {
	msg.RoomID = destination
	if msg.Type == "" {
		msg.Type = TypeTalk
	}

	switch msg.Type {
	case TypeTalk:
		if strings.TrimSpace(msg.Content) == "" {
			return Message{}, fmt.Errorf("%w: content is required", ErrInvalidMessage)
		}
	case TypeEnter:
		msg.Content = msg.Sender + " joined the room"
	default:
		return Message{}, fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, msg.Type)
	}

	if utf8.RuneCountInString(msg.Sender) > MaxSenderLength {
		return Message{}, fmt.Errorf("%w: sender exceeds %d characters", ErrInvalidMessage, MaxSenderLength)
	}
	if utf8.RuneCountInString(msg.Content) > MaxContentLength {
		return Message{}, fmt.Errorf("%w: content exceeds %d characters", ErrInvalidMessage, MaxContentLength)
	}

	if msg.MessageID == "" {
		msg.MessageID = p.newID()
	}
	if msg.CreatedAt == "" {
		msg.CreatedAt = p.now().UTC().Format(time.RFC3339Nano)
	}
	return msg, nil
}
