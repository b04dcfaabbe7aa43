package gate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an inbound frame for the gate's state table.
type Kind int

const (
	KindOther Kind = iota
	KindOpen
	KindSubscribe
	KindPublish
	KindClose
)

func (k Kind) String() string {
	switch k {
	case KindOpen:
		return "OPEN"
	case KindSubscribe:
		return "SUBSCRIBE"
	case KindPublish:
		return "PUBLISH"
	case KindClose:
		return "CLOSE"
	default:
		return "OTHER"
	}
}

// Client commands.
const (
	CommandConnect     = "CONNECT"
	CommandStomp       = "STOMP"
	CommandSubscribe   = "SUBSCRIBE"
	CommandUnsubscribe = "UNSUBSCRIBE"
	CommandSend        = "SEND"
	CommandDisconnect  = "DISCONNECT"
)

// Server commands.
const (
	CommandConnected = "CONNECTED"
	CommandMessage   = "MESSAGE"
	CommandReceipt   = "RECEIPT"
	CommandError     = "ERROR"
)

// Well-known header names.
const (
	HeaderID        = "id"
	HeaderReceipt   = "receipt"
	HeaderReceiptID = "receipt-id"
	HeaderSession   = "session"
	HeaderUserName  = "user-name"
	HeaderMessage   = "message"
)

var commandKinds = map[string]Kind{
	CommandConnect:    KindOpen,
	CommandStomp:      KindOpen,
	CommandSubscribe:  KindSubscribe,
	CommandSend:       KindPublish,
	CommandDisconnect: KindClose,
}

// ErrMalformedFrame is returned by DecodeFrame.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame is one unit of the messaging protocol, carried as a JSON text
// message. Headers hold native headers exactly as received.
type Frame struct {
	Command     string            `json:"command"`
	Destination string            `json:"destination,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        json.RawMessage   `json:"body,omitempty"`
}

// Kind classifies f by its command.
func (f Frame) Kind() Kind {
	return commandKinds[strings.ToUpper(strings.TrimSpace(f.Command))]
}

// Header returns the value of a native header, or "".
func (f Frame) Header(key string) string {
	return f.Headers[key]
}

// DecodeFrame parses one wire frame.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	if strings.TrimSpace(f.Command) == "" {
		return Frame{}, fmt.Errorf("%w: missing command", ErrMalformedFrame)
	}
	return f, nil
}

// Encode serializes f for the wire.
func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// ConnectedFrame acknowledges a successful OPEN.
func ConnectedFrame(sessionID, principal string) Frame {
	headers := map[string]string{HeaderSession: sessionID}
	if principal != "" {
		headers[HeaderUserName] = principal
	}
	return Frame{Command: CommandConnected, Headers: headers}
}

// MessageFrame carries a routed payload to subscribers.
func MessageFrame(destination string, body json.RawMessage) Frame {
	return Frame{Command: CommandMessage, Destination: destination, Body: body}
}

// ReceiptFrame acknowledges a frame that asked for a receipt.
func ReceiptFrame(receipt string) Frame {
	return Frame{Command: CommandReceipt, Headers: map[string]string{HeaderReceiptID: receipt}}
}

// ErrorFrame reports a rejection to the client.
func ErrorFrame(err error, receipt string) Frame {
	headers := map[string]string{HeaderMessage: err.Error()}
	if receipt != "" {
		headers[HeaderReceiptID] = receipt
	}
	return Frame{Command: CommandError, Headers: headers}
}
