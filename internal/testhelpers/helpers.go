// Package testhelpers provides common utilities for testing the chat gate
// over real HTTP and WebSocket connections.
//
// It covers test servers, plain HTTP requests, WebSocket dialing with an
// allowed Origin, and reading and writing protocol frames with timeouts so a
// misbehaving server fails a test instead of hanging it.
package testhelpers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/chatgate/internal/gate"
)

const (
	// TestOrigin is the Origin header sent by ConnectWebSocket.
	TestOrigin = "http://localhost:8080"
	// ReadTimeout bounds every frame read.
	ReadTimeout = 2 * time.Second
)

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that should be closed after use.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// WebSocketURL turns an httptest server URL into the URL of its /ws endpoint.
func WebSocketURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, expected) {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// ConnectWebSocket dials url with an allowed Origin header.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	return ConnectWebSocketWithOrigin(url, TestOrigin)
}

// ConnectWebSocketWithOrigin dials url presenting origin; an empty origin
// sends no Origin header.
func ConnectWebSocketWithOrigin(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// MustConnect dials url and registers the connection for cleanup.
func MustConnect(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, err := ConnectWebSocket(url)
	if err != nil {
		t.Fatalf("Failed to connect to %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// WriteFrame encodes f and sends it as one text message.
func WriteFrame(conn *websocket.Conn, f gate.Frame) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// ReadFrame reads and decodes the next frame, waiting at most timeout.
func ReadFrame(conn *websocket.Conn, timeout time.Duration) (gate.Frame, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return gate.Frame{}, err
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return gate.Frame{}, err
	}
	var f gate.Frame
	err = json.Unmarshal(data, &f)
	return f, err
}

// MustSend writes f or fails the test.
func MustSend(t *testing.T, conn *websocket.Conn, f gate.Frame) {
	t.Helper()
	if err := WriteFrame(conn, f); err != nil {
		t.Fatalf("Failed to send %s frame: %v", f.Command, err)
	}
}

// ExpectFrame reads the next frame and fails the test unless its command is
// command.
func ExpectFrame(t *testing.T, conn *websocket.Conn, command string) gate.Frame {
	t.Helper()
	f, err := ReadFrame(conn, ReadTimeout)
	if err != nil {
		t.Fatalf("Expected %s frame, read failed: %v", command, err)
	}
	if f.Command != command {
		t.Fatalf("Expected %s frame, got %s (headers %v)", command, f.Command, f.Headers)
	}
	return f
}

// ExpectNoFrame fails the test if a frame arrives within wait. The read
// deadline it sets leaves conn unreadable afterwards, so call it last.
func ExpectNoFrame(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()
	if f, err := ReadFrame(conn, wait); err == nil {
		t.Fatalf("Expected no frame, got %s (headers %v)", f.Command, f.Headers)
	}
}

// ExpectClosed waits for the server to close conn, draining any frames
// written before the close.
func ExpectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	deadline := time.Now().Add(ReadTimeout)
	for {
		_, err := ReadFrame(conn, time.Until(deadline))
		if err == nil {
			continue
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			t.Fatalf("Expected connection to close, still open: %v", err)
		}
		return
	}
}

// ConnectFrame builds an OPEN frame carrying token as a bearer credential.
// An empty token yields a frame without credentials.
func ConnectFrame(token string) gate.Frame {
	f := gate.Frame{Command: gate.CommandConnect, Headers: map[string]string{}}
	if token != "" {
		f.Headers["Authorization"] = "Bearer " + token
	}
	return f
}

// SubscribeFrame builds a SUBSCRIBE frame with an id and a receipt request.
func SubscribeFrame(destination, id string) gate.Frame {
	return gate.Frame{
		Command:     gate.CommandSubscribe,
		Destination: destination,
		Headers: map[string]string{
			gate.HeaderID:      id,
			gate.HeaderReceipt: id,
		},
	}
}

// SendFrame builds a PUBLISH frame whose body is the JSON encoding of body.
func SendFrame(t *testing.T, destination string, body any) gate.Frame {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to encode body: %v", err)
	}
	return gate.Frame{Command: gate.CommandSend, Destination: destination, Body: data}
}

// OpenSession sends CONNECT with token and waits for CONNECTED.
func OpenSession(t *testing.T, conn *websocket.Conn, token string) gate.Frame {
	t.Helper()
	MustSend(t, conn, ConnectFrame(token))
	return ExpectFrame(t, conn, gate.CommandConnected)
}

// Subscribe subscribes conn to destination and waits for the receipt.
func Subscribe(t *testing.T, conn *websocket.Conn, destination, id string) {
	t.Helper()
	MustSend(t, conn, SubscribeFrame(destination, id))
	receipt := ExpectFrame(t, conn, gate.CommandReceipt)
	if got := receipt.Header(gate.HeaderReceiptID); got != id {
		t.Fatalf("Expected receipt %q, got %q", id, got)
	}
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
