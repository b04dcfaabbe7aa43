package server

import (
	"context"
	"errors"
	"io"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/chatgate/internal/auth"
	"github.com/Tyrowin/chatgate/internal/gate"
	"github.com/Tyrowin/chatgate/internal/router"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

var errRateLimited = errors.New("rate limit exceeded")

// Client is one WebSocket connection. It owns a gate session, feeds inbound
// frames through the gate in arrival order and is the session's delivery
// sink for routed messages.
type Client struct {
	conn           *websocket.Conn
	hub            *Hub
	gate           *gate.Gate
	session        *gate.Session
	addr           string
	query          string
	logger         *zap.Logger
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
	ctx            context.Context
	cancel         context.CancelFunc

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// NewClient binds conn to a fresh session. query is the raw query string of
// the upgrade request; it is offered to the gate on OPEN frames that carry
// no queryString header of their own.
func NewClient(conn *websocket.Conn, hub *Hub, g *gate.Gate, cfg Config, addr, query string) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	ctx, cancel := context.WithCancel(hub.ctx)

	c := &Client{
		conn:           conn,
		hub:            hub,
		gate:           g,
		addr:           addr,
		query:          query,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit),
		rateLimit:      cfg.RateLimit,
		ctx:            ctx,
		cancel:         cancel,
		send:           make(chan []byte, sendBuffer),
	}
	c.session = gate.NewSession(c)
	c.logger = hub.logger.With(zap.String("remote", addr), zap.String("session", c.session.ID()))
	return c
}

// Session returns the gate session bound to this connection.
func (c *Client) Session() *gate.Session {
	return c.session
}

// Deliver queues payload for the write pump without blocking. A client
// whose buffer is full is closed and reported as slow.
func (c *Client) Deliver(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return router.ErrSubscriberGone
	}

	select {
	case c.send <- payload:
		return nil
	default:
		c.closeSendLocked()
		c.logger.Warn("closing client with full send buffer")
		return router.ErrSubscriberSlow
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeSendLocked()
}

func (c *Client) closeSendLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) reply(f gate.Frame) {
	data, err := f.Encode()
	if err != nil {
		c.logger.Error("encoding reply frame", zap.String("command", f.Command), zap.Error(err))
		return
	}
	if err := c.Deliver(data); err != nil {
		c.logger.Debug("reply dropped", zap.String("command", f.Command), zap.Error(err))
	}
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("setting initial read deadline", zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Warn("setting read deadline in pong handler", zap.Error(err))
		}
		return nil
	})
}

// logReadError classifies the error that ended the read loop.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Warn("frame exceeded maximum size", zap.Int64("limit", c.maxMessageSize))
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.logger.Info("client disconnected", zap.Error(err))
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.logger.Info("client connection closed", zap.Error(err))
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.logger.Warn("unexpected websocket close", zap.Error(err))
	default:
		c.logger.Warn("websocket read error", zap.Error(err))
	}
}

// checkRateLimit reports whether the next frame may be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		c.logger.Warn("rate limit exceeded; discarding frame",
			zap.Int("burst", c.rateLimit.Burst),
			zap.Duration("refill_interval", c.rateLimit.RefillInterval))
		return false
	}
	return true
}

// processFrame runs one inbound frame through the gate and answers it. It
// returns false when the connection must be torn down.
func (c *Client) processFrame(raw []byte) bool {
	f, err := gate.DecodeFrame(raw)
	if err != nil {
		c.logger.Debug("malformed frame", zap.Error(err))
		c.reply(gate.ErrorFrame(err, ""))
		return true
	}
	if f.Kind() == gate.KindOpen {
		f = c.withHandshakeQuery(f)
	}

	receipt := f.Header(gate.HeaderReceipt)
	if err := c.gate.Handle(c.ctx, c.session, f); err != nil {
		c.reply(gate.ErrorFrame(err, receipt))
		return !gate.IsFatal(err)
	}

	if f.Kind() == gate.KindOpen {
		c.reply(gate.ConnectedFrame(c.session.ID(), c.session.Principal()))
	}
	if receipt != "" {
		c.reply(gate.ReceiptFrame(receipt))
	}
	return f.Kind() != gate.KindClose
}

func (c *Client) withHandshakeQuery(f gate.Frame) gate.Frame {
	if c.query == "" {
		return f
	}
	if _, ok := f.Headers[auth.QueryStringHeader]; ok {
		return f
	}
	headers := make(map[string]string, len(f.Headers)+1)
	maps.Copy(headers, f.Headers)
	headers[auth.QueryStringHeader] = c.query
	f.Headers = headers
	return f
}

func (c *Client) readPump() {
	defer c.finish()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.checkRateLimit() {
			c.reply(gate.ErrorFrame(errRateLimited, ""))
			continue
		}

		if !c.processFrame(raw) {
			return
		}
	}
}

// finish releases the session and hands the client back to the hub. The
// write pump flushes queued frames and then closes the connection.
func (c *Client) finish() {
	if err := c.gate.Handle(context.Background(), c.session, gate.Frame{Command: gate.CommandDisconnect}); err != nil {
		c.logger.Warn("releasing session", zap.Error(err))
	}
	c.cancel()
	c.hub.unregisterClient(c)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection.
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.logger.Warn("closing connection", zap.Error(err))
	}
}

// handleMessage writes one outbound frame and returns false if the
// connection should be closed.
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("setting write deadline", zap.Error(err))
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
			c.logger.Warn("writing close message", zap.Error(err))
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn("writing frame", zap.Error(err))
		}
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive.
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Warn("setting write deadline for ping", zap.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Warn("writing ping", zap.Error(err))
		return false
	}
	return true
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
