package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/chatgate/internal/metrics"
)

// Hub owns the set of live connections. It launches each client's pumps,
// tracks the session gauge and tears every connection down on shutdown.
// Message routing is the router's job, not the hub's.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	logger     *zap.Logger
	metrics    *metrics.Collector
}

// NewHub creates a Hub. Run must be called before clients can register.
func NewHub(logger *zap.Logger, m *metrics.Collector) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		logger:     logger.Named("hub"),
		metrics:    m,
	}
}

// Register hands c to the hub, which starts its pumps. It returns false once
// the hub is shutting down.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
		c.closeSend()
	}
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Run is the hub's event loop. It returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.logger.Warn("received nil client registration; skipping")
				continue
			}
			h.add(client)

		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

func (h *Hub) add(client *Client) {
	h.mutex.Lock()
	h.clients[client] = struct{}{}
	clientCount := len(h.clients)
	h.mutex.Unlock()

	h.metrics.SessionOpened()
	client.logger.Info("client registered", zap.Int("clients", clientCount))

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

func (h *Hub) remove(client *Client) {
	h.mutex.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	clientCount := len(h.clients)
	h.mutex.Unlock()

	client.closeSend()
	if ok {
		h.metrics.SessionClosed()
		client.logger.Info("client unregistered", zap.Int("clients", clientCount))
	}
}

// shutdownClients closes every live connection; the pumps unwind on their own.
func (h *Hub) shutdownClients() {
	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
		delete(h.clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		h.metrics.SessionClosed()
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			client.logger.Warn("closing client connection", zap.Error(err))
		}
	}

	h.logger.Info("closed client connections", zap.Int("count", len(clients)))
}

// Shutdown stops the hub and waits up to timeout for every client goroutine
// to finish.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("initiating hub shutdown")
	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub shutdown timed out; some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
