// Package router keeps the destination → subscriber registry and fans
// published payloads out to every current subscriber of a destination.
package router

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/Tyrowin/chatgate/internal/metrics"
)

var (
	// ErrSubscriberGone is returned by Subscriber.Deliver when the
	// subscriber's connection is closed. The router then drops it from
	// every destination.
	ErrSubscriberGone = errors.New("subscriber gone")
	// ErrSubscriberSlow is returned by Subscriber.Deliver when the payload
	// could not be queued without blocking.
	ErrSubscriberSlow = errors.New("subscriber too slow")
)

// Subscriber receives payloads for the destinations it subscribed to.
// Deliver must not block.
type Subscriber interface {
	ID() string
	Deliver(payload []byte) error
}

// Router is the subscriber registry. It is safe for concurrent use;
// registration and removal are atomic with respect to publish snapshots.
type Router struct {
	mu           sync.RWMutex
	destinations map[string]map[string]Subscriber
	subscribed   map[string]map[string]struct{}
	logger       *zap.Logger
	metrics      *metrics.Collector
}

// New returns an empty Router. logger and m may be nil.
func New(logger *zap.Logger, m *metrics.Collector) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		destinations: make(map[string]map[string]Subscriber),
		subscribed:   make(map[string]map[string]struct{}),
		logger:       logger.Named("router"),
		metrics:      m,
	}
}

// Subscribe registers sub for destination and reports whether it was newly
// added. Subscribing twice to the same destination keeps one registration.
func (r *Router) Subscribe(destination string, sub Subscriber) bool {
	id := sub.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.destinations[destination]
	if !ok {
		subs = make(map[string]Subscriber)
		r.destinations[destination] = subs
	}
	if _, exists := subs[id]; exists {
		return false
	}
	subs[id] = sub

	dests, ok := r.subscribed[id]
	if !ok {
		dests = make(map[string]struct{})
		r.subscribed[id] = dests
	}
	dests[destination] = struct{}{}
	return true
}

// Unsubscribe removes subscriber id from destination and reports whether it
// was registered.
func (r *Router) Unsubscribe(destination, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(destination, id)
}

// UnsubscribeAll removes subscriber id from every destination and returns
// how many registrations were dropped.
func (r *Router) UnsubscribeAll(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeAllLocked(id)
}

func (r *Router) removeLocked(destination, id string) bool {
	subs, ok := r.destinations[destination]
	if !ok {
		return false
	}
	if _, ok := subs[id]; !ok {
		return false
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(r.destinations, destination)
	}
	if dests, ok := r.subscribed[id]; ok {
		delete(dests, destination)
		if len(dests) == 0 {
			delete(r.subscribed, id)
		}
	}
	return true
}

func (r *Router) removeAllLocked(id string) int {
	dests := r.subscribed[id]
	removed := 0
	for destination := range dests {
		if subs, ok := r.destinations[destination]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(r.destinations, destination)
			}
			removed++
		}
	}
	delete(r.subscribed, id)
	return removed
}

// Publish implements the gate's publisher boundary on top of Fanout.
func (r *Router) Publish(_ context.Context, destination string, payload []byte) error {
	r.Fanout(destination, payload)
	return nil
}

// Fanout delivers payload to every subscriber of destination and returns the
// number of successful deliveries. Each subscriber receives at most one
// copy; a failing subscriber never affects the others. Subscribers reporting
// ErrSubscriberGone are removed afterwards.
func (r *Router) Fanout(destination string, payload []byte) int {
	r.metrics.Published()
	subs := r.snapshot(destination)
	if len(subs) == 0 {
		return 0
	}

	delivered := 0
	var gone []string
	for _, sub := range subs {
		err := r.safeDeliver(sub, payload)
		if err == nil {
			delivered++
			r.metrics.Delivery(metrics.DeliveryOK)
			continue
		}
		r.metrics.Delivery(metrics.DeliveryFailed)
		r.logger.Debug("delivery failed",
			zap.String("destination", destination),
			zap.String("subscriber", sub.ID()),
			zap.Error(err))
		if errors.Is(err, ErrSubscriberGone) {
			gone = append(gone, sub.ID())
		}
	}
	r.removeGone(gone)

	r.logger.Debug("published",
		zap.String("destination", destination),
		zap.Int("subscribers", len(subs)),
		zap.Int("delivered", delivered))
	return delivered
}

// snapshot returns the subscribers of destination at this instant.
func (r *Router) snapshot(destination string) []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.destinations[destination]
	out := make([]Subscriber, 0, len(subs))
	for _, sub := range subs {
		out = append(out, sub)
	}
	return out
}

func (r *Router) safeDeliver(sub Subscriber, payload []byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("recovered from panic in subscriber delivery",
				zap.String("subscriber", sub.ID()),
				zap.Any("panic", rec))
			err = ErrSubscriberGone
		}
	}()
	return sub.Deliver(payload)
}

func (r *Router) removeGone(ids []string) {
	if len(ids) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if n := r.removeAllLocked(id); n > 0 {
			r.logger.Info("removed disconnected subscriber", zap.String("subscriber", id), zap.Int("destinations", n))
		}
	}
}

// SubscriberCount returns the number of subscribers of destination.
func (r *Router) SubscriberCount(destination string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.destinations[destination])
}

// Destinations returns the number of destinations with at least one subscriber.
func (r *Router) Destinations() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.destinations)
}
