// Package relay bridges router fan-out across server nodes over Redis
// pub/sub. Every node delivers its own publishes locally and relays them;
// publishes arriving from other nodes are delivered to local subscribers.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the Redis channel relayed messages travel on.
const DefaultChannel = "chatgate:relay"

// Local is the node-local fan-out a relay feeds. *router.Router implements it.
type Local interface {
	Fanout(destination string, payload []byte) int
}

type envelope struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Payload     []byte `json:"payload"`
}

// Redis is a gate publisher that fans out locally and across nodes.
type Redis struct {
	rdb     redis.UniversalClient
	channel string
	origin  string
	local   Local
	logger  *zap.Logger

	mu   sync.Mutex
	sub  *redis.PubSub
	done chan struct{}
}

// NewRedis returns a relay publishing on channel (DefaultChannel when empty).
func NewRedis(rdb redis.UniversalClient, channel string, local Local, logger *zap.Logger) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{
		rdb:     rdb,
		channel: channel,
		origin:  uuid.NewString(),
		local:   local,
		logger:  logger.Named("relay"),
	}
}

// Origin returns the node identifier stamped on relayed messages.
func (r *Redis) Origin() string {
	return r.origin
}

// Publish delivers payload to local subscribers, then relays it to other
// nodes. Relay failures are logged and do not fail the publish: local
// delivery already happened and fan-out is best-effort.
func (r *Redis) Publish(ctx context.Context, destination string, payload []byte) error {
	r.local.Fanout(destination, payload)

	data, err := json.Marshal(envelope{Origin: r.origin, Destination: destination, Payload: payload})
	if err != nil {
		return err
	}
	if err := r.rdb.Publish(ctx, r.channel, data).Err(); err != nil {
		r.logger.Warn("relay publish failed",
			zap.String("destination", destination),
			zap.Error(err))
	}
	return nil
}

// Start subscribes to the relay channel and begins delivering remote
// publishes. It returns once the subscription is confirmed.
func (r *Redis) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		return errors.New("relay already started")
	}

	sub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}
	r.sub = sub
	r.done = make(chan struct{})
	go r.loop(sub.Channel(), r.done)

	r.logger.Info("relay subscribed", zap.String("channel", r.channel), zap.String("origin", r.origin))
	return nil
}

// Run starts the relay and blocks until ctx is done.
func (r *Redis) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return r.Close()
}

// Close stops the subscription and waits for the delivery loop to exit.
func (r *Redis) Close() error {
	r.mu.Lock()
	sub, done := r.sub, r.done
	r.sub, r.done = nil, nil
	r.mu.Unlock()

	if sub == nil {
		return nil
	}
	err := sub.Close()
	<-done
	return err
}

func (r *Redis) loop(messages <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for msg := range messages {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			r.logger.Warn("dropping malformed relay message", zap.Error(err))
			continue
		}
		if env.Origin == r.origin || env.Destination == "" {
			continue
		}
		r.local.Fanout(env.Destination, env.Payload)
	}
}
