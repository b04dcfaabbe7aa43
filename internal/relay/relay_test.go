package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	destination string
	payload     string
}

type recordingLocal struct {
	mu   sync.Mutex
	seen []delivery
}

func (l *recordingLocal) Fanout(destination string, payload []byte) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, delivery{destination: destination, payload: string(payload)})
	return 1
}

func (l *recordingLocal) deliveries() []delivery {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]delivery(nil), l.seen...)
}

func newClient(t *testing.T, mr *miniredis.Miniredis) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

// TestRelayAcrossNodes publishes on one node and expects exactly one local
// delivery on each node: the publisher's own plus the remote relay.
func TestRelayAcrossNodes(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	localA, localB := &recordingLocal{}, &recordingLocal{}
	nodeA := NewRedis(newClient(t, mr), "", localA, nil)
	nodeB := NewRedis(newClient(t, mr), "", localB, nil)
	require.NotEqual(t, nodeA.Origin(), nodeB.Origin())

	require.NoError(t, nodeA.Start(ctx))
	defer func() { assert.NoError(t, nodeA.Close()) }()
	require.NoError(t, nodeB.Start(ctx))
	defer func() { assert.NoError(t, nodeB.Close()) }()

	require.NoError(t, nodeA.Publish(ctx, "room/1", []byte(`{"command":"MESSAGE"}`)))

	require.Eventually(t, func() bool { return len(localB.deliveries()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, delivery{destination: "room/1", payload: `{"command":"MESSAGE"}`}, localB.deliveries()[0])

	// Give a possible self-echo time to arrive before asserting it was ignored.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, localA.deliveries(), 1)
}

func TestRelayPublishSurvivesRedisOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	local := &recordingLocal{}
	node := NewRedis(newClient(t, mr), "", local, nil)
	mr.Close()

	assert.NoError(t, node.Publish(context.Background(), "room/1", []byte("x")))
	assert.Len(t, local.deliveries(), 1, "local subscribers still receive the message")
}

func TestRelayIgnoresMalformedMessages(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	local := &recordingLocal{}
	node := NewRedis(newClient(t, mr), "custom", local, nil)
	require.NoError(t, node.Start(ctx))
	defer func() { assert.NoError(t, node.Close()) }()

	mr.Publish("custom", "not json")
	mr.Publish("custom", `{"origin":"other","destination":"room/2","payload":"eA=="}`)

	require.Eventually(t, func() bool { return len(local.deliveries()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, delivery{destination: "room/2", payload: "x"}, local.deliveries()[0])
}

func TestRelayStartTwiceAndCloseIdle(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	node := NewRedis(newClient(t, mr), "", &recordingLocal{}, nil)

	assert.NoError(t, node.Close(), "closing a relay that never started is a no-op")
	require.NoError(t, node.Start(ctx))
	assert.Error(t, node.Start(ctx))
	assert.NoError(t, node.Close())
}

func TestRelayRunStopsWithContext(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	node := NewRedis(newClient(t, mr), "", &recordingLocal{}, nil)

	errc := make(chan error, 1)
	go func() { errc <- node.Run(ctx) }()

	require.Eventually(t, func() bool { return len(mr.PubSubChannels("")) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
