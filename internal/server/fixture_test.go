package server

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"github.com/Tyrowin/chatgate/internal/chat"
	"github.com/Tyrowin/chatgate/internal/gate"
	"github.com/Tyrowin/chatgate/internal/testhelpers"
)

const testSecret = "server-test-secret-server-test-secret"

type testApp struct {
	app *App
	srv *httptest.Server
	ws  string
}

func testConfig() Config {
	cfg := *NewConfig()
	cfg.AllowedOrigins = []string{testhelpers.TestOrigin}
	cfg.JWT.Secret = testSecret
	cfg.RateLimit = RateLimitConfig{Burst: 100, RefillInterval: time.Second}
	cfg.Users = []UserConfig{
		{Principal: "alice", Roles: []string{"USER"}},
		{Principal: "bob", Roles: []string{"USER"}},
		{Principal: "carol", Roles: []string{"USER", "ADMIN"}},
	}
	return cfg
}

// newTestApp builds an App from the test configuration, runs its hub and
// serves its routes from an httptest server.
func newTestApp(t *testing.T, customize func(cfg *Config)) *testApp {
	t.Helper()

	cfg := testConfig()
	if customize != nil {
		customize(&cfg)
	}

	app, err := Build(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	go app.Server.Hub().Run()

	srv := httptest.NewServer(app.Server.Routes())
	t.Cleanup(func() {
		if err := app.Server.Hub().Shutdown(2 * time.Second); err != nil {
			t.Errorf("Hub shutdown failed: %v", err)
		}
		srv.Close()
	})

	return &testApp{app: app, srv: srv, ws: testhelpers.WebSocketURL(srv.URL)}
}

func (ta *testApp) token(t *testing.T, principal string) string {
	t.Helper()
	token, err := ta.app.Tokens.Issue(principal, nil)
	if err != nil {
		t.Fatalf("Failed to issue token for %s: %v", principal, err)
	}
	return token
}

// connect dials the server and opens an authenticated session as principal.
func (ta *testApp) connect(t *testing.T, principal string) *websocket.Conn {
	t.Helper()
	conn := testhelpers.MustConnect(t, ta.ws)
	connected := testhelpers.OpenSession(t, conn, ta.token(t, principal))
	if got := connected.Header(gate.HeaderUserName); got != principal {
		t.Fatalf("Expected CONNECTED for %s, got user-name %q", principal, got)
	}
	return conn
}

// waitForSubscribers polls the router until destination has want subscribers.
func (ta *testApp) waitForSubscribers(t *testing.T, destination string, want int) {
	t.Helper()
	deadline := time.Now().Add(testhelpers.ReadTimeout)
	for time.Now().Before(deadline) {
		if ta.app.Router.SubscriberCount(destination) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Expected %d subscribers on %s, have %d", want, destination, ta.app.Router.SubscriberCount(destination))
}

func decodeMessage(t *testing.T, f gate.Frame) chat.Message {
	t.Helper()
	var msg chat.Message
	if err := json.Unmarshal(f.Body, &msg); err != nil {
		t.Fatalf("Failed to decode MESSAGE body %s: %v", f.Body, err)
	}
	return msg
}
