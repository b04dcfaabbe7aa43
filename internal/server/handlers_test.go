package server

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/Tyrowin/chatgate/internal/testhelpers"
)

// TestHealthHandler tests that the root path reports the server as running
// and unknown paths are not found.
func TestHealthHandler(t *testing.T) {
	ta := newTestApp(t, nil)

	resp := testhelpers.MakeRequest(t, http.MethodGet, ta.srv.URL+"/")
	defer func() { _ = resp.Body.Close() }()

	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	testhelpers.AssertContentType(t, resp, "text/plain")
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	if !strings.Contains(string(body), "chatgate is running") {
		t.Errorf("Unexpected health body %q", body)
	}

	missing := testhelpers.MakeRequest(t, http.MethodGet, ta.srv.URL+"/nope")
	defer func() { _ = missing.Body.Close() }()
	testhelpers.AssertStatusCode(t, missing, http.StatusNotFound)
}

// TestWebSocketHandlerMethodValidation tests that only GET may reach the
// upgrade path.
func TestWebSocketHandlerMethodValidation(t *testing.T) {
	ta := newTestApp(t, nil)

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		t.Run(method, func(t *testing.T) {
			resp := testhelpers.MakeRequest(t, method, ta.srv.URL+"/ws")
			defer func() { _ = resp.Body.Close() }()
			testhelpers.AssertStatusCode(t, resp, http.StatusMethodNotAllowed)
		})
	}
}

// TestWebSocketHandlerGETWithoutUpgrade tests that a plain GET is refused by
// the upgrader.
func TestWebSocketHandlerGETWithoutUpgrade(t *testing.T) {
	ta := newTestApp(t, nil)

	resp := testhelpers.MakeRequest(t, http.MethodGet, ta.srv.URL+"/ws")
	defer func() { _ = resp.Body.Close() }()
	testhelpers.AssertStatusCode(t, resp, http.StatusBadRequest)
}

// TestTestPageHandler tests that the browser page is served and speaks the
// frame protocol.
func TestTestPageHandler(t *testing.T) {
	ta := newTestApp(t, nil)

	resp := testhelpers.MakeRequest(t, http.MethodGet, ta.srv.URL+"/test")
	defer func() { _ = resp.Body.Close() }()

	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	testhelpers.AssertContentType(t, resp, "text/html")
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	for _, want := range []string{"command: 'CONNECT'", "command: 'SUBSCRIBE'", "command: 'SEND'", "Authorization"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("Test page is missing %q", want)
		}
	}
}

// TestMetricsEndpoint tests that gate activity shows up on /metrics.
func TestMetricsEndpoint(t *testing.T) {
	ta := newTestApp(t, nil)
	_ = ta.connect(t, "alice")

	resp := testhelpers.MakeRequest(t, http.MethodGet, ta.srv.URL+"/metrics")
	defer func() { _ = resp.Body.Close() }()

	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	for _, want := range []string{
		`chatgate_frames_total{kind="OPEN",result="accepted"} 1`,
		"chatgate_sessions_active 1",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("Metrics output is missing %q", want)
		}
	}
}

// TestCreateServer tests the HTTP server timeouts.
func TestCreateServer(t *testing.T) {
	srv := CreateServer(":0", http.NewServeMux())
	if srv.Addr != ":0" {
		t.Errorf("Expected addr :0, got %s", srv.Addr)
	}
	if srv.ReadTimeout == 0 || srv.WriteTimeout == 0 || srv.IdleTimeout == 0 || srv.ReadHeaderTimeout == 0 {
		t.Errorf("Expected all timeouts to be set: %+v", srv)
	}
}
