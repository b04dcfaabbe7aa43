package server

import "net/http"

// Routes returns the server's HTTP routes: the health check, the WebSocket
// endpoint, the browser test page and, when metrics are enabled, /metrics.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.HealthHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	mux.HandleFunc("/test", s.TestPageHandler)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}
