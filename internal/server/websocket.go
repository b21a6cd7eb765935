package server

import (
	"net/http"
	"time"

	"github.com/kingdomforge/kingdom-server-go/internal/config"
)

// NewHTTPServer routes the WebSocket endpoint and a liveness probe.
func NewHTTPServer(cfg config.WebSocketConfig, hub *Hub) *http.Server {
	path := cfg.Path
	if path == "" {
		path = "/ws"
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, hub.ServeWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
