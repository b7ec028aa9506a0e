package httpx

import (
	"net/http"

	"log/slog"

	"docsync-relay/internal/app"
	"docsync-relay/internal/relay"
	"docsync-relay/pkg/metrics"
)

// NewRouter wires up the HTTP routes and middleware. Every path that is
// not a health or metrics endpoint is a websocket room.
func NewRouter(cfg app.Config, logger *slog.Logger, hub *relay.Hub) http.Handler {
	mw := NewMiddleware(cfg)

	mux := http.NewServeMux()

	// Health / readiness / metrics
	mux.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/metrics", metrics.Handler())

	// Everything else resolves to a room by path
	mux.Handle("/", http.HandlerFunc(hub.ServeWS))

	return mw.Wrap(mux)
}
