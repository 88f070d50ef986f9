package http

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"gateway/internal/acl"
	"gateway/internal/backend"
	"gateway/internal/config"
	"gateway/internal/pubsub"
	"gateway/internal/websocket"
)

// NewRouter wires the routes from spec.md §4.7: the catch-all command
// dispatcher, the SSE subscribe stream, and (when enabled) the
// WebSocket upgrade. The root route reuses the dispatcher directly so
// the GET / fallback behavior (SPEC_FULL.md Supplemented Features)
// falls out of the same empty-command parsing path instead of a
// special case.
func NewRouter(cfg *config.Config, pool *backend.Pool, evaluator *acl.Evaluator, hub *pubsub.Hub, logger *slog.Logger) chi.Router {
	dispatch := NewDispatchHandler(pool, evaluator, logger, int64(cfg.HTTPMaxRequestSize), cfg.DefaultRoot)
	subscribe := NewSubscribeHandler(hub, logger)

	r := chi.NewRouter()

	r.HandleFunc("/", dispatch.Dispatch)
	r.Get("/SUBSCRIBE/*", subscribe.Subscribe)

	if cfg.Websockets {
		r.Get("/.json", websocket.Handler(pool, evaluator, hub, logger))
	}

	r.HandleFunc("/*", dispatch.Dispatch)

	return r
}
