package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gateway/internal/pubsub"
)

// keepAliveInterval bounds the gap between SSE keep-alive comments
// (spec.md §4.6, "≤ every 15 s").
const keepAliveInterval = 15 * time.Second

// SubscribeHandler implements the SSE half of the pub/sub multiplexer
// (C6): GET /SUBSCRIBE/<channel> streams every payload published to
// that channel until the client disconnects.
type SubscribeHandler struct {
	hub    *pubsub.Hub
	logger *slog.Logger
}

// NewSubscribeHandler builds a SubscribeHandler bound to the shared
// pub/sub hub.
func NewSubscribeHandler(hub *pubsub.Hub, logger *slog.Logger) *SubscribeHandler {
	return &SubscribeHandler{hub: hub, logger: logger.With(slog.String("component", "subscribe_handler"))}
}

// Subscribe streams one channel's messages as Server-Sent Events.
func (h *SubscribeHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.hub.Subscribe(channel)
	defer sub.Close()

	ctx := r.Context()
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			if msg.Lagged {
				fmt.Fprint(w, "event: error\ndata: lagged\n\n")
			} else {
				fmt.Fprintf(w, "data: %s\n\n", msg.Payload)
			}
			flusher.Flush()

		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}
