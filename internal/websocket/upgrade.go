package websocket

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"gateway/internal/acl"
	"gateway/internal/backend"
	"gateway/internal/pubsub"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Command clients are expected from arbitrary origins, same as the
	// HTTP frontend's CORS *; origin checking is not part of this
	// gateway's ACL model (peer IP and Authorization header are).
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler builds the GET /.json upgrade route (spec.md §4.7). Peer IP
// and Authorization header are captured here, once, per open
// question (b).
func Handler(pool *backend.Pool, evaluator *acl.Evaluator, hub *pubsub.Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		peerIP := peerIPFromRequest(r)
		authHeader := r.Header.Get("Authorization")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.ErrorContext(r.Context(), "websocket upgrade failed", "error", err)
			return
		}

		session := NewSession(conn, pool, evaluator, hub, peerIP, authHeader, logger)
		session.Serve()
	}
}

func peerIPFromRequest(r *http.Request) net.IP {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	return net.ParseIP(host)
}
