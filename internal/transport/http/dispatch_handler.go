// Package http hosts the HTTP frontend (C7): command dispatch, SSE
// pub/sub delivery, and the WebSocket upgrade route.
package http

import (
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gateway/internal/acl"
	"gateway/internal/backend"
	"gateway/internal/command"
	gwerrors "gateway/internal/errors"
)

// DispatchHandler implements the command dispatch pipeline (C5):
// lease, parse, authorize, execute, encode.
type DispatchHandler struct {
	pool           *backend.Pool
	acl            *acl.Evaluator
	logger         *slog.Logger
	maxRequestSize int64
	defaultRoot    string
}

// NewDispatchHandler builds a DispatchHandler wired to the backend pool
// and ACL evaluator constructed at startup.
func NewDispatchHandler(pool *backend.Pool, evaluator *acl.Evaluator, logger *slog.Logger, maxRequestSize int64, defaultRoot string) *DispatchHandler {
	return &DispatchHandler{
		pool:           pool,
		acl:            evaluator,
		logger:         logger.With(slog.String("component", "dispatch_handler")),
		maxRequestSize: maxRequestSize,
		defaultRoot:    defaultRoot,
	}
}

// Dispatch implements the steps of spec.md §4.5 in their mandated
// order: lease, parse, authorize, execute, encode. The connection is
// leased before the request is even parsed, so a pool-exhausted backend
// surfaces as 503 ahead of any parse/ACL failure. Leasing does no network
// I/O; an unreachable backend is only detected when the command is issued.
func (h *DispatchHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.WriteHeader(http.StatusOK)
		return
	}

	lease, err := h.pool.Lease(r.Context())
	if err != nil {
		gwerrors.WriteHTTP(w, r, h.logger, err)
		return
	}
	defer lease.Release()

	path := chi.URLParam(r, "*")
	if path == "" && h.defaultRoot != "" {
		path = h.defaultRoot
	}

	var body []byte
	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestSize)
		b, err := io.ReadAll(r.Body)
		if err != nil {
			gwerrors.WriteHTTP(w, r, h.logger, gwerrors.LimitExceeded("request body too large"))
			return
		}
		body = b
	}

	req, err := command.ParseHTTPPath(path, r.URL.RawQuery, body)
	if err != nil {
		gwerrors.WriteHTTP(w, r, h.logger, gwerrors.EmptyCommand())
		return
	}

	peer := peerIP(r)
	if !h.acl.Allow(peer, r.Header.Get("Authorization"), req.Name) {
		gwerrors.WriteHTTP(w, r, h.logger, gwerrors.Forbidden())
		return
	}

	args := make([]interface{}, 0, len(req.Args)+1)
	args = append(args, req.Name)
	for _, a := range req.Args {
		args = append(args, a)
	}

	result, err := lease.Do(r.Context(), args...)
	if err != nil {
		gwerrors.WriteHTTP(w, r, h.logger, err)
		return
	}

	reply, err := backend.ToReply(result)
	if err != nil {
		gwerrors.WriteHTTP(w, r, h.logger, gwerrors.BackendCommand(err.Error()))
		return
	}

	encoded, err := command.Encode(req.Name, reply, req.Format, req.Callback)
	if err != nil {
		gwerrors.WriteHTTP(w, r, h.logger, gwerrors.InternalEncode(err.Error()))
		return
	}

	w.Header().Set("Content-Type", encoded.ContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(encoded.Body)
}

// peerIP extracts the client address for ACL matching, preferring
// RemoteAddr's host portion and falling back to the raw value if it
// isn't a host:port pair.
func peerIP(r *http.Request) net.IP {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	return net.ParseIP(host)
}
