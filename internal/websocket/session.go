// Package websocket implements the WebSocket frontend (C8): per-frame
// command dispatch and SUBSCRIBE interception binding to the pub/sub
// multiplexer (spec.md §4.6/§4.7).
package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"gateway/internal/acl"
	"gateway/internal/backend"
	"gateway/internal/command"
	"gateway/internal/pubsub"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	outboundBuffer = 256
)

// Session is one upgraded WebSocket connection. The peer IP and
// Authorization header are captured once at upgrade time and applied
// to every frame's ACL check, per spec.md §9 open question (b).
type Session struct {
	id     string
	conn   *websocket.Conn
	pool   *backend.Pool
	acl    *acl.Evaluator
	hub    *pubsub.Hub
	logger *slog.Logger

	peerIP     net.IP
	authHeader string

	send chan []byte
	subs []*pubsub.Subscriber
}

// NewSession wires a Session to the command dispatch and pub/sub
// dependencies shared with the HTTP frontend.
func NewSession(conn *websocket.Conn, pool *backend.Pool, evaluator *acl.Evaluator, hub *pubsub.Hub, peerIP net.IP, authHeader string, logger *slog.Logger) *Session {
	id := uuid.New().String()
	return &Session{
		id:         id,
		conn:       conn,
		pool:       pool,
		acl:        evaluator,
		hub:        hub,
		logger:     logger.With(slog.String("component", "websocket.session"), slog.String("client_id", id)),
		peerIP:     peerIP,
		authHeader: authHeader,
		send:       make(chan []byte, outboundBuffer),
	}
}

// Serve launches the read and write pumps and blocks until both exit.
func (s *Session) Serve() {
	done := make(chan struct{})
	go func() {
		s.writePump()
		close(done)
	}()
	s.readPump()
	<-done

	for _, sub := range s.subs {
		sub.Close()
	}
}

// readPump decodes each inbound text frame as a JSON-array command
// (spec.md §4.1 WebSocket form). Malformed frames are dropped, not
// fatal to the connection.
func (s *Session) readPump() {
	defer s.conn.Close()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.ErrorContext(context.Background(), "unexpected close", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		req, ok := command.ParseWebSocketFrame(bytes.TrimSpace(raw))
		if !ok {
			continue
		}

		s.handleFrame(req)
	}
}

// handleFrame dispatches one parsed frame: SUBSCRIBE is intercepted
// and bound to the pub/sub hub; everything else leases a connection
// before authorizing and executing, mirroring the HTTP dispatcher's
// lease-before-ACL ordering (spec.md §4.5 step 1), always encoded as
// JSON.
func (s *Session) handleFrame(req *command.Request) {
	if strings.EqualFold(req.Name, "SUBSCRIBE") && len(req.Args) == 1 {
		s.subscribe(req.Name, string(req.Args[0]))
		return
	}

	lease, err := s.pool.Lease(context.Background())
	if err != nil {
		s.sendJSON(req.Name, command.StatusReply(err.Error()))
		return
	}
	defer lease.Release()

	if !s.acl.Allow(s.peerIP, s.authHeader, req.Name) {
		s.sendJSON(req.Name, command.StatusReply("Forbidden"))
		return
	}

	args := make([]interface{}, 0, len(req.Args)+1)
	args = append(args, req.Name)
	for _, a := range req.Args {
		args = append(args, a)
	}

	cmd, err := lease.Do(context.Background(), args...)
	if err != nil {
		s.sendJSON(req.Name, command.StatusReply(err.Error()))
		return
	}

	reply, err := backend.ToReply(cmd)
	if err != nil {
		s.sendJSON(req.Name, command.StatusReply(err.Error()))
		return
	}

	encoded, err := command.Encode(req.Name, reply, command.FormatJSON, "")
	if err != nil {
		return
	}
	s.enqueue(encoded.Body)
}

// subscribe attaches a new pub/sub receiver and starts a goroutine
// forwarding its payloads as
// {"<command>": ["message", "<channel>", "<payload>"]} frames
// (spec.md §4.6 Delivery to WebSocket). Multiple simultaneous
// subscriptions are serialized through the shared outbound queue.
func (s *Session) subscribe(cmdName string, channel string) {
	sub := s.hub.Subscribe(channel)
	s.subs = append(s.subs, sub)

	go func() {
		for msg := range sub.C() {
			frame := []string{"message", msg.Channel, msg.Payload}
			if msg.Lagged {
				frame = []string{"lagged", msg.Channel}
			}
			body, err := json.Marshal(map[string][]string{cmdName: frame})
			if err != nil {
				continue
			}
			s.enqueue(body)
		}
	}()
}

func (s *Session) sendJSON(name string, reply command.Reply) {
	encoded, err := command.Encode(name, reply, command.FormatJSON, "")
	if err != nil {
		return
	}
	s.enqueue(encoded.Body)
}

// enqueue pushes a frame onto the outbound queue; a full queue drops
// the frame rather than blocking the caller.
func (s *Session) enqueue(body []byte) {
	select {
	case s.send <- body:
	default:
		s.logger.WarnContext(context.Background(), "outbound queue full, dropping frame")
	}
}

// writePump serializes delivery of every outbound frame plus periodic
// pings, mirroring the read/write pump split common to gorilla
// websocket servers.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
