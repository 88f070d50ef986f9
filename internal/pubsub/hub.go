// Package pubsub implements the pub/sub multiplexer (C6): one upstream
// subscription shared by many local subscribers, each with a bounded
// ring buffer and Lagged-on-overflow semantics (spec.md §4.6).
package pubsub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// reconnectBackoff is the fixed upstream reconnect delay from
// spec.md §5 Timeouts.
const reconnectBackoff = 5 * time.Second

// subscriberBuffer is the default bounded ring-buffer capacity per
// local subscriber (spec.md §4.6).
const subscriberBuffer = 100

// Message is one payload delivered to a subscriber, or a Lagged marker
// standing in for payloads the subscriber's buffer dropped.
type Message struct {
	Channel string
	Payload string
	Lagged  bool
}

// Subscriber is a single local receiver of a channel's broadcast
// endpoint.
type Subscriber struct {
	ch      chan Message
	channel string
	hub     *Hub
	once    sync.Once
}

// C returns the channel payloads and Lagged markers arrive on.
func (s *Subscriber) C() <-chan Message { return s.ch }

// Close releases the subscriber. When the last subscriber on a channel
// is released, the channel is unsubscribed upstream (spec.md §4.6
// release protocol).
func (s *Subscriber) Close() {
	s.once.Do(func() { s.hub.release(s.channel, s) })
}

type broadcastEndpoint struct {
	subscribers map[*Subscriber]bool
	lagged      map[*Subscriber]bool
}

// Hub owns the pub/sub registry and the single upstream subscription.
type Hub struct {
	client *redis.Client
	logger *slog.Logger

	mu       sync.RWMutex
	channels map[string]*broadcastEndpoint

	control chan controlCommand
	cancel  context.CancelFunc
	done    chan struct{}
}

type controlKind int

const (
	controlSubscribe controlKind = iota
	controlUnsubscribe
)

type controlCommand struct {
	kind    controlKind
	channel string
}

// New constructs a Hub. Run must be called to start the background
// upstream task before any Subscribe is expected to become effective.
func New(client *redis.Client, logger *slog.Logger) *Hub {
	return &Hub{
		client:   client,
		logger:   logger,
		channels: make(map[string]*broadcastEndpoint),
		control:  make(chan controlCommand, 64),
		done:     make(chan struct{}),
	}
}

// Subscribe attaches a new local receiver to channel, creating the
// registry entry and requesting the upstream subscription on first use
// (spec.md §4.6 registry operations).
func (h *Hub) Subscribe(channel string) *Subscriber {
	h.mu.Lock()
	endpoint, exists := h.channels[channel]
	if !exists {
		endpoint = &broadcastEndpoint{
			subscribers: make(map[*Subscriber]bool),
			lagged:      make(map[*Subscriber]bool),
		}
		h.channels[channel] = endpoint
	}
	sub := &Subscriber{ch: make(chan Message, subscriberBuffer), channel: channel, hub: h}
	endpoint.subscribers[sub] = true
	h.mu.Unlock()

	if !exists {
		h.control <- controlCommand{kind: controlSubscribe, channel: channel}
	}
	return sub
}

// release removes sub from channel's registry entry; when no
// subscribers remain the entry is dropped and the channel is
// unsubscribed upstream.
func (h *Hub) release(channel string, sub *Subscriber) {
	h.mu.Lock()
	endpoint, ok := h.channels[channel]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(endpoint.subscribers, sub)
	delete(endpoint.lagged, sub)
	empty := len(endpoint.subscribers) == 0
	if empty {
		delete(h.channels, channel)
	}
	h.mu.Unlock()
	close(sub.ch)

	if empty {
		h.control <- controlCommand{kind: controlUnsubscribe, channel: channel}
	}
}

// dispatch pushes payload to every local subscriber of channel. A full
// subscriber buffer is a non-blocking drop; the subscriber is marked
// lagged and receives one Lagged marker ahead of its next delivered
// payload (spec.md §4.6 lag detection).
func (h *Hub) dispatch(channel, payload string) {
	h.mu.RLock()
	endpoint, ok := h.channels[channel]
	if !ok {
		h.mu.RUnlock()
		return
	}
	subs := make([]*Subscriber, 0, len(endpoint.subscribers))
	for sub := range endpoint.subscribers {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		h.mu.Lock()
		wasLagged := endpoint.lagged[sub]
		h.mu.Unlock()

		if wasLagged {
			select {
			case sub.ch <- (Message{Channel: channel, Lagged: true}):
				h.mu.Lock()
				delete(endpoint.lagged, sub)
				h.mu.Unlock()
			default:
				continue
			}
		}

		select {
		case sub.ch <- (Message{Channel: channel, Payload: payload}):
		default:
			h.mu.Lock()
			endpoint.lagged[sub] = true
			h.mu.Unlock()
		}
	}
}

// Run drives the background upstream task: connect, subscribe to every
// registered channel, then forward messages and registry changes until
// ctx is canceled. On upstream loss it logs and reconnects after
// reconnectBackoff, re-subscribing every still-registered channel
// (spec.md §4.6 background task state machine).
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := h.runConnected(ctx); err != nil {
			h.logger.ErrorContext(ctx, "pubsub upstream lost", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectBackoff):
		}
	}
}

// runConnected owns one upstream connection lifetime: subscribes to
// every channel currently registered, then loops delivering upstream
// messages and draining control commands until the connection ends or
// ctx is canceled.
func (h *Hub) runConnected(ctx context.Context) error {
	h.mu.RLock()
	initial := make([]string, 0, len(h.channels))
	for ch := range h.channels {
		initial = append(initial, ch)
	}
	h.mu.RUnlock()

	ps := h.client.Subscribe(ctx, initial...)
	defer ps.Close()

	msgs := ps.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil

		case cmd := <-h.control:
			switch cmd.kind {
			case controlSubscribe:
				if err := ps.Subscribe(ctx, cmd.channel); err != nil {
					return err
				}
			case controlUnsubscribe:
				if err := ps.Unsubscribe(ctx, cmd.channel); err != nil {
					return err
				}
			}

		case msg, ok := <-msgs:
			if !ok {
				return errors.New("upstream message channel closed")
			}
			h.dispatch(msg.Channel, msg.Payload)
		}
	}
}

// Close stops the background task and waits for it to exit.
func (h *Hub) Close() {
	if h.cancel != nil {
		h.cancel()
	}
	<-h.done
}

// Start launches Run in its own goroutine, wiring cancel for Close.
func (h *Hub) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	h.cancel = cancel
	go h.Run(ctx)
}
