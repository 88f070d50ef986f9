package pubsub

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub() *Hub {
	return New(nil, slog.Default())
}

func TestSubscribe_CreatesRegistryEntryAndSendsControl(t *testing.T) {
	h := newTestHub()
	sub := h.Subscribe("ch")
	require.NotNil(t, sub)

	select {
	case cmd := <-h.control:
		assert.Equal(t, controlSubscribe, cmd.kind)
		assert.Equal(t, "ch", cmd.channel)
	default:
		t.Fatal("expected a subscribe control command")
	}
}

func TestSubscribe_SecondSubscriberSharesEndpointNoControl(t *testing.T) {
	h := newTestHub()
	_ = h.Subscribe("ch")
	<-h.control // drain the first Subscribe control command

	_ = h.Subscribe("ch")
	select {
	case <-h.control:
		t.Fatal("second local subscriber should not re-issue a control command")
	default:
	}
}

func TestDispatch_DeliversInOrder(t *testing.T) {
	h := newTestHub()
	sub := h.Subscribe("ch")
	<-h.control

	h.dispatch("ch", "one")
	h.dispatch("ch", "two")

	m1 := <-sub.C()
	m2 := <-sub.C()
	assert.Equal(t, "one", m1.Payload)
	assert.Equal(t, "two", m2.Payload)
	assert.False(t, m1.Lagged)
}

func TestDispatch_OverflowMarksLagged(t *testing.T) {
	h := newTestHub()
	sub := h.Subscribe("ch")
	<-h.control

	for i := 0; i < subscriberBuffer+5; i++ {
		h.dispatch("ch", "payload")
	}

	h.mu.RLock()
	endpoint := h.channels["ch"]
	h.mu.RUnlock()
	assert.True(t, endpoint.lagged[sub])
}

func TestRelease_LastSubscriberRemovesEntryAndUnsubscribes(t *testing.T) {
	h := newTestHub()
	sub := h.Subscribe("ch")
	<-h.control

	sub.Close()

	select {
	case cmd := <-h.control:
		assert.Equal(t, controlUnsubscribe, cmd.kind)
		assert.Equal(t, "ch", cmd.channel)
	default:
		t.Fatal("expected an unsubscribe control command")
	}

	h.mu.RLock()
	_, exists := h.channels["ch"]
	h.mu.RUnlock()
	assert.False(t, exists)
}

func TestRelease_NotLastSubscriberKeepsEntry(t *testing.T) {
	h := newTestHub()
	sub1 := h.Subscribe("ch")
	<-h.control
	sub2 := h.Subscribe("ch")

	sub1.Close()

	select {
	case <-h.control:
		t.Fatal("should not unsubscribe while a subscriber remains")
	default:
	}

	h.mu.RLock()
	_, exists := h.channels["ch"]
	h.mu.RUnlock()
	assert.True(t, exists)

	sub2.Close()
}
