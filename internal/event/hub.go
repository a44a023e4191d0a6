package event

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/italolelis/mediafetch/internal/logctx"
)

const subscriberBuffer = 64

// Envelope is a marshaled event ready for the wire.
type Envelope struct {
	Name string
	Data []byte
}

// Hub fans events out to every connected push-channel subscriber. A slow
// subscriber loses events rather than blocking the emitters.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Envelope]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Envelope]struct{})}
}

// Subscribe registers a new subscriber and returns its channel plus a
// cancel function that must be called when the subscriber goes away.
func (h *Hub) Subscribe() (<-chan Envelope, func()) {
	ch := make(chan Envelope, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}

	return ch, cancel
}

// Notify marshals the event and broadcasts it to all subscribers.
func (h *Hub) Notify(ctx context.Context, e Event) {
	logger := logctx.LoggerFromContext(ctx)

	data, err := json.Marshal(e)
	if err != nil {
		logger.Error("failed to marshal event", "event", e.Name(), "err", err)

		return
	}

	env := Envelope{Name: e.Name(), Data: data}

	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- env:
		default:
			logger.Warn("dropping event for slow subscriber", "event", e.Name())
		}
	}
}

// SubscriberCount returns the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs)
}

// Multi returns a Notifier that forwards each event to every given notifier
// in order.
func Multi(notifiers ...Notifier) Notifier {
	return NotifierFunc(func(ctx context.Context, e Event) {
		for _, n := range notifiers {
			n.Notify(ctx, e)
		}
	})
}
