package cache

import "sync"

// Subscriber holds one stream's interest in a set of channel names. Created
// by Hub.Subscribe and torn down by Hub.Unsubscribe when the owning
// ReceiveEvents stream closes.
type Subscriber struct {
	hub      *Hub
	channels []string
	messages chan []byte
}

// Messages returns the channel payloads are delivered on. The caller reads
// from it until the stream is cancelled.
func (s *Subscriber) Messages() <-chan []byte { return s.messages }

// Hub is the publish/subscribe fan-out fabric. Channel names are opaque
// strings of shape "<channel_kind>:<id>"; publishing to a channel delivers
// the payload to every currently-registered subscriber of that name.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[*Subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[*Subscriber]struct{})}
}

// Subscribe registers interest in the given channel names and returns a
// Subscriber whose Messages() channel receives every future Publish to any
// of them. bufferSize bounds the per-subscriber pending queue
// (per_user_message_on_the_fly_limit); a full buffer causes Publish to drop
// the message for that subscriber rather than block the publisher.
func (h *Hub) Subscribe(channels []string, bufferSize int) *Subscriber {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	sub := &Subscriber{
		hub:      h,
		channels: append([]string(nil), channels...),
		messages: make(chan []byte, bufferSize),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range channels {
		set, ok := h.subscribers[ch]
		if !ok {
			set = make(map[*Subscriber]struct{})
			h.subscribers[ch] = set
		}
		set[sub] = struct{}{}
	}
	return sub
}

// Unsubscribe removes the subscriber from every channel it joined and closes
// its message channel. Safe to call once per Subscriber.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range sub.channels {
		if set, ok := h.subscribers[ch]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.subscribers, ch)
			}
		}
	}
	close(sub.messages)
}

// Publish delivers payload to every subscriber currently registered on
// channel. Fire-and-forget: a subscriber with a full buffer drops the
// message, per the cache layer's documented backpressure policy.
func (h *Hub) Publish(channel string, payload []byte) {
	h.mu.Lock()
	subs := make([]*Subscriber, 0, len(h.subscribers[channel]))
	for sub := range h.subscribers[channel] {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.messages <- payload:
		default:
		}
	}
}
