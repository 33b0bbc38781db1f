// Package eventsvc implements SendEvent, ReceiveEvents and Synchronize.
package eventsvc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"limit/internal/apperr"
	"limit/internal/cache"
	"limit/internal/metrics"
	"limit/internal/services"
	"limit/internal/store"
	"limit/internal/taskqueue"
)

// Service implements SendEvent, ReceiveEvents and Synchronize against an
// injected Services aggregate.
type Service struct {
	svc *services.Services
}

func New(svc *services.Services) *Service {
	return &Service{svc: svc}
}

func channelName(kind, subscribedTo string) string {
	return kind + ":" + subscribedTo
}

// SendEvent validates that the event carries message content, assigns a
// fresh event id, publishes it to the receiver's channel if this server owns
// the receiver, and durably persists it via the background queue.
// Cross-server delivery is out of scope and reports Unimplemented. The
// token-derived caller identity is accepted for symmetry with the other
// service methods but does not override the client-submitted evt.Sender.
func (s *Service) SendEvent(ctx context.Context, _ string, evt store.Event) (store.Event, error) {
	if evt.ReceiverID == "" || evt.Text == "" {
		return store.Event{}, apperr.New(apperr.Cancelled, "event is missing a required field")
	}

	if evt.ReceiverServer != s.svc.ServerURL {
		return store.Event{}, apperr.New(apperr.Unimplemented, "cross-server delivery is not supported")
	}

	m := metrics.Start(s.svc.Metrics, "send_event")
	defer m.Discard()

	evt.EventID = uuid.NewString()
	if evt.Extensions == nil {
		evt.Extensions = map[string]string{}
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return store.Event{}, apperr.Wrap(apperr.Internal, "encode event", err)
	}
	s.svc.Hub.Publish(channelName("message", evt.ReceiverID), payload)
	m.Renew("send_event.persist")

	head := store.EventHead{ID: evt.EventID, Timestamp: evt.Timestamp, Sender: evt.Sender, EventType: "message"}
	extensions, err := json.Marshal(evt.Extensions)
	if err != nil {
		return store.Event{}, apperr.Wrap(apperr.Internal, "encode extensions", err)
	}
	body := store.MessageBody{
		EventID:        evt.EventID,
		ReceiverID:     evt.ReceiverID,
		ReceiverServer: evt.ReceiverServer,
		Text:           evt.Text,
		Extensions:     string(extensions),
	}

	s.svc.Queue.Submit(taskqueue.Task{
		Name: "store_event",
		Run: func(ctx context.Context) error {
			return s.svc.Store.InsertEvent(ctx, head)
		},
	})
	s.svc.Queue.Submit(taskqueue.Task{
		Name: "store_message",
		Run: func(ctx context.Context) error {
			return s.svc.Store.InsertMessageBody(ctx, body)
		},
	})

	m.End()
	return evt, nil
}

// ReceiveEvents resolves the caller's subscription set (cache-then-store,
// same fallback shape as authsvc.loadAuthBundle) and returns a live
// Subscriber the transport layer can stream from until the context is
// cancelled.
func (s *Service) ReceiveEvents(ctx context.Context, userID string) (*cache.Subscriber, error) {
	m := metrics.Start(s.svc.Metrics, "receive_events.subscribe")
	defer m.Discard()

	channels, err := s.resolveChannels(ctx, userID)
	if err != nil {
		return nil, err
	}

	sub := s.svc.Hub.Subscribe(channels, s.svc.PerUserMessageLimit)
	m.End()
	return sub, nil
}

func (s *Service) resolveChannels(ctx context.Context, userID string) ([]string, error) {
	cacheKey := userID + ":subscribed"
	if cached, ok := s.svc.KV.Get(cacheKey); ok {
		if s.svc.Metrics != nil {
			s.svc.Metrics.CacheHits.WithLabelValues("receive_events").Inc()
		}
		var channels []string
		if err := json.Unmarshal([]byte(cached), &channels); err != nil {
			return nil, apperr.Wrap(apperr.Internal, "decode cached subscriptions", err)
		}
		return channels, nil
	}

	if s.svc.Metrics != nil {
		s.svc.Metrics.CacheMisses.WithLabelValues("receive_events").Inc()
	}

	subs, err := s.svc.Store.ListSubscriptions(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "load subscriptions", err)
	}
	channels := make([]string, len(subs))
	for i, sub := range subs {
		channels[i] = channelName(sub.ChannelKind, sub.SubscribedTo)
	}

	if encoded, err := json.Marshal(channels); err == nil {
		s.svc.KV.Set(cacheKey, string(encoded))
	}
	return channels, nil
}

// Synchronize replays events in the half-open range (from, to] for the
// caller, clamped to the store's count bounds.
func (s *Service) Synchronize(ctx context.Context, userID string, from, to store.RangeBound, count int) ([]store.Event, error) {
	m := metrics.Start(s.svc.Metrics, "synchronize")
	defer m.Discard()

	events, err := s.svc.Store.RangeEvents(ctx, userID, from, to, store.ClampCount(count))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "range events", err)
	}

	m.End()
	return events, nil
}

// DecodeEvent parses a pub/sub payload published via Hub.Publish back into
// an Event, for transport-layer streaming.
func DecodeEvent(payload []byte) (store.Event, error) {
	var evt store.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return store.Event{}, fmt.Errorf("decode event: %w", err)
	}
	return evt, nil
}
