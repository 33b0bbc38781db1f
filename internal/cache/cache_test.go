package cache

import (
	"testing"
	"time"
)

func TestKVGetMultiAnyMiss(t *testing.T) {
	kv := NewKV()
	kv.Set("u1:sharedkey", "k")
	kv.Set("u1:passcode", "p")
	// duration missing

	got := kv.GetMulti("u1:sharedkey", "u1:passcode", "u1:duration")
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2 (duration should be absent)", len(got))
	}
	if _, ok := got["u1:duration"]; ok {
		t.Fatal("u1:duration should be absent on miss")
	}
}

func TestHubFanOutToNReceivers(t *testing.T) {
	hub := NewHub()
	const n = 4
	subs := make([]*Subscriber, n)
	for i := 0; i < n; i++ {
		subs[i] = hub.Subscribe([]string{"message:u2"}, 10)
	}

	hub.Publish("message:u2", []byte("hello"))

	for i, sub := range subs {
		select {
		case msg := <-sub.Messages():
			if string(msg) != "hello" {
				t.Fatalf("subscriber %d got %q, want hello", i, msg)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive a message", i)
		}
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe([]string{"message:u2"}, 10)
	hub.Unsubscribe(sub)

	hub.Publish("message:u2", []byte("hello"))

	if _, ok := <-sub.Messages(); ok {
		t.Fatal("expected closed channel after unsubscribe")
	}
}

func TestHubPublishToUnknownChannelIsNoop(t *testing.T) {
	hub := NewHub()
	hub.Publish("message:nobody", []byte("hello")) // must not panic
}
