package store

import (
	"context"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("file::memory:?cache=shared", 1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateUserAndAuthBundle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.CreateUser(ctx, "u1", "pubkey", "sharedkey", 114514, "123456"); err != nil {
		t.Fatalf("create user: %v", err)
	}

	bundle, err := s.GetAuthBundle(ctx, "u1")
	if err != nil {
		t.Fatalf("get auth bundle: %v", err)
	}
	if bundle.SharedKey != "sharedkey" || bundle.ExpectedPasscode != "123456" || bundle.JWTExpiration != 114514 {
		t.Fatalf("bundle = %+v", bundle)
	}

	subs, err := s.ListSubscriptions(ctx, "u1")
	if err != nil {
		t.Fatalf("list subscriptions: %v", err)
	}
	if len(subs) != 1 || subs[0].SubscribedTo != "u1" || subs[0].ChannelKind != "message" {
		t.Fatalf("subs = %+v, want implicit self-subscription", subs)
	}
}

func TestSetPasscodeOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.CreateUser(ctx, "u1", "pub", "shared", 3600, "111111"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.SetPasscode(ctx, "u1", "222222"); err != nil {
		t.Fatalf("set passcode: %v", err)
	}
	bundle, err := s.GetAuthBundle(ctx, "u1")
	if err != nil {
		t.Fatalf("get auth bundle: %v", err)
	}
	if bundle.ExpectedPasscode != "222222" {
		t.Fatalf("passcode = %q, want 222222", bundle.ExpectedPasscode)
	}
}

func TestGetAuthBundleNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if _, err := s.GetAuthBundle(ctx, "missing"); err == nil {
		t.Fatal("expected error for missing user")
	}
}

func TestRangeEventsBoundsAndOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.CreateUser(ctx, "u1", "pub", "shared", 3600, "111111"); err != nil {
		t.Fatalf("create sender: %v", err)
	}
	if err := s.CreateUser(ctx, "u2", "pub2", "shared2", 3600, "222222"); err != nil {
		t.Fatalf("create receiver: %v", err)
	}

	ids := []string{"id-1", "id-2", "id-3"}
	timestamps := []int64{1000, 2000, 3000}
	for i, id := range ids {
		if err := s.InsertEvent(ctx, EventHead{ID: id, Timestamp: timestamps[i], Sender: "u1", EventType: "message"}); err != nil {
			t.Fatalf("insert event %s: %v", id, err)
		}
		if err := s.InsertMessageBody(ctx, MessageBody{EventID: id, ReceiverID: "u2", ReceiverServer: "local", Text: id}); err != nil {
			t.Fatalf("insert body %s: %v", id, err)
		}
	}

	events, err := s.RangeEvents(ctx, "u2", FromTimestamp(0), FromTimestamp(3000), 50)
	if err != nil {
		t.Fatalf("range events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	// descending by event id: id-3, id-2, id-1
	if events[0].EventID != "id-3" || events[2].EventID != "id-1" {
		t.Fatalf("order wrong: %+v", events)
	}

	// half-open: excludes ts==1000 when from=1000
	events, err = s.RangeEvents(ctx, "u2", FromTimestamp(1000), FromTimestamp(3000), 50)
	if err != nil {
		t.Fatalf("range events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (half-open from excludes ts=1000)", len(events))
	}

	events, err = s.RangeEvents(ctx, "u2", FromID("id-1"), FromID("id-3"), 50)
	if err != nil {
		t.Fatalf("range events by id: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events by id range, want 2", len(events))
	}
}

func TestClampCount(t *testing.T) {
	cases := map[int]int{0: 50, -1: 50, 8193: 50, 1: 1, 8192: 8192, 50: 50}
	for in, want := range cases {
		if got := ClampCount(in); got != want {
			t.Fatalf("ClampCount(%d) = %d, want %d", in, got, want)
		}
	}
}
