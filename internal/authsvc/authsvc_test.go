package authsvc

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	authpkg "limit/internal/auth"
	"limit/internal/cache"
	"limit/internal/crypto"
	"limit/internal/metrics"
	"limit/internal/ratelimit"
	"limit/internal/services"
	"limit/internal/store"
	"limit/internal/taskqueue"
)

func newTestServices(t *testing.T) *services.Services {
	t.Helper()
	st, err := store.Open("file::memory:?cache=shared", 1)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := taskqueue.New(metrics.NewMetrics(prometheus.NewRegistry()), logger)
	t.Cleanup(q.Stop)

	return &services.Services{
		Store:   st,
		KV:      cache.NewKV(),
		Hub:     cache.NewHub(),
		Queue:   q,
		Tokens:  authpkg.New("test-secret"),
		Limiter: ratelimit.New(1000, 1000), // effectively unthrottled for unit tests
		Metrics: metrics.NewMetrics(prometheus.NewRegistry()),
		Logger:  logger,

		ServerURL:           "https://local.test",
		PerUserMessageLimit: 100,
	}
}

func seedUser(t *testing.T, svc *services.Services, userID string) (sharedKeyB64 string) {
	t.Helper()
	_, pub, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate user keypair: %v", err)
	}
	serverPriv, _, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate server keypair: %v", err)
	}
	shared, err := crypto.DeriveShared(serverPriv, pub)
	if err != nil {
		t.Fatalf("derive shared: %v", err)
	}
	if err := svc.Store.CreateUser(context.Background(), userID, pub, shared, 114514, "123456"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return shared
}

func TestRequestAuthWritesCacheAndReturnsPasscode(t *testing.T) {
	svc := newTestServices(t)
	seedUser(t, svc, "11111111-1111-1111-1111-111111111111")
	auth := New(svc)

	passcode, err := auth.RequestAuth(context.Background(), "11111111-1111-1111-1111-111111111111")
	if err != nil {
		t.Fatalf("request auth: %v", err)
	}
	if len(passcode) != passcodeLength {
		t.Fatalf("passcode length = %d, want %d", len(passcode), passcodeLength)
	}

	cached, ok := svc.KV.Get("11111111-1111-1111-1111-111111111111:passcode")
	if !ok || cached != passcode {
		t.Fatalf("cached passcode = %q, ok=%v, want %q", cached, ok, passcode)
	}
}

func TestRequestAuthRejectsNonUUID(t *testing.T) {
	svc := newTestServices(t)
	auth := New(svc)
	if _, err := auth.RequestAuth(context.Background(), "not-a-uuid"); err == nil {
		t.Fatal("expected error for non-UUID user id")
	}
}

func TestDoAuthHappyPath(t *testing.T) {
	const userID = "22222222-2222-2222-2222-222222222222"
	svc := newTestServices(t)
	shared := seedUser(t, svc, userID)
	auth := New(svc)

	passcode, err := auth.RequestAuth(context.Background(), userID)
	if err != nil {
		t.Fatalf("request auth: %v", err)
	}
	validated, err := crypto.Encrypt(shared, passcode)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	token, err := auth.DoAuth(context.Background(), userID, "dev1", validated)
	if err != nil {
		t.Fatalf("do auth: %v", err)
	}

	identity, err := svc.Tokens.Verify(token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if identity.UserID != userID || identity.DeviceID != "dev1" {
		t.Fatalf("identity = %+v", identity)
	}
}

func TestDoAuthPasscodeRotationInvalidatesReplay(t *testing.T) {
	const userID = "33333333-3333-3333-3333-333333333333"
	svc := newTestServices(t)
	shared := seedUser(t, svc, userID)
	auth := New(svc)

	passcode, err := auth.RequestAuth(context.Background(), userID)
	if err != nil {
		t.Fatalf("request auth: %v", err)
	}
	validated, err := crypto.Encrypt(shared, passcode)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	if _, err := auth.DoAuth(context.Background(), userID, "dev1", validated); err != nil {
		t.Fatalf("first do auth: %v", err)
	}

	// replay of the same validated payload must now fail: the passcode rotated.
	if _, err := auth.DoAuth(context.Background(), userID, "dev1", validated); err == nil {
		t.Fatal("expected replay to be rejected after passcode rotation")
	}
}

func TestDoAuthWrongPasscode(t *testing.T) {
	const userID = "44444444-4444-4444-4444-444444444444"
	svc := newTestServices(t)
	shared := seedUser(t, svc, userID)
	auth := New(svc)

	if _, err := auth.RequestAuth(context.Background(), userID); err != nil {
		t.Fatalf("request auth: %v", err)
	}
	validated, err := crypto.Encrypt(shared, "wrong")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	if _, err := auth.DoAuth(context.Background(), userID, "dev1", validated); err == nil {
		t.Fatal("expected error for wrong passcode")
	}
}

func TestDoAuthMalformedCiphertext(t *testing.T) {
	const userID = "55555555-5555-5555-5555-555555555555"
	svc := newTestServices(t)
	seedUser(t, svc, userID)
	auth := New(svc)

	if _, err := auth.RequestAuth(context.Background(), userID); err != nil {
		t.Fatalf("request auth: %v", err)
	}

	if _, err := auth.DoAuth(context.Background(), userID, "dev1", "123456"); err == nil {
		t.Fatal("expected error for plaintext-not-ciphertext payload")
	}
}
