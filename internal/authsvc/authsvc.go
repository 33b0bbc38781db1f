// Package authsvc implements the two-step login handshake: RequestAuth
// mints and stores a passcode, DoAuth validates the encrypted passcode and
// issues a signed session token.
package authsvc

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/google/uuid"

	"limit/internal/apperr"
	"limit/internal/crypto"
	"limit/internal/metrics"
	"limit/internal/services"
	"limit/internal/taskqueue"
)

// passcodeAlphabet is the 33-character pool passcodes are drawn from
// uniformly.
const passcodeAlphabet = "0123456789abcdefABCDEF!@#$%^&*_=+"

const passcodeLength = 6

func generatePasscode() (string, error) {
	out := make([]byte, passcodeLength)
	for i := range out {
		n, err := randIndex(len(passcodeAlphabet))
		if err != nil {
			return "", err
		}
		out[i] = passcodeAlphabet[n]
	}
	return string(out), nil
}

// randIndex draws a uniform index in [0, n) using crypto/rand with
// rejection sampling, since this feeds directly into an authentication
// secret and must not be biased or predictable the way math/rand would be.
func randIndex(n int) (int, error) {
	buf := make([]byte, 1)
	for {
		if _, err := rand.Read(buf); err != nil {
			return 0, err
		}
		// Rejection sampling to keep the distribution uniform over [0, n).
		if int(buf[0]) < (256/n)*n {
			return int(buf[0]) % n, nil
		}
	}
}

// Service implements RequestAuth and DoAuth against an injected Services
// aggregate.
type Service struct {
	svc *services.Services
}

func New(svc *services.Services) *Service {
	return &Service{svc: svc}
}

// Bootstrap registers a new user from their long-term public key, deriving
// the server-side shared secret and minting the user's first passcode.
func (s *Service) Bootstrap(ctx context.Context, userID, pubKey string, jwtExpirationSeconds int64) (string, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return "", apperr.New(apperr.InvalidArgument, "user id must be a UUID")
	}

	sharedKey, err := crypto.DeriveShared(s.svc.ServerSecret, pubKey)
	if err != nil {
		return "", apperr.New(apperr.InvalidArgument, "invalid public key")
	}

	passcode, err := generatePasscode()
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "generate passcode", err)
	}

	if jwtExpirationSeconds <= 0 {
		jwtExpirationSeconds = 3600
	}

	if err := s.svc.Store.CreateUser(ctx, userID, pubKey, sharedKey, jwtExpirationSeconds, passcode); err != nil {
		return "", err
	}

	s.svc.KV.Set(userID+":sharedkey", sharedKey)
	s.svc.KV.Set(userID+":passcode", passcode)
	return passcode, nil
}

// RequestAuth validates the user id, mints a fresh passcode, writes it to
// the cache synchronously, enqueues the durable update, and returns the
// plaintext passcode.
func (s *Service) RequestAuth(ctx context.Context, userID string) (string, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return "", apperr.New(apperr.InvalidArgument, "user id must be a UUID")
	}

	if s.svc.Limiter != nil && !s.svc.Limiter.Allow(userID) {
		if s.svc.Metrics != nil {
			s.svc.Metrics.AuthRateLimited.Inc()
		}
		return "", apperr.New(apperr.ResourceExhausted, "too many login attempts, try again later")
	}

	m := metrics.Start(s.svc.Metrics, "request_auth")
	defer m.Discard()

	passcode, err := generatePasscode()
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "generate passcode", err)
	}

	s.svc.KV.Set(userID+":passcode", passcode)

	s.svc.Queue.Submit(taskqueue.Task{
		Name: "persist_passcode",
		Run: func(ctx context.Context) error {
			return s.svc.Store.SetPasscode(ctx, userID, passcode)
		},
	})

	m.End()
	return passcode, nil
}

// DoAuth validates the encrypted passcode and, on success, mints a session
// token and rotates the passcode.
func (s *Service) DoAuth(ctx context.Context, userID, deviceID, validated string) (string, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return "", apperr.New(apperr.InvalidArgument, "user id must be a UUID")
	}

	m := metrics.Start(s.svc.Metrics, "do_auth")
	defer m.Discard()

	sharedKey, expectedPasscode, jwtExpiration, err := s.loadAuthBundle(ctx, userID)
	if err != nil {
		return "", err
	}
	m.Renew("do_auth.decrypt")

	plaintext, err := crypto.Decrypt(sharedKey, validated)
	if err != nil {
		return "", apperr.New(apperr.Unauthenticated, "invalid passcode")
	}
	m.Renew("do_auth.compare")

	if subtle.ConstantTimeCompare([]byte(plaintext), []byte(expectedPasscode)) != 1 {
		return "", apperr.New(apperr.Unauthenticated, "invalid passcode")
	}
	m.Renew("do_auth.issue_token")

	token, err := s.svc.Tokens.IssueToken(userID, deviceID, time.Duration(jwtExpiration)*time.Second)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "issue token", err)
	}

	newPasscode, err := generatePasscode()
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "generate passcode", err)
	}
	s.svc.KV.Set(userID+":passcode", newPasscode)
	s.svc.Queue.Submit(taskqueue.Task{
		Name: "persist_passcode",
		Run: func(ctx context.Context) error {
			return s.svc.Store.SetPasscode(ctx, userID, newPasscode)
		},
	})

	m.End()
	return token, nil
}

// loadAuthBundle implements the cache-then-store fallback: a batched GET of
// the three hot fields; on any miss, falls through to a store read and
// writes the result back through to the cache.
func (s *Service) loadAuthBundle(ctx context.Context, userID string) (sharedKey, expectedPasscode string, jwtExpiration int64, err error) {
	keys := []string{userID + ":sharedkey", userID + ":passcode", userID + ":duration"}
	got := s.svc.KV.GetMulti(keys...)

	if len(got) == len(keys) {
		if s.svc.Metrics != nil {
			s.svc.Metrics.CacheHits.WithLabelValues("do_auth").Inc()
		}
		var duration int64
		if _, scanErr := fmt.Sscanf(got[keys[2]], "%d", &duration); scanErr != nil {
			return "", "", 0, apperr.Wrap(apperr.Internal, "parse cached duration", scanErr)
		}
		return got[keys[0]], got[keys[1]], duration, nil
	}

	if s.svc.Metrics != nil {
		s.svc.Metrics.CacheMisses.WithLabelValues("do_auth").Inc()
	}

	bundle, err := s.svc.Store.GetAuthBundle(ctx, userID)
	if err != nil {
		return "", "", 0, err
	}

	s.svc.KV.SetMulti(map[string]string{
		keys[0]: bundle.SharedKey,
		keys[1]: bundle.ExpectedPasscode,
		keys[2]: fmt.Sprintf("%d", bundle.JWTExpiration),
	})

	return bundle.SharedKey, bundle.ExpectedPasscode, bundle.JWTExpiration, nil
}
