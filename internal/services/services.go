// Package services defines the Services aggregate: the explicit
// dependency-injection bundle constructed once in main.go and passed
// explicitly to every handler and service method, rather than read back
// from package-level globals.
package services

import (
	"log/slog"

	"limit/internal/auth"
	"limit/internal/cache"
	"limit/internal/metrics"
	"limit/internal/ratelimit"
	"limit/internal/store"
	"limit/internal/taskqueue"
)

// Services bundles every collaborator a request handler or service method
// needs. It is constructed once at startup and passed explicitly; nothing
// in this codebase reads a package-level global for these concerns.
type Services struct {
	Store   *store.Store
	KV      *cache.KV
	Hub     *cache.Hub
	Queue   *taskqueue.Queue
	Tokens  *auth.Service
	Limiter *ratelimit.Limiter
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// ServerURL is this server's own identity, compared against
	// event.receiver_server to decide whether SendEvent can be serviced
	// locally or must report Unimplemented for cross-server delivery.
	ServerURL string

	// PerUserMessageLimit bounds the per-subscriber pending buffer in the
	// pub/sub hub (per_user_message_on_the_fly_limit).
	PerUserMessageLimit int

	// ServerSecret is this server's long-term ECDH private scalar (base64),
	// used to derive each user's shared key at registration time.
	ServerSecret string
}
