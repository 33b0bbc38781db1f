// Package store is the durable credential store: users, login passcodes,
// privacy settings, subscriptions and the event log, backed by uptrace/bun
// over a pure-Go sqlite driver.
package store

import (
	"time"

	"github.com/uptrace/bun"
)

// User holds a client's long-term public key and the server-derived shared
// secret for that user.
type User struct {
	bun.BaseModel `bun:"table:user"`

	ID        string `bun:"id,pk"`
	PubKey    string `bun:"pubkey,notnull"`
	SharedKey string `bun:"sharedkey,notnull"`
}

// LoginPasscode holds the single currently-expected plaintext passcode for a
// user. Rotated on every successful RequestAuth and DoAuth.
type LoginPasscode struct {
	bun.BaseModel `bun:"table:user_login_passcode"`

	UserID   string `bun:"user_id,pk"`
	Passcode string `bun:"passcode,notnull"`
}

// PrivacySettings holds the per-user session-token lifetime.
type PrivacySettings struct {
	bun.BaseModel `bun:"table:user_privacy_settings"`

	UserID        string `bun:"user_id,pk"`
	JWTExpiration int64  `bun:"jwt_expiration,notnull"` // seconds
}

// Subscription is a subscriber's declared interest in a (subscribedTo,
// channelKind) stream.
type Subscription struct {
	bun.BaseModel `bun:"table:event_subscriptions"`

	UserID      string `bun:"user_id,pk"`
	SubscribedTo string `bun:"subscribed_to,pk"`
	ChannelKind string `bun:"channel_type,pk"`
}

// EventHead is the event-table row: everything about an event except its
// type-specific body.
type EventHead struct {
	bun.BaseModel `bun:"table:event"`

	ID        string `bun:"id,pk"`
	Timestamp int64  `bun:"ts,notnull"` // milliseconds since epoch
	Sender    string `bun:"sender,notnull"`
	EventType string `bun:"event_type,notnull"`
}

// MessageBody is the message-table row, joined to EventHead via EventID.
type MessageBody struct {
	bun.BaseModel `bun:"table:message"`

	EventID        string `bun:"event_id,pk"`
	ReceiverID     string `bun:"receiver_id,notnull"`
	ReceiverServer string `bun:"receiver_server,notnull"`
	Text           string `bun:"text,notnull"`
	Extensions     string `bun:"extensions"` // JSON-encoded map[string]string
}

// Event is the fully-joined wire/cache shape: an event head plus its
// message body, used identically for persistence conversion, pub/sub
// payloads and the wire response.
type Event struct {
	EventID        string            `json:"event_id"`
	Timestamp      int64             `json:"timestamp"`
	Sender         string            `json:"sender"`
	ReceiverID     string            `json:"receiver_id"`
	ReceiverServer string            `json:"receiver_server"`
	Text           string            `json:"text"`
	Extensions     map[string]string `json:"extensions"`
}

// TimeOf returns the event's timestamp as a time.Time, for convenience in
// tests and logging.
func (e Event) TimeOf() time.Time {
	return time.UnixMilli(e.Timestamp)
}
