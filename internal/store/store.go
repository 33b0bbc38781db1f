package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "modernc.org/sqlite"

	"limit/internal/apperr"
)

// Store wraps a bun.DB connection to the credential store.
type Store struct {
	db *bun.DB
}

// Open opens (creating if necessary) a sqlite database at path, configures
// the connection pool to poolSize handles, and runs schema migration.
func Open(path string, poolSize int) (*Store, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if poolSize <= 0 {
		poolSize = 3
	}
	sqldb.SetMaxOpenConns(poolSize)

	if _, err := sqldb.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := sqldb.Exec("PRAGMA journal_mode = WAL"); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	models := []interface{}{
		(*User)(nil),
		(*LoginPasscode)(nil),
		(*PrivacySettings)(nil),
		(*Subscription)(nil),
		(*EventHead)(nil),
		(*MessageBody)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// CreateUser inserts a user row, a default passcode row, a default privacy
// row, and the implicit self-subscription on the "message" channel.
func (s *Store) CreateUser(ctx context.Context, id, pubkey, sharedKey string, jwtExpirationSeconds int64, initialPasscode string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&User{ID: id, PubKey: pubkey, SharedKey: sharedKey}).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewInsert().Model(&LoginPasscode{UserID: id, Passcode: initialPasscode}).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewInsert().Model(&PrivacySettings{UserID: id, JWTExpiration: jwtExpirationSeconds}).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewInsert().Model(&Subscription{UserID: id, SubscribedTo: id, ChannelKind: "message"}).Exec(ctx); err != nil {
			return err
		}
		return nil
	})
}

// AuthBundle is the joined (shared_key, expected_passcode, jwt_expiration)
// used by DoAuth.
type AuthBundle struct {
	SharedKey       string
	ExpectedPasscode string
	JWTExpiration   int64 // seconds
}

// GetAuthBundle loads the join across user, passcode and privacy rows.
func (s *Store) GetAuthBundle(ctx context.Context, userID string) (AuthBundle, error) {
	var user User
	if err := s.db.NewSelect().Model(&user).Where("id = ?", userID).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AuthBundle{}, apperr.New(apperr.NotFound, "no such user")
		}
		return AuthBundle{}, apperr.Wrap(apperr.Internal, "load user", err)
	}

	var passcode LoginPasscode
	if err := s.db.NewSelect().Model(&passcode).Where("user_id = ?", userID).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AuthBundle{}, apperr.New(apperr.NotFound, "no passcode for user")
		}
		return AuthBundle{}, apperr.Wrap(apperr.Internal, "load passcode", err)
	}

	var privacy PrivacySettings
	if err := s.db.NewSelect().Model(&privacy).Where("user_id = ?", userID).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AuthBundle{}, apperr.New(apperr.NotFound, "no privacy settings for user")
		}
		return AuthBundle{}, apperr.Wrap(apperr.Internal, "load privacy settings", err)
	}

	return AuthBundle{
		SharedKey:        user.SharedKey,
		ExpectedPasscode: passcode.Passcode,
		JWTExpiration:    privacy.JWTExpiration,
	}, nil
}

// SetPasscode overwrites the user's expected passcode.
func (s *Store) SetPasscode(ctx context.Context, userID, newPasscode string) error {
	res, err := s.db.NewUpdate().Model((*LoginPasscode)(nil)).
		Set("passcode = ?", newPasscode).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "update passcode", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.Internal, "update passcode", err)
	}
	if rows == 0 {
		return apperr.New(apperr.NotFound, "no passcode row for user")
	}
	return nil
}

// ListSubscriptions returns every subscription the given user holds.
func (s *Store) ListSubscriptions(ctx context.Context, userID string) ([]Subscription, error) {
	var subs []Subscription
	err := s.db.NewSelect().Model(&subs).Where("user_id = ?", userID).Scan(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list subscriptions", err)
	}
	return subs, nil
}

// InsertEvent inserts the event-table row.
func (s *Store) InsertEvent(ctx context.Context, head EventHead) error {
	_, err := s.db.NewInsert().Model(&head).Exec(ctx)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "insert event", err)
	}
	return nil
}

// InsertMessageBody inserts the message-table row.
func (s *Store) InsertMessageBody(ctx context.Context, body MessageBody) error {
	_, err := s.db.NewInsert().Model(&body).Exec(ctx)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "insert message body", err)
	}
	return nil
}

// BoundKind distinguishes the two ways a range endpoint may be specified.
type BoundKind int

const (
	ByID BoundKind = iota
	ByTimestamp
)

// RangeBound is one endpoint of a Synchronize range query: either an event
// id or a millisecond timestamp.
type RangeBound struct {
	Kind      BoundKind
	EventID   string
	Timestamp int64
}

func FromID(id string) RangeBound        { return RangeBound{Kind: ByID, EventID: id} }
func FromTimestamp(ms int64) RangeBound  { return RangeBound{Kind: ByTimestamp, Timestamp: ms} }

// ClampCount applies the [1, 8192] bound, defaulting to 50 outside it.
func ClampCount(count int) int {
	if count < 1 || count > 8192 {
		return 50
	}
	return count
}

// eventRow is the joined query-result shape before conversion to Event.
type eventRow struct {
	ID             string `bun:"id"`
	Timestamp      int64  `bun:"ts"`
	Sender         string `bun:"sender"`
	ReceiverID     string `bun:"receiver_id"`
	ReceiverServer string `bun:"receiver_server"`
	Text           string `bun:"text"`
	Extensions     string `bun:"extensions"`
}

func (r eventRow) toEvent() Event {
	ext := map[string]string{}
	if r.Extensions != "" {
		_ = json.Unmarshal([]byte(r.Extensions), &ext)
	}
	return Event{
		EventID:        r.ID,
		Timestamp:      r.Timestamp,
		Sender:         r.Sender,
		ReceiverID:     r.ReceiverID,
		ReceiverServer: r.ReceiverServer,
		Text:           r.Text,
		Extensions:     ext,
	}
}

// RangeEvents executes one of four SQL forms depending on whether each of
// from/to is an id bound or a timestamp bound, filtered to events this user
// is subscribed to receive on the "message" channel, ordered by event id
// descending, in the half-open range (from, to], capped at limit.
func (s *Store) RangeEvents(ctx context.Context, userID string, from, to RangeBound, limit int) ([]Event, error) {
	limit = ClampCount(limit)

	const baseQuery = `
		SELECT e.id, e.ts, e.sender, m.receiver_id, m.receiver_server, m.text, m.extensions
		FROM event e
		INNER JOIN message m ON m.event_id = e.id
		INNER JOIN event_subscriptions sub
			ON sub.subscribed_to = m.receiver_id AND sub.channel_type = 'message'
		WHERE sub.user_id = ? AND %s AND %s
		ORDER BY e.id DESC
		LIMIT ?`

	fromCol := "e.id"
	if from.Kind == ByTimestamp {
		fromCol = "e.ts"
	}
	toCol := "e.id"
	if to.Kind == ByTimestamp {
		toCol = "e.ts"
	}

	var fromVal interface{} = from.EventID
	if from.Kind == ByTimestamp {
		fromVal = from.Timestamp
	}
	var toVal interface{} = to.EventID
	if to.Kind == ByTimestamp {
		toVal = to.Timestamp
	}

	fromClause := fromCol + " > ?"
	toClause := toCol + " <= ?"
	query := fmt.Sprintf(baseQuery, fromClause, toClause)

	var rows []eventRow
	err := s.db.NewRaw(query, userID, fromVal, toVal, limit).Scan(ctx, &rows)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "range events", err)
	}

	events := make([]Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.toEvent())
	}
	return events, nil
}
