// ABOUTME: Message store: quota-limited public and private sends plus history retrieval
// ABOUTME: A private message is a message row with a 1:1 recipient link row

package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/awesomechat/chatd/internal/store"
)

var (
	// ErrQuotaExceeded is returned when an identity has used up its hourly
	// send quota. Nothing is inserted on denial.
	ErrQuotaExceeded = errors.New("message limit reached")

	// ErrUserNotFound is returned when a private send or private history
	// query names a recipient that does not exist.
	ErrUserNotFound = errors.New("user not found")
)

// feedLimit caps the public feed at the most recent messages.
const feedLimit = 20

// quotaWindow is the rolling reset interval for the per-identity send quota.
const quotaWindow = time.Hour

// Entry is one feed or conversation item.
type Entry struct {
	UserID int64  `json:"user_id"`
	Text   string `json:"text"`
}

// Service persists messages, enforces the hourly send quota, and retrieves
// the public feed and private conversations.
type Service struct {
	db     *store.Connector
	clock  clock.Clock
	cap    int
	logger *slog.Logger

	// Per-identity locks make the quota's read-then-write sequence atomic
	// even with one handler goroutine per request in flight.
	mu        sync.Mutex
	userLocks map[int64]*sync.Mutex
}

// NewService creates a message store with the given hourly cap. The clock is
// injectable so quota windows can be tested without waiting an hour.
func NewService(db *store.Connector, hourlyCap int, clk clock.Clock) *Service {
	return &Service{
		db:        db,
		clock:     clk,
		cap:       hourlyCap,
		logger:    slog.Default().With("component", "chat"),
		userLocks: make(map[int64]*sync.Mutex),
	}
}

// Send records a public message for userID, charging one unit of quota.
// Returns ErrQuotaExceeded without inserting when the quota denies.
func (s *Service) Send(ctx context.Context, userID int64, text string) (int64, error) {
	unlock := s.lockUser(userID)
	defer unlock()

	ok, err := s.consumeQuota(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrQuotaExceeded
	}

	return s.insertMessage(ctx, userID, text)
}

// SendPrivate records a message visible only to the sender/recipient pair.
// The recipient must exist before anything is inserted, so a failed private
// send never leaves an orphaned public message behind.
func (s *Service) SendPrivate(ctx context.Context, userID, recipientID int64, text string) (int64, error) {
	exists, err := s.UserExists(ctx, recipientID)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrUserNotFound
	}

	unlock := s.lockUser(userID)
	defer unlock()

	ok, err := s.consumeQuota(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrQuotaExceeded
	}

	msgID, err := s.insertMessage(ctx, userID, text)
	if err != nil {
		return 0, err
	}
	if err := s.insertPrivateLink(ctx, msgID, recipientID); err != nil {
		return 0, err
	}
	return msgID, nil
}

// RecentMessages returns the newest public messages, newest first. A message
// with a private link never appears in the feed.
func (s *Service) RecentMessages(ctx context.Context) ([]Entry, error) {
	return s.fetchEntries(ctx, `
		SELECT m.user_id, m.text
		FROM messages m
		LEFT JOIN private_messages pm ON m.id = pm.id
		WHERE pm.id IS NULL
		ORDER BY m.timestamp DESC, m.id DESC
		LIMIT ?`, feedLimit)
}

// PrivateMessages returns every message privately linked between the pair in
// either direction, newest first.
func (s *Service) PrivateMessages(ctx context.Context, userID, recipientID int64) ([]Entry, error) {
	return s.fetchEntries(ctx, `
		SELECT m.user_id, m.text
		FROM messages m
		JOIN private_messages pm ON m.id = pm.id
		WHERE (pm.recipient_id = ? AND m.user_id = ?) OR (pm.recipient_id = ? AND m.user_id = ?)
		ORDER BY m.timestamp DESC, m.id DESC`,
		userID, recipientID, recipientID, userID)
}

// UserExists reports whether an identity with the given id exists.
func (s *Service) UserExists(ctx context.Context, userID int64) (bool, error) {
	var one int
	err := s.db.FetchVal(ctx, &one, "SELECT 1 FROM users WHERE id = ?", userID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking user existence: %w", err)
	}
	return true, nil
}

func (s *Service) fetchEntries(ctx context.Context, query string, args ...any) ([]Entry, error) {
	entries := []Entry{}
	err := s.db.Fetch(ctx, query, func(rows *sql.Rows) error {
		var e Entry
		if err := rows.Scan(&e.UserID, &e.Text); err != nil {
			return err
		}
		entries = append(entries, e)
		return nil
	}, args...)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Service) insertMessage(ctx context.Context, userID int64, text string) (int64, error) {
	var msgID int64
	err := s.db.FetchVal(ctx, &msgID,
		"INSERT INTO messages (user_id, text, timestamp) VALUES (?, ?, ?) RETURNING id",
		userID, text, s.clock.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("inserting message: %w", err)
	}
	return msgID, nil
}

// insertPrivateLink records the 1:1 recipient link that makes a message
// private. Recipient existence is the caller's responsibility.
func (s *Service) insertPrivateLink(ctx context.Context, msgID, recipientID int64) error {
	err := s.db.Execute(ctx,
		"INSERT INTO private_messages (id, recipient_id) VALUES (?, ?)", msgID, recipientID)
	if err != nil {
		return fmt.Errorf("inserting private link: %w", err)
	}
	return nil
}

// consumeQuota applies the quota check-then-update for userID. The caller
// must hold the identity's lock. Missing or expired record: replace with
// count=1 and a fresh window. Under the cap: increment. At the cap: deny.
func (s *Service) consumeQuota(ctx context.Context, userID int64) (bool, error) {
	now := s.clock.Now().UTC()

	var count int
	var resetRaw string
	err := s.db.FetchOne(ctx, []any{&count, &resetRaw},
		"SELECT message_count, reset_time FROM message_limits WHERE user_id = ?", userID)

	var resetTime time.Time
	if err == nil {
		resetTime, err = time.Parse(time.RFC3339, resetRaw)
		if err != nil {
			return false, fmt.Errorf("parsing quota reset time: %w", err)
		}
	}

	switch {
	case errors.Is(err, store.ErrNotFound) || (err == nil && !resetTime.After(now)):
		err = s.db.Execute(ctx, `
			INSERT INTO message_limits (user_id, message_count, reset_time) VALUES (?, 1, ?)
			ON CONFLICT(user_id) DO UPDATE SET message_count = 1, reset_time = excluded.reset_time`,
			userID, now.Add(quotaWindow).Format(time.RFC3339))
		if err != nil {
			return false, fmt.Errorf("resetting quota: %w", err)
		}
		return true, nil

	case err != nil:
		return false, fmt.Errorf("reading quota: %w", err)

	case count < s.cap:
		err = s.db.Execute(ctx,
			"UPDATE message_limits SET message_count = message_count + 1 WHERE user_id = ?", userID)
		if err != nil {
			return false, fmt.Errorf("incrementing quota: %w", err)
		}
		return true, nil

	default:
		s.logger.Info("send denied by quota", "user_id", userID, "reset_time", resetTime)
		return false, nil
	}
}

// lockUser returns an unlock func for the identity's quota lock. Lock entries
// are never removed; the map is bounded by the number of identities seen.
func (s *Service) lockUser(userID int64) func() {
	s.mu.Lock()
	l, ok := s.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.userLocks[userID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}
