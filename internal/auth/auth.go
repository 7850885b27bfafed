// ABOUTME: Anonymous identity and bearer token issuance for the chat backend
// ABOUTME: Tokens are opaque URL-safe random strings stored against a session row

package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/awesomechat/chatd/internal/store"
)

// ErrTokenNotFound is returned by ResolveToken when no active session matches
// the presented token. It is distinct from storage failures so callers can
// tell an invalid credential apart from an unreachable database.
var ErrTokenNotFound = errors.New("token not found or inactive")

// tokenBytes is the entropy of an issued bearer token before encoding.
const tokenBytes = 32

// Service issues anonymous identities with bearer tokens and resolves tokens
// back to identities.
type Service struct {
	db     *store.Connector
	logger *slog.Logger
}

// NewService creates a session manager backed by the given connector.
func NewService(db *store.Connector) *Service {
	return &Service{
		db:     db,
		logger: slog.Default().With("component", "auth"),
	}
}

// CreateUserAndToken inserts a new identity and an active session for it,
// returning the session's bearer token. An empty username gets a generated
// one. Any storage failure is logged and returned; the caller must treat an
// empty token as the failure signal.
func (s *Service) CreateUserAndToken(ctx context.Context, username string) (string, error) {
	if username == "" {
		username = fmt.Sprintf("awesome_%s_user_%s", randomHex(4), randomHex(4))
	}

	var userID int64
	err := s.db.FetchVal(ctx, &userID,
		"INSERT INTO users (username) VALUES (?) RETURNING id", username)
	if err != nil {
		s.logger.Error("creating user failed", "error", err)
		return "", fmt.Errorf("creating user: %w", err)
	}

	token := newToken()
	err = s.db.Execute(ctx,
		"INSERT INTO user_sessions (user_id, session_token, is_active) VALUES (?, ?, 1)",
		userID, token)
	if err != nil {
		s.logger.Error("creating session failed", "user_id", userID, "error", err)
		return "", fmt.Errorf("creating session: %w", err)
	}

	s.logger.Info("identity created", "user_id", userID, "username", username)
	return token, nil
}

// ResolveToken returns the identity id bound to an active session with the
// given token. Unknown or inactive tokens yield ErrTokenNotFound; storage
// failures are returned as-is.
func (s *Service) ResolveToken(ctx context.Context, token string) (int64, error) {
	var userID int64
	err := s.db.FetchVal(ctx, &userID,
		"SELECT user_id FROM user_sessions WHERE session_token = ? AND is_active = 1", token)
	if errors.Is(err, store.ErrNotFound) {
		return 0, ErrTokenNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("resolving token: %w", err)
	}
	return userID, nil
}

// newToken returns an opaque URL-safe bearer token.
func newToken() string {
	buf := make([]byte, tokenBytes)
	rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}

// randomHex returns n random bytes hex-encoded.
func randomHex(n int) string {
	buf := make([]byte, n)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}
