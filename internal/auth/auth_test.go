// ABOUTME: Tests for identity and token issuance
// ABOUTME: Covers token round-trips, generated usernames, and the not-found/storage-error split

package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awesomechat/chatd/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := store.NewConnector(":memory:", 1, time.Millisecond)
	require.NoError(t, db.Connect(context.Background()))
	t.Cleanup(func() { db.Close() })
	return NewService(db)
}

func TestCreateUserAndToken_RoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	token, err := svc.CreateUserAndToken(ctx, "")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := svc.ResolveToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, int64(1), userID)
}

func TestCreateUserAndToken_ExplicitUsername(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	token, err := svc.CreateUserAndToken(ctx, "dave")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// Duplicate username violates the unique constraint and surfaces as a
	// storage failure with no token.
	token2, err := svc.CreateUserAndToken(ctx, "dave")
	assert.Error(t, err)
	assert.Empty(t, token2)
}

func TestCreateUserAndToken_GeneratedUsernameFormat(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateUserAndToken(ctx, "")
	require.NoError(t, err)

	db := svc.db
	var username string
	require.NoError(t, db.FetchVal(ctx, &username, "SELECT username FROM users WHERE id = 1"))
	assert.True(t, strings.HasPrefix(username, "awesome_"), "username %q", username)
	assert.Contains(t, username, "_user_")
}

func TestCreateUserAndToken_DistinctTokens(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	t1, err := svc.CreateUserAndToken(ctx, "")
	require.NoError(t, err)
	t2, err := svc.CreateUserAndToken(ctx, "")
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2)
}

func TestResolveToken_NotFound(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.ResolveToken(context.Background(), "bogus-token")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestResolveToken_InactiveSession(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	token, err := svc.CreateUserAndToken(ctx, "")
	require.NoError(t, err)

	require.NoError(t, svc.db.Execute(ctx,
		"UPDATE user_sessions SET is_active = 0 WHERE session_token = ?", token))

	_, err = svc.ResolveToken(ctx, token)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestResolveToken_StorageErrorIsNotNotFound(t *testing.T) {
	// A connector that cannot reach its database must surface a storage error,
	// never ErrTokenNotFound.
	db := store.NewConnector("file:/this/path/does/not/exist/chat.db", 1, time.Millisecond)
	defer db.Close()
	svc := NewService(db)

	_, err := svc.ResolveToken(context.Background(), "any")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTokenNotFound)
}
