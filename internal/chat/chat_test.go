// ABOUTME: Tests for the message store: sends, feeds, private conversations, and quota windows
// ABOUTME: Uses an in-memory connector and a mock clock to drive the hourly quota

package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awesomechat/chatd/internal/store"
)

func newTestService(t *testing.T, hourlyCap int) (*Service, *clock.Mock) {
	t.Helper()
	db := store.NewConnector(":memory:", 1, time.Millisecond)
	require.NoError(t, db.Connect(context.Background()))
	t.Cleanup(func() { db.Close() })

	mock := clock.NewMock()
	return NewService(db, hourlyCap, mock), mock
}

func addUser(t *testing.T, s *Service, username string) int64 {
	t.Helper()
	var id int64
	require.NoError(t, s.db.FetchVal(context.Background(), &id,
		"INSERT INTO users (username) VALUES (?) RETURNING id", username))
	return id
}

func TestSend_RoundTrip(t *testing.T) {
	s, _ := newTestService(t, 20)
	ctx := context.Background()
	alice := addUser(t, s, "alice")

	msgID, err := s.Send(ctx, alice, "hi")
	require.NoError(t, err)
	assert.Equal(t, int64(1), msgID)

	feed, err := s.RecentMessages(ctx)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, Entry{UserID: alice, Text: "hi"}, feed[0])
}

func TestRecentMessages_NewestFirstAndCapped(t *testing.T) {
	s, mock := newTestService(t, 100)
	ctx := context.Background()
	alice := addUser(t, s, "alice")

	for i := 0; i < 25; i++ {
		mock.Add(time.Second)
		_, err := s.Send(ctx, alice, string(rune('a'+i%26)))
		require.NoError(t, err)
	}

	feed, err := s.RecentMessages(ctx)
	require.NoError(t, err)
	require.Len(t, feed, feedLimit)
	// The 25th message (index 24) is newest.
	assert.Equal(t, string(rune('a'+24%26)), feed[0].Text)
}

func TestRecentMessages_ExcludesPrivate(t *testing.T) {
	s, _ := newTestService(t, 20)
	ctx := context.Background()
	alice := addUser(t, s, "alice")
	bob := addUser(t, s, "bob")

	_, err := s.Send(ctx, alice, "public")
	require.NoError(t, err)
	_, err = s.SendPrivate(ctx, alice, bob, "secret")
	require.NoError(t, err)

	feed, err := s.RecentMessages(ctx)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "public", feed[0].Text)
}

func TestPrivateMessages_BothDirections(t *testing.T) {
	s, mock := newTestService(t, 20)
	ctx := context.Background()
	alice := addUser(t, s, "alice")
	bob := addUser(t, s, "bob")
	carol := addUser(t, s, "carol")

	_, err := s.SendPrivate(ctx, alice, bob, "to bob")
	require.NoError(t, err)
	mock.Add(time.Second)
	_, err = s.SendPrivate(ctx, bob, alice, "to alice")
	require.NoError(t, err)
	mock.Add(time.Second)
	_, err = s.SendPrivate(ctx, alice, carol, "to carol")
	require.NoError(t, err)

	conv, err := s.PrivateMessages(ctx, alice, bob)
	require.NoError(t, err)
	require.Len(t, conv, 2)
	assert.Equal(t, "to alice", conv[0].Text)
	assert.Equal(t, "to bob", conv[1].Text)

	// Same conversation from bob's side.
	conv2, err := s.PrivateMessages(ctx, bob, alice)
	require.NoError(t, err)
	assert.Equal(t, conv, conv2)
}

func TestSendPrivate_UnknownRecipient(t *testing.T) {
	s, _ := newTestService(t, 20)
	ctx := context.Background()
	alice := addUser(t, s, "alice")

	_, err := s.SendPrivate(ctx, alice, 999, "hello?")
	assert.ErrorIs(t, err, ErrUserNotFound)

	// Nothing was inserted: no message, no link, no quota charge.
	var msgs, links, limits int
	require.NoError(t, s.db.FetchVal(ctx, &msgs, "SELECT COUNT(*) FROM messages"))
	require.NoError(t, s.db.FetchVal(ctx, &links, "SELECT COUNT(*) FROM private_messages"))
	require.NoError(t, s.db.FetchVal(ctx, &limits, "SELECT COUNT(*) FROM message_limits"))
	assert.Zero(t, msgs)
	assert.Zero(t, links)
	assert.Zero(t, limits)
}

func TestUserExists(t *testing.T) {
	s, _ := newTestService(t, 20)
	ctx := context.Background()
	alice := addUser(t, s, "alice")

	exists, err := s.UserExists(ctx, alice)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.UserExists(ctx, 42)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestQuota_CapDeniesWithoutInsert(t *testing.T) {
	s, _ := newTestService(t, 3)
	ctx := context.Background()
	alice := addUser(t, s, "alice")

	for i := 0; i < 3; i++ {
		_, err := s.Send(ctx, alice, "ok")
		require.NoError(t, err)
	}

	_, err := s.Send(ctx, alice, "denied")
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	var msgs int
	require.NoError(t, s.db.FetchVal(ctx, &msgs, "SELECT COUNT(*) FROM messages"))
	assert.Equal(t, 3, msgs)

	// The stored count never exceeds the cap.
	var count int
	require.NoError(t, s.db.FetchVal(ctx, &count,
		"SELECT message_count FROM message_limits WHERE user_id = ?", alice))
	assert.Equal(t, 3, count)
}

func TestQuota_WindowReset(t *testing.T) {
	s, mock := newTestService(t, 2)
	ctx := context.Background()
	alice := addUser(t, s, "alice")

	_, err := s.Send(ctx, alice, "1")
	require.NoError(t, err)
	_, err = s.Send(ctx, alice, "2")
	require.NoError(t, err)
	_, err = s.Send(ctx, alice, "3")
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	// After the window elapses the next send succeeds with a fresh count.
	mock.Add(quotaWindow + time.Minute)
	_, err = s.Send(ctx, alice, "4")
	require.NoError(t, err)

	var count int
	require.NoError(t, s.db.FetchVal(ctx, &count,
		"SELECT message_count FROM message_limits WHERE user_id = ?", alice))
	assert.Equal(t, 1, count)
}

func TestQuota_PerIdentity(t *testing.T) {
	s, _ := newTestService(t, 1)
	ctx := context.Background()
	alice := addUser(t, s, "alice")
	bob := addUser(t, s, "bob")

	_, err := s.Send(ctx, alice, "mine")
	require.NoError(t, err)
	_, err = s.Send(ctx, alice, "over")
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	// Bob's quota is untouched by alice's.
	_, err = s.Send(ctx, bob, "his")
	require.NoError(t, err)
}

func TestQuota_ConcurrentSendsNeverExceedCap(t *testing.T) {
	const quotaCap = 5
	s, _ := newTestService(t, quotaCap)
	ctx := context.Background()
	alice := addUser(t, s, "alice")

	var wg sync.WaitGroup
	results := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Send(ctx, alice, "race")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, denied int
	for err := range results {
		switch {
		case err == nil:
			ok++
		default:
			require.ErrorIs(t, err, ErrQuotaExceeded)
			denied++
		}
	}
	assert.Equal(t, quotaCap, ok)
	assert.Equal(t, 15, denied)

	var msgs int
	require.NoError(t, s.db.FetchVal(ctx, &msgs, "SELECT COUNT(*) FROM messages"))
	assert.Equal(t, quotaCap, msgs)
}

func TestSendPrivate_ChargesQuotaOnce(t *testing.T) {
	s, _ := newTestService(t, 20)
	ctx := context.Background()
	alice := addUser(t, s, "alice")
	bob := addUser(t, s, "bob")

	_, err := s.SendPrivate(ctx, alice, bob, "psst")
	require.NoError(t, err)

	var count int
	require.NoError(t, s.db.FetchVal(ctx, &count,
		"SELECT message_count FROM message_limits WHERE user_id = ?", alice))
	assert.Equal(t, 1, count)
}
