package transcript

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/tether/internal/domain"
)

func testCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func cachedMsg(id string, rev int64, sec int) domain.Message {
	return domain.Message{
		ID: id, Author: domain.AuthorAgent, Tag: domain.TagAgentText,
		Content: "content of " + id, Rev: rev,
		Meta:      domain.Meta{ToolCallID: "call-" + id},
		CreatedAt: time.Date(2026, 8, 1, 0, 0, sec, 0, time.UTC),
	}
}

// --- Sessions ---

func TestSessionUpsert(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()
	created := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	sess := domain.Session{ID: "sess-1", Title: "first pass", CreatedAt: created, UpdatedAt: created}
	require.NoError(t, c.SaveSession(ctx, sess))

	sess.Title = "renamed"
	sess.UpdatedAt = created.Add(time.Hour)
	require.NoError(t, c.SaveSession(ctx, sess))

	sessions, err := c.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "renamed", sessions[0].Title)
}

func TestSessionsOrderedByRecency(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, c.SaveSession(ctx, domain.Session{ID: "old", Title: "old", CreatedAt: base, UpdatedAt: base}))
	require.NoError(t, c.SaveSession(ctx, domain.Session{ID: "new", Title: "new", CreatedAt: base, UpdatedAt: base.Add(time.Hour)}))

	sessions, err := c.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "new", sessions[0].ID)
}

// --- Messages ---

func TestMessagesRoundTripChronological(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	// Saved out of order; read back sorted by creation time.
	msgs := []domain.Message{cachedMsg("m2", 1, 2), cachedMsg("m1", 1, 1), cachedMsg("m3", 1, 3)}
	require.NoError(t, c.SaveMessages(ctx, "sess-1", msgs))

	got, err := c.Messages(ctx, "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "m3", got[2].ID)
	assert.Equal(t, "call-m1", got[0].Meta.ToolCallID)
	assert.Equal(t, "sess-1", got[0].SessionID)
}

func TestStaleRevisionDoesNotOverwrite(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	fresh := cachedMsg("m1", 5, 1)
	fresh.Content = "revision five"
	require.NoError(t, c.SaveMessages(ctx, "sess-1", []domain.Message{fresh}))

	stale := cachedMsg("m1", 3, 1)
	stale.Content = "revision three"
	require.NoError(t, c.SaveMessages(ctx, "sess-1", []domain.Message{stale}))

	got, err := c.Messages(ctx, "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "revision five", got[0].Content)
	assert.Equal(t, int64(5), got[0].Rev)
}

func TestMessagesLimitKeepsNewest(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	var msgs []domain.Message
	for i := 1; i <= 5; i++ {
		msgs = append(msgs, cachedMsg(string(rune('a'+i-1)), 1, i))
	}
	require.NoError(t, c.SaveMessages(ctx, "sess-1", msgs))

	got, err := c.Messages(ctx, "sess-1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Newest two, still in chronological order.
	assert.Equal(t, "d", got[0].ID)
	assert.Equal(t, "e", got[1].ID)
}

func TestMessagesIsolatedBySession(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	require.NoError(t, c.SaveMessages(ctx, "sess-1", []domain.Message{cachedMsg("m1", 1, 1)}))
	require.NoError(t, c.SaveMessages(ctx, "sess-2", []domain.Message{cachedMsg("m2", 1, 1)}))

	got, err := c.Messages(ctx, "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ID)
}

func TestDeleteSessionCascades(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, c.SaveSession(ctx, domain.Session{ID: "sess-1", Title: "t", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, c.SaveMessages(ctx, "sess-1", []domain.Message{cachedMsg("m1", 1, 1)}))

	require.NoError(t, c.DeleteSession(ctx, "sess-1"))

	sessions, err := c.Sessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	msgs, err := c.Messages(ctx, "sess-1", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
