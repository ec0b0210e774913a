package pager

import (
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/tether/internal/domain"
	"github.com/joss/tether/internal/logging"
	"github.com/joss/tether/internal/state"
)

func testLog() *logging.Logger {
	return logging.NewWriter("pager", io.Discard)
}

func msgRange(lo, hi int) []domain.Message {
	var msgs []domain.Message
	for i := lo; i <= hi; i++ {
		msgs = append(msgs, domain.Message{
			ID: fmt.Sprintf("m%03d", i), Author: domain.AuthorAgent,
			Tag: domain.TagAgentText, Rev: 1,
			CreatedAt: time.Date(2026, 8, 1, 0, 0, i, 0, time.UTC),
		})
	}
	return msgs
}

func seededStore(t *testing.T, lo, hi int, cursor string) *state.Store {
	t.Helper()
	st := state.NewStore("sess-1")
	st.Apply([]state.Partition{state.PartitionMessages}, func(s *state.Snapshot) {
		s.Messages = msgRange(lo, hi)
		s.HasMore = true
		s.Cursor = cursor
	})
	return st
}

// --- Fetch Guards ---

func TestLoadOlderOnlyNearTop(t *testing.T) {
	c := New(seededStore(t, 51, 60, "cur-51"), 50, testLog())

	c.Sync(20, 10, 40)
	_, ok := c.MaybeLoadOlder()
	assert.False(t, ok)

	c.Sync(topThreshold, 10, 40)
	req, ok := c.MaybeLoadOlder()
	require.True(t, ok)
	assert.Equal(t, 50, req.Limit)
	assert.Equal(t, "cur-51", req.Before)
	assert.False(t, req.Ascending)
}

func TestLoadOlderRequiresMorePages(t *testing.T) {
	st := state.NewStore("sess-1")
	st.Apply([]state.Partition{state.PartitionMessages}, func(s *state.Snapshot) {
		s.Messages = msgRange(1, 10)
		s.HasMore = false
	})
	c := New(st, 50, testLog())

	c.Sync(0, 10, 20)
	_, ok := c.MaybeLoadOlder()
	assert.False(t, ok)
}

func TestSingleFetchInFlight(t *testing.T) {
	c := New(seededStore(t, 51, 60, "cur-51"), 50, testLog())
	c.Sync(0, 10, 20)

	_, ok := c.MaybeLoadOlder()
	require.True(t, ok)
	_, ok = c.MaybeLoadOlder()
	assert.False(t, ok)
}

func TestFailLoadReleasesSlot(t *testing.T) {
	c := New(seededStore(t, 51, 60, "cur-51"), 50, testLog())
	c.Sync(0, 10, 20)

	_, ok := c.MaybeLoadOlder()
	require.True(t, ok)
	c.FailLoad(errors.New("boom"))
	_, ok = c.MaybeLoadOlder()
	assert.True(t, ok)
}

// --- Anchor Stability ---

func TestPrependKeepsScrollAnchor(t *testing.T) {
	st := seededStore(t, 51, 60, "cur-51")
	c := New(st, 50, testLog())
	c.Sync(2, 10, 20)

	_, ok := c.MaybeLoadOlder()
	require.True(t, ok)

	added := c.FinishLoad(domain.Page{
		Messages: msgRange(1, 50),
		HasMore:  false,
		Cursor:   "cur-1",
	})
	require.Equal(t, 50, added)

	// The caller re-rendered and the spliced content occupies 100 lines.
	offset := c.OnPrepend(100)
	assert.Equal(t, 2+100, offset)

	snap := st.Get()
	require.Len(t, snap.Messages, 60)
	assert.Equal(t, "m001", snap.Messages[0].ID)
	assert.Equal(t, "m060", snap.Messages[59].ID)
	assert.False(t, snap.HasMore)
	assert.Equal(t, "cur-1", snap.Cursor)
	assert.False(t, c.Loading())
}

func TestPrependSkipsOverlappingMessages(t *testing.T) {
	st := seededStore(t, 51, 60, "cur-51")
	c := New(st, 50, testLog())
	c.Sync(0, 10, 20)

	_, ok := c.MaybeLoadOlder()
	require.True(t, ok)

	// The page overlaps the window by one message; only the 4 new ones
	// land in the store.
	added := c.FinishLoad(domain.Page{Messages: msgRange(47, 51), HasMore: true, Cursor: "cur-47"})
	assert.Equal(t, 4, added)
	assert.Len(t, st.Get().Messages, 14)
}

func TestPrependWithoutNewContentLeavesOffsetAlone(t *testing.T) {
	c := New(seededStore(t, 51, 60, "cur-51"), 50, testLog())
	c.Sync(3, 10, 20)

	assert.Equal(t, 3, c.OnPrepend(0))
	assert.Equal(t, 3, c.Offset())
}

// --- Bottom Tracking ---

func TestAppendSnapsOnlyWhenAtBottom(t *testing.T) {
	c := New(seededStore(t, 1, 10, ""), 50, testLog())

	c.Sync(30, 10, 40) // exactly at bottom
	offset, snap := c.OnAppend(4)
	assert.True(t, snap)
	assert.Equal(t, 34, offset)

	c.Sync(5, 10, 44) // scrolled up into history
	offset, snap = c.OnAppend(4)
	assert.False(t, snap)
	assert.Equal(t, 5, offset)
}

func TestAtBottomAllowsSmallSlack(t *testing.T) {
	c := New(seededStore(t, 1, 10, ""), 50, testLog())

	c.Sync(30-bottomThreshold, 10, 40)
	assert.True(t, c.AtBottom())

	c.Sync(30-bottomThreshold-1, 10, 40)
	assert.False(t, c.AtBottom())
}

func TestShrinkReanchorsWhenAtBottom(t *testing.T) {
	c := New(seededStore(t, 1, 10, ""), 50, testLog())
	c.Sync(30, 10, 40)

	// The input area grows, stealing three lines from the transcript.
	offset, snap := c.OnResize(7)
	assert.True(t, snap)
	assert.Equal(t, 33, offset)
}

func TestResizeLeavesHistoryPositionAlone(t *testing.T) {
	c := New(seededStore(t, 1, 10, ""), 50, testLog())

	c.Sync(5, 10, 40)
	offset, snap := c.OnResize(7)
	assert.False(t, snap)
	assert.Equal(t, 5, offset)

	c.Sync(30, 7, 40)
	_, snap = c.OnResize(12) // growing never needs a re-anchor
	assert.False(t, snap)
}

func TestShortContentAnchorsToTop(t *testing.T) {
	c := New(seededStore(t, 1, 3, ""), 50, testLog())
	c.Sync(0, 20, 6)

	offset, snap := c.OnAppend(2)
	assert.True(t, snap)
	assert.Equal(t, 0, offset)
}
