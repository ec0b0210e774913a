// Package pager drives lazy backward pagination of the transcript and
// keeps the scroll position stable while pages are spliced in. All
// geometry is in terminal lines.
package pager

import (
	"sync"

	"github.com/joss/tether/internal/domain"
	"github.com/joss/tether/internal/logging"
	"github.com/joss/tether/internal/state"
)

const (
	// Lines from the top of the content within which a scroll position
	// triggers a backward fetch.
	topThreshold = 3
	// Lines from the bottom within which the view counts as "at bottom".
	bottomThreshold = 2
)

// Controller owns the fetch-older lifecycle: it decides when a backward
// page is needed, claims the single in-flight slot, and on completion
// prepends the page. The renderer owns layout, so after re-rendering the
// caller reports the real height delta through OnPrepend and the offset
// shifts by exactly that amount.
type Controller struct {
	mu    sync.Mutex
	store *state.Store
	log   *logging.Logger

	pageSize int
	loading  bool
	atBottom bool

	offset int // first visible content line
	height int // viewport height
	total  int // full content height
}

// New creates a controller bound to one session's store.
func New(store *state.Store, pageSize int, log *logging.Logger) *Controller {
	return &Controller{
		store:    store,
		log:      log,
		pageSize: pageSize,
		atBottom: true,
	}
}

// Sync records the viewport geometry after a render pass. The at-bottom
// flag is derived here, before any append or resize consults it.
func (c *Controller) Sync(offset, height, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = offset
	c.height = height
	c.total = total
	c.atBottom = total-(offset+height) <= bottomThreshold
}

// Offset returns the current scroll offset in lines.
func (c *Controller) Offset() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

// AtBottom reports whether the view was pinned to the bottom at the last
// sync.
func (c *Controller) AtBottom() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.atBottom
}

// Loading reports whether a backward fetch is in flight.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// MaybeLoadOlder decides whether a backward page fetch should start. It
// returns the page request and true only when the scroll position is near
// the top, older pages exist, and no fetch is already in flight; in that
// case the in-flight slot is claimed and the caller must resolve it with
// FinishLoad or FailLoad.
func (c *Controller) MaybeLoadOlder() (domain.PageRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loading || c.offset > topThreshold {
		return domain.PageRequest{}, false
	}
	snap := c.store.Get()
	if !snap.HasMore {
		return domain.PageRequest{}, false
	}

	c.loading = true
	return domain.PageRequest{
		Limit:     c.pageSize,
		Before:    snap.Cursor,
		Ascending: false,
	}, true
}

// FinishLoad prepends a fetched page and releases the in-flight slot.
// Duplicate cursor overlap is dropped by the store; the returned count is
// the number of messages actually added. The caller re-renders and then
// feeds the real height delta to OnPrepend.
func (c *Controller) FinishLoad(page domain.Page) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false

	added := 0
	c.store.Apply([]state.Partition{state.PartitionMessages}, func(s *state.Snapshot) {
		added = s.PrependMessages(page.Messages)
		s.HasMore = page.HasMore
		s.Cursor = page.Cursor
	})
	c.log.Debug("page prepended", map[string]any{"added": added})
	return added
}

// OnPrepend shifts the scroll offset by the rendered height the prepended
// content introduced, so the line the user was reading does not move. The
// delta comes from the actual render, not an estimate: grouping can
// collapse a prepended run into far fewer lines than its message count.
// Returns the adjusted offset.
func (c *Controller) OnPrepend(heightDelta int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if heightDelta > 0 {
		c.offset += heightDelta
		c.total += heightDelta
	}
	return c.offset
}

// FailLoad releases the in-flight slot after a failed fetch.
func (c *Controller) FailLoad(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	c.log.Warn("page fetch failed", nil, err)
}

// OnAppend accounts for new trailing content and reports whether the view
// should snap to the bottom. It snaps only if the view was already at the
// bottom immediately before the append.
func (c *Controller) OnAppend(addedLines int) (offset int, snap bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasAtBottom := c.atBottom
	c.total += addedLines
	if wasAtBottom {
		c.offset = bottomOffset(c.total, c.height)
		return c.offset, true
	}
	return c.offset, false
}

// OnResize records the new viewport height. When the visible area shrinks
// while the view is pinned to the bottom, the offset is re-anchored so
// the latest content stays in view.
func (c *Controller) OnResize(height int) (offset int, snap bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	shrunk := height < c.height
	c.height = height
	if shrunk && c.atBottom {
		c.offset = bottomOffset(c.total, c.height)
		return c.offset, true
	}
	return c.offset, false
}

func bottomOffset(total, height int) int {
	if total <= height {
		return 0
	}
	return total - height
}
