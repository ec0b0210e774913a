// Package timeline projects the flat conversation log into renderable
// items: standalone messages, collapsed turn groups and the live run
// status line.
package timeline

import (
	"time"

	"github.com/joss/tether/internal/domain"
)

// Item kinds, used where a renderer cannot type-switch.
const (
	KindMessage = "message"
	KindGroup   = "turn_group"
	KindRunning = "running"
)

// Item is a single renderable entry in the projected timeline.
type Item interface {
	ItemKind() string
}

// MessageItem renders one message standalone: turn boundaries, final agent
// text, standalone permission requests and anything with an unrecognized
// type tag.
type MessageItem struct {
	Message domain.Message
	// Perm is attached when the message is a permission request with a
	// matching indexed record.
	Perm *domain.PermissionRequest
}

func (MessageItem) ItemKind() string { return KindMessage }

// Entry is one member of a turn group. Subagent entries embed their child
// messages one level deep; children are rendered individually and never
// re-grouped.
type Entry struct {
	Message  domain.Message
	Perm     *domain.PermissionRequest
	Children []domain.Message
	Subagent bool
}

// TurnGroup is the derived cluster of groupable messages within one agent
// turn. It is recomputed from the message partition, never mutated in
// place.
type TurnGroup struct {
	// ID is stable across recomputes: derived from the turn's boundary
	// message.
	ID string
	// Fingerprint covers the mutable content of the group; manual
	// expand/collapse overrides are keyed by ID+Fingerprint so an edit to
	// the underlying messages resets the override.
	Fingerprint string

	Entries     []Entry
	Running     bool
	PendingPerm bool
	Expanded    bool
	Description string
	ToolCalls   int
	Subagents   int
	StartedAt   time.Time
}

// GroupItem renders a collapsible turn group.
type GroupItem struct {
	Group TurnGroup
}

func (GroupItem) ItemKind() string { return KindGroup }

// RunningItem renders the "agent running" status line. StartedAt is the
// turn's recorded start, not render time, so the elapsed timer survives
// re-renders.
type RunningItem struct {
	StartedAt time.Time
}

func (RunningItem) ItemKind() string { return KindRunning }
