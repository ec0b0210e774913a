package timeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/joss/tether/internal/domain"
	tstrings "github.com/joss/tether/internal/strings"
)

const descriptionWidth = 48

type class int

const (
	classBoundary class = iota
	classLeaf
	classGroupable
)

// classify buckets a message by its type tag. Unknown tags fall into the
// generic leaf bucket so one malformed record cannot break the timeline.
func classify(m domain.Message) class {
	if m.Author == domain.AuthorUser || m.Tag == domain.TagTaskDescription {
		return classBoundary
	}
	switch m.Tag {
	case domain.TagThinking, domain.TagTodo,
		domain.TagToolCall, domain.TagToolEdit, domain.TagToolRead,
		domain.TagToolSearch, domain.TagToolExecute,
		domain.TagStatus, domain.TagError, domain.TagProgress:
		return classGroupable
	case domain.TagAgentText, domain.TagPermission, domain.TagScriptRun:
		return classLeaf
	default:
		return classLeaf
	}
}

// Projector turns the message log plus its auxiliary indexes into render
// items. Projection is a pure function of its inputs except for the
// per-group manual expand/collapse overrides.
type Projector struct {
	mu        sync.Mutex
	overrides map[string]bool
}

// New creates a projector with no manual overrides.
func New() *Projector {
	return &Projector{overrides: make(map[string]bool)}
}

// Toggle records a manual expand/collapse override for a group. The
// override is keyed by group identity plus content fingerprint, so it
// lapses as soon as the underlying messages change.
func (p *Projector) Toggle(g TurnGroup) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overrides[g.ID+"#"+g.Fingerprint] = !g.Expanded
}

// Project computes the render item list. Messages linked to a parent tool
// call are omitted from the top level; they appear only inside their
// subagent composite.
func (p *Projector) Project(
	msgs []domain.Message,
	perms map[string]domain.PermissionRequest,
	children map[string][]domain.Message,
	run domain.Run,
) []Item {
	var items []Item
	var groups []int // item indexes holding a group, in turn order

	var pending []Entry
	var pendingAt int
	var turnBoundaryID string
	var turnStart time.Time
	var lastBoundary time.Time
	var lastBoundaryID string

	// The group is spliced in at the position of its first member, so a
	// trailing final-answer leaf stays after the turn's tool activity.
	flush := func() {
		if len(pending) == 0 {
			return
		}
		g := buildGroup(turnBoundaryID, turnStart, pending)
		pending = nil
		items = append(items, nil)
		copy(items[pendingAt+1:], items[pendingAt:])
		items[pendingAt] = GroupItem{Group: g}
		groups = append(groups, pendingAt)
	}

	for _, m := range msgs {
		if m.Meta.ParentToolCallID != "" {
			continue
		}
		switch classify(m) {
		case classBoundary:
			flush()
			turnBoundaryID = m.ID
			turnStart = m.CreatedAt
			lastBoundary = m.CreatedAt
			lastBoundaryID = m.ID
			items = append(items, MessageItem{Message: m})
		case classLeaf:
			items = append(items, p.leafItem(m, perms))
		case classGroupable:
			if len(pending) == 0 {
				pendingAt = len(items)
			}
			pending = append(pending, p.entry(m, perms, children))
		}
	}
	flush()

	p.applyExpansion(items, groups, run, lastBoundaryID)

	if run.State == domain.RunRunning {
		start := run.TurnStartedAt
		if start.IsZero() {
			start = lastBoundary
		}
		items = append(items, RunningItem{StartedAt: start})
	}

	return items
}

func (p *Projector) leafItem(m domain.Message, perms map[string]domain.PermissionRequest) MessageItem {
	item := MessageItem{Message: m}
	if m.Meta.ToolCallID != "" {
		if perm, ok := perms[m.Meta.ToolCallID]; ok {
			item.Perm = &perm
		}
	}
	return item
}

func (p *Projector) entry(m domain.Message, perms map[string]domain.PermissionRequest, children map[string][]domain.Message) Entry {
	e := Entry{Message: m}
	callID := m.Meta.ToolCallID
	if callID != "" {
		if perm, ok := perms[callID]; ok {
			e.Perm = &perm
		}
		if kids := children[callID]; len(kids) > 0 {
			e.Children = kids
			e.Subagent = m.Tag == domain.TagToolCall
		}
	}
	if m.Meta.Subagent && m.Tag == domain.TagToolCall {
		e.Subagent = true
	}
	return e
}

func buildGroup(boundaryID string, startedAt time.Time, entries []Entry) TurnGroup {
	g := TurnGroup{
		ID:        "g:" + boundaryID,
		Entries:   entries,
		StartedAt: startedAt,
	}
	if boundaryID == "" {
		// Older pages not yet loaded: anchor identity to the first member.
		g.ID = "g:" + entries[0].Message.ID
	}

	for _, e := range entries {
		if e.Subagent {
			g.Subagents++
		} else if e.Message.IsToolCall() {
			g.ToolCalls++
		}
		if e.Perm != nil && !e.Perm.Status.Resolved() {
			g.PendingPerm = true
		}
		if entryRunning(e) {
			g.Running = true
		}
	}

	g.Fingerprint = fingerprint(entries)
	g.Description = describe(g)
	return g
}

// entryRunning reports whether a tool or subagent member is still in a
// non-terminal status.
func entryRunning(e Entry) bool {
	if (e.Message.IsToolCall() || e.Subagent) &&
		e.Message.Meta.Status != "" && !domain.TerminalStatus(e.Message.Meta.Status) {
		return true
	}
	for _, kid := range e.Children {
		if kid.Meta.Status != "" && !domain.TerminalStatus(kid.Meta.Status) {
			return true
		}
	}
	return false
}

// fingerprint hashes the mutable content of a group: member identity,
// revision, status and child count.
func fingerprint(entries []Entry) string {
	h := sha256.New()
	for _, e := range entries {
		fmt.Fprintf(h, "%s:%d:%s:%d;", e.Message.ID, e.Message.Rev, e.Message.Meta.Status, len(e.Children))
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:8])
}

func describe(g TurnGroup) string {
	if g.Running {
		last := g.Entries[len(g.Entries)-1].Message
		title := last.Meta.Title
		if title == "" {
			title = tstrings.FirstLine(last.Content)
		}
		if title == "" {
			title = last.Tag
		}
		return tstrings.TruncateRunes(title, descriptionWidth)
	}
	desc := fmt.Sprintf("%d tool calls", g.ToolCalls)
	if g.ToolCalls == 1 {
		desc = "1 tool call"
	}
	if g.Subagents > 0 {
		unit := "subagents"
		if g.Subagents == 1 {
			unit = "subagent"
		}
		desc += fmt.Sprintf(", %d %s", g.Subagents, unit)
	}
	return desc
}

// applyExpansion resolves the expanded flag for every group: automatic
// policy first, then any manual override that still matches the group's
// fingerprint.
func (p *Projector) applyExpansion(items []Item, groups []int, run domain.Run, lastBoundaryID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, idx := range groups {
		gi := items[idx].(GroupItem)
		g := gi.Group

		auto := g.Running || g.PendingPerm
		if !auto && i == len(groups)-1 && g.ID == "g:"+lastBoundaryID && run.State.Active() {
			// Last group of the last turn while the session is still
			// producing output.
			auto = true
		}

		g.Expanded = auto
		if manual, ok := p.overrides[g.ID+"#"+g.Fingerprint]; ok {
			g.Expanded = manual
		}
		items[idx] = GroupItem{Group: g}
	}
}
