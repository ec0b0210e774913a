package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/joss/tether/internal/domain"
	"github.com/joss/tether/internal/render"
	tstrings "github.com/joss/tether/internal/strings"
	"github.com/joss/tether/internal/timeline"
)

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Detached.\n"
	}
	if !m.ready {
		return fmt.Sprintf("\n  %s Attaching to %s...", m.spinner.View(), m.sessionID)
	}

	var b strings.Builder

	conn := errorStyle.Render("○ offline")
	if m.connected {
		conn = successStyle.Render("● live")
	}
	header := titleStyle.Render("⇅ tether") + "  " +
		dimStyle.Render(m.title) + "  " + conn
	b.WriteString(header + "\n\n")

	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	b.WriteString(m.renderStatusBar() + "\n")
	b.WriteString(inputBorderStyle.Width(m.layout.width - 4).Render(m.input.View()))

	return b.String()
}

func (m Model) renderStatusBar() string {
	parts := []string{string(m.snap.Run.State)}

	if m.snap.Run.Step != "" {
		parts = append(parts, m.snap.Run.Step)
	}
	if n := m.pendingPermissions(); n > 0 {
		parts = append(parts, permStyle.Render(fmt.Sprintf("%d permission pending · y/n", n)))
	}
	if m.snap.Git.Dirty {
		detail := "git: dirty"
		if m.diffStat != "" {
			detail += " · " + m.diffStat
		}
		parts = append(parts, dimStyle.Render(detail))
	}
	if m.pager.Loading() {
		parts = append(parts, m.spinner.View()+" history")
	}
	if m.err != nil {
		parts = append(parts, errorStyle.Render(tstrings.Truncate(m.err.Error(), 60)))
	} else if m.notice != "" {
		parts = append(parts, dimStyle.Render(m.notice))
	}

	return statusStyle.Width(m.layout.width).Render(strings.Join(parts, "  │  "))
}

func (m Model) pendingPermissions() int {
	n := 0
	for _, req := range m.snap.Permissions {
		if !req.Status.Resolved() {
			n++
		}
	}
	return n
}

// renderItems turns the projected timeline into viewport content.
func (m Model) renderItems() string {
	if len(m.items) == 0 {
		return dimStyle.Render("  No messages yet. Scroll up to load history, or say something.")
	}

	var b strings.Builder
	for i, item := range m.items {
		switch it := item.(type) {
		case timeline.MessageItem:
			m.renderMessageItem(&b, it)
		case timeline.GroupItem:
			m.renderGroup(&b, it.Group, i == m.selected)
		case timeline.RunningItem:
			elapsed := render.FormatDuration(time.Since(it.StartedAt).Truncate(time.Second))
			fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), thinkingStyle.Render("agent working · "+elapsed))
		}
	}
	return b.String()
}

func (m Model) renderMessageItem(b *strings.Builder, it timeline.MessageItem) {
	msg := it.Message

	switch {
	case msg.Author == domain.AuthorUser:
		b.WriteString(userStyle.Render("you") + "\n")
	case msg.Tag == domain.TagTaskDescription:
		b.WriteString(toolStyle.Render("task") + " " + agentStyle.Render(msg.Meta.Title) + "\n")
	case msg.Tag == domain.TagError:
		b.WriteString(errorStyle.Render("error") + "\n")
	default:
		b.WriteString(successStyle.Render("agent") + "\n")
	}

	for _, line := range m.wrapContent(msg.Content) {
		b.WriteString("  " + agentStyle.Render(line) + "\n")
	}
	if it.Perm != nil && !it.Perm.Status.Resolved() {
		b.WriteString("  " + permStyle.Render(permPrompt(*it.Perm)) + "\n")
	}
	b.WriteString("\n")
}

func (m Model) renderGroup(b *strings.Builder, g timeline.TurnGroup, selected bool) {
	marker := "▸"
	if g.Expanded {
		marker = "▾"
	}
	style := groupStyle
	if selected {
		style = selectedGroupStyle
	}

	header := fmt.Sprintf("%s %s", marker, g.Description)
	if g.Running {
		header += " " + m.spinner.View()
	}
	b.WriteString(style.Render(header) + "\n")

	if g.Expanded {
		for _, e := range g.Entries {
			m.renderEntry(b, e)
		}
	}
	b.WriteString("\n")
}

func (m Model) renderEntry(b *strings.Builder, e timeline.Entry) {
	title := entryTitle(e.Message)

	switch {
	case e.Message.Tag == domain.TagThinking:
		b.WriteString("  " + thinkingStyle.Render(tstrings.TruncateRunes(title, m.layout.width-4)) + "\n")
	case e.Message.Tag == domain.TagError:
		b.WriteString("  " + errorStyle.Render(title) + "\n")
	default:
		icon := render.StatusIcon(e.Message.Meta.Status)
		b.WriteString(fmt.Sprintf("  %s %s\n", icon, toolStyle.Render(title)))
	}

	for _, child := range e.Children {
		icon := render.StatusIcon(child.Meta.Status)
		b.WriteString(fmt.Sprintf("    └─ %s %s\n", icon, dimStyle.Render(entryTitle(child))))
	}

	if e.Perm != nil && !e.Perm.Status.Resolved() {
		b.WriteString("    " + permStyle.Render(permPrompt(*e.Perm)) + "\n")
	}
}

func entryTitle(msg domain.Message) string {
	if msg.Meta.Title != "" {
		return msg.Meta.Title
	}
	if line := tstrings.FirstLine(msg.Content); line != "" {
		return line
	}
	return msg.Tag
}

func permPrompt(req domain.PermissionRequest) string {
	target := req.Path
	if target == "" {
		target = req.Command
	}
	if target == "" {
		return fmt.Sprintf("allow %s? y/n", req.Tool)
	}
	return fmt.Sprintf("allow %s %s? y/n", req.Tool, tstrings.Truncate(target, 50))
}

func (m Model) wrapContent(content string) []string {
	if content == "" {
		return nil
	}
	width := m.layout.width - 4
	if width < 20 {
		width = 20
	}
	return strings.Split(tstrings.WordWrap(content, width), "\n")
}

// diffSummary condenses a unified diff into the status-bar form
// "3 files +40 -12".
func diffSummary(diff string) string {
	files, added, removed := 0, 0, 0
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++ "):
			files++
		case strings.HasPrefix(line, "--- "):
		case strings.HasPrefix(line, "+"):
			added++
		case strings.HasPrefix(line, "-"):
			removed++
		}
	}
	if files == 0 {
		return ""
	}
	noun := "files"
	if files == 1 {
		noun = "file"
	}
	return fmt.Sprintf("%d %s +%d -%d", files, noun, added, removed)
}
