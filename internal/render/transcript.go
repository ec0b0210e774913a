// Package render formats cached transcripts and session lists for plain
// terminal output, outside the interactive TUI.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/joss/tether/internal/domain"
	tstrings "github.com/joss/tether/internal/strings"
)

// Renderer handles output formatting.
type Renderer struct {
	pretty bool
	width  int
}

// New creates a renderer. width bounds wrapped content lines; zero means
// no wrapping.
func New(pretty bool, width int) *Renderer {
	return &Renderer{pretty: pretty, width: width}
}

// Transcript formats a chronological message list.
func (r *Renderer) Transcript(msgs []domain.Message) string {
	if len(msgs) == 0 {
		return "No messages cached for this session"
	}

	var sb strings.Builder
	for _, m := range msgs {
		r.formatMessage(&sb, m)
	}
	return sb.String()
}

func (r *Renderer) formatMessage(sb *strings.Builder, m domain.Message) {
	timeStr := m.CreatedAt.Format("15:04:05")

	if m.IsToolCall() {
		r.formatToolCall(sb, m, timeStr)
		return
	}

	label := r.authorLabel(m)
	if r.pretty {
		fmt.Fprintf(sb, "%s %s\n", color.HiBlackString(timeStr), label)
	} else {
		fmt.Fprintf(sb, "[%s] %s\n", timeStr, label)
	}

	for _, line := range r.wrap(m.Content) {
		fmt.Fprintf(sb, "  %s\n", line)
	}
	sb.WriteString("\n")
}

func (r *Renderer) formatToolCall(sb *strings.Builder, m domain.Message, timeStr string) {
	title := m.Meta.Title
	if title == "" {
		title = tstrings.FirstLine(m.Content)
	}
	if title == "" {
		title = m.Tag
	}

	if r.pretty {
		fmt.Fprintf(sb, "%s %s %s\n", StatusIcon(m.Meta.Status), color.HiBlackString(timeStr), title)
	} else {
		fmt.Fprintf(sb, "[%s] %s %s\n", timeStr, m.Meta.Status, title)
	}
}

func (r *Renderer) authorLabel(m domain.Message) string {
	switch m.Author {
	case domain.AuthorUser:
		if r.pretty {
			return color.CyanString("user")
		}
		return "user"
	case domain.AuthorAgent:
		if m.Tag == domain.TagThinking {
			if r.pretty {
				return color.HiBlackString("agent (thinking)")
			}
			return "agent (thinking)"
		}
		if r.pretty {
			return color.GreenString("agent")
		}
		return "agent"
	default:
		return string(m.Author)
	}
}

func (r *Renderer) wrap(content string) []string {
	if content == "" {
		return nil
	}
	if r.width <= 0 {
		return strings.Split(content, "\n")
	}
	return strings.Split(tstrings.WordWrap(content, r.width-2), "\n")
}

// Sessions formats the cached session list, most recent first.
func (r *Renderer) Sessions(sessions []domain.Session) string {
	if len(sessions) == 0 {
		return "No sessions found"
	}

	var sb strings.Builder
	if r.pretty {
		sb.WriteString(color.CyanString("Sessions\n"))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}

	for _, s := range sessions {
		when := s.UpdatedAt.Format("2006-01-02 15:04")
		title := tstrings.Truncate(s.Title, 50)
		if r.pretty {
			fmt.Fprintf(&sb, "%s %s %s\n", color.HiBlackString(when), s.ID, title)
		} else {
			fmt.Fprintf(&sb, "[%s] %s %s\n", when, s.ID, title)
		}
	}
	return sb.String()
}

// StatusIcon returns the marker for a tool status.
func StatusIcon(status string) string {
	switch status {
	case domain.StatusComplete:
		return color.GreenString("✓")
	case domain.StatusError:
		return color.RedString("✗")
	case domain.StatusRunning:
		return color.YellowString("●")
	case domain.StatusPending:
		return "○"
	default:
		return "•"
	}
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
