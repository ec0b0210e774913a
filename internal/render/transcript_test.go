package render

import (
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/joss/tether/internal/domain"
)

func init() {
	color.NoColor = true
}

func TestTranscriptPlainFormat(t *testing.T) {
	msgs := []domain.Message{
		{
			ID: "m1", Author: domain.AuthorUser, Content: "build the parser",
			CreatedAt: time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC),
		},
		{
			ID: "m2", Author: domain.AuthorAgent, Tag: domain.TagToolExecute,
			Meta:      domain.Meta{Status: domain.StatusComplete, Title: "go test ./parser"},
			CreatedAt: time.Date(2026, 8, 1, 9, 30, 12, 0, time.UTC),
		},
	}

	out := New(false, 0).Transcript(msgs)
	assert.Contains(t, out, "[09:30:00] user")
	assert.Contains(t, out, "  build the parser")
	assert.Contains(t, out, "[09:30:12] complete go test ./parser")
}

func TestTranscriptPrettyUsesStatusIcons(t *testing.T) {
	msgs := []domain.Message{
		{
			ID: "m1", Author: domain.AuthorAgent, Tag: domain.TagToolExecute,
			Meta:      domain.Meta{Status: domain.StatusError, Title: "go vet"},
			CreatedAt: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
		},
	}

	out := New(true, 0).Transcript(msgs)
	assert.Contains(t, out, "✗")
	assert.Contains(t, out, "go vet")
}

func TestTranscriptWrapsToWidth(t *testing.T) {
	msgs := []domain.Message{
		{
			ID: "m1", Author: domain.AuthorUser,
			Content:   "one two three four five six seven eight nine ten eleven twelve",
			CreatedAt: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
		},
	}

	out := New(false, 30).Transcript(msgs)
	for _, line := range splitLines(out) {
		assert.LessOrEqual(t, len(line), 32, "line %q", line)
	}
}

func TestEmptyStates(t *testing.T) {
	r := New(false, 0)
	assert.Equal(t, "No messages cached for this session", r.Transcript(nil))
	assert.Equal(t, "No sessions found", r.Sessions(nil))
}

func TestSessionsList(t *testing.T) {
	sessions := []domain.Session{
		{ID: "sess-1", Title: "refactor auth", UpdatedAt: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)},
	}

	out := New(false, 0).Sessions(sessions)
	assert.Contains(t, out, "sess-1")
	assert.Contains(t, out, "refactor auth")
	assert.Contains(t, out, "2026-08-01 09:00")
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, c := range s {
		if c == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	return lines
}
