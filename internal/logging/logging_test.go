package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/tether/internal/config"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) Event {
	t.Helper()
	var e Event
	require.NoError(t, json.Unmarshal(buf.Bytes(), &e))
	return e
}

func TestInfoEvent(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter("router", &buf)

	l.Info("event_applied", map[string]any{"type": "task_updated"})

	e := decodeLine(t, &buf)
	assert.Equal(t, LevelInfo, e.Level)
	assert.Equal(t, "router", e.Component)
	assert.Equal(t, "event_applied", e.Event)
	assert.Equal(t, "task_updated", e.Extra["type"])
}

func TestErrorEventCarriesError(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter("api", &buf)

	l.Error("request_failed", nil, errors.New("connection refused"))

	e := decodeLine(t, &buf)
	assert.Equal(t, LevelError, e.Level)
	assert.Equal(t, "connection refused", e.Error)
}

func TestWithSession(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter("state", &buf).WithSession("sess-1")

	l.Debug("partition_changed", nil)

	e := decodeLine(t, &buf)
	assert.Equal(t, "sess-1", e.Session)
}

func TestDebugSuppressedWhenDisabled(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{component: "pager", out: &buf, mu: &sync.Mutex{}}

	l.Debug("page prepended", nil)
	assert.Zero(t, buf.Len())

	l.Info("page prepended", nil)
	assert.NotZero(t, buf.Len())
}

func TestNewReadsDebugFlag(t *testing.T) {
	t.Cleanup(config.ResetEnv)

	config.ResetEnv()
	t.Setenv("TETHER_DEBUG", "1")
	assert.True(t, New("api").debug)

	config.ResetEnv()
	t.Setenv("TETHER_DEBUG", "")
	assert.False(t, New("api").debug)
}

func TestTimedEvent(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter("pager", &buf)

	l.TimedEvent("page_fetched", time.Now().Add(-10*time.Millisecond), nil)

	e := decodeLine(t, &buf)
	assert.GreaterOrEqual(t, e.Duration, int64(0))
}
