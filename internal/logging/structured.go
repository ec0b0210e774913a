// Package logging provides structured JSON logging for tether components.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/joss/tether/internal/config"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event represents a structured log event
type Event struct {
	Timestamp string         `json:"ts"`
	Level     Level          `json:"level"`
	Component string         `json:"component"`
	Event     string         `json:"event"`
	Session   string         `json:"session,omitempty"`
	Duration  int64          `json:"duration_ms,omitempty"`
	Error     string         `json:"error,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Logger provides structured logging
type Logger struct {
	component string
	session   string
	out       io.Writer
	mu        *sync.Mutex
	debug     bool
}

// New creates a new logger for a component. Output goes to stderr so it
// never interleaves with TUI or rendered transcript output on stdout.
// Debug events are emitted only when TETHER_DEBUG is set.
func New(component string) *Logger {
	return &Logger{
		component: component,
		session:   os.Getenv("TETHER_SESSION_ID"),
		out:       os.Stderr,
		mu:        &sync.Mutex{},
		debug:     config.Env().Debug,
	}
}

// NewWriter creates a logger writing to w with debug enabled (for tests).
func NewWriter(component string, w io.Writer) *Logger {
	return &Logger{component: component, out: w, mu: &sync.Mutex{}, debug: true}
}

// WithSession sets the session context
func (l *Logger) WithSession(session string) *Logger {
	return &Logger{component: l.component, session: session, out: l.out, mu: l.mu, debug: l.debug}
}

// log emits a structured log event
func (l *Logger) log(level Level, event string, extra map[string]any, err error) {
	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Component: l.component,
		Event:     event,
		Session:   l.session,
		Extra:     extra,
	}

	if err != nil {
		e.Error = err.Error()
	}

	data, _ := json.Marshal(e)
	l.mu.Lock()
	fmt.Fprintln(l.out, string(data))
	l.mu.Unlock()
}

// Debug logs a debug event. Suppressed unless debug logging is on.
func (l *Logger) Debug(event string, extra map[string]any) {
	if !l.debug {
		return
	}
	l.log(LevelDebug, event, extra, nil)
}

// Info logs an info event
func (l *Logger) Info(event string, extra map[string]any) {
	l.log(LevelInfo, event, extra, nil)
}

// Warn logs a warning event
func (l *Logger) Warn(event string, extra map[string]any, err error) {
	l.log(LevelWarn, event, extra, err)
}

// Error logs an error event
func (l *Logger) Error(event string, extra map[string]any, err error) {
	l.log(LevelError, event, extra, err)
}

// TimedEvent logs an event with duration
func (l *Logger) TimedEvent(event string, start time.Time, extra map[string]any) {
	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     LevelInfo,
		Component: l.component,
		Event:     event,
		Session:   l.session,
		Duration:  time.Since(start).Milliseconds(),
		Extra:     extra,
	}

	data, _ := json.Marshal(e)
	l.mu.Lock()
	fmt.Fprintln(l.out, string(data))
	l.mu.Unlock()
}
