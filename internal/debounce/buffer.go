// Package debounce centralizes "local edit buffer committed after an
// idle timeout" so the timer logic is not duplicated per input field.
package debounce

import (
	"sync"
	"time"
)

// Buffer accumulates edits and invokes the commit callback once the
// value has been stable for the configured delay. Commit runs on the
// timer goroutine.
type Buffer struct {
	mu     sync.Mutex
	delay  time.Duration
	timer  *time.Timer
	value  string
	dirty  bool
	commit func(string)
}

// New creates a buffer. The commit callback receives the settled value.
func New(delay time.Duration, commit func(string)) *Buffer {
	return &Buffer{delay: delay, commit: commit}
}

// Set records an edit and restarts the idle timer.
func (b *Buffer) Set(v string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.value = v
	b.dirty = true
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.delay, b.fire)
}

func (b *Buffer) fire() {
	b.mu.Lock()
	if !b.dirty {
		b.mu.Unlock()
		return
	}
	b.dirty = false
	v := b.value
	b.mu.Unlock()
	b.commit(v)
}

// Flush commits a pending value immediately, cancelling the timer.
func (b *Buffer) Flush() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
	}
	if !b.dirty {
		b.mu.Unlock()
		return
	}
	b.dirty = false
	v := b.value
	b.mu.Unlock()
	b.commit(v)
}

// Stop cancels any pending commit without firing it.
func (b *Buffer) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
	}
	b.dirty = false
}

// Value returns the latest edit, committed or not.
func (b *Buffer) Value() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value
}
