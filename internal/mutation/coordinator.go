// Package mutation implements optimistic mutations against the view model:
// speculative local apply, bounded remote call, reconcile or exact rollback.
package mutation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/joss/tether/internal/domain"
	"github.com/joss/tether/internal/logging"
	"github.com/joss/tether/internal/state"
)

// ErrSuperseded marks a late completion whose attempt token went stale: a
// newer mutation for the same entity started before this one finished, so
// the result is discarded, neither reconciled nor rolled back.
var ErrSuperseded = errors.New("mutation superseded")

// Error is the scoped failure a mutation surfaces to its caller, carrying
// the entity and operation so the UI can report inline rather than global
// failure.
type Error struct {
	Op        string
	EntityKey string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.EntityKey, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// RemoteCall executes the server operation and returns the authoritative
// result payload.
type RemoteCall func(ctx context.Context) (json.RawMessage, error)

// Mutation describes one optimistic state change. Snapshot must capture
// the literal pre-mutation sub-state for the entity, not a recomputation;
// Restore must reinstate exactly that capture. Reconcile applies the
// server-confirmed payload, which may change more than the speculation
// predicted.
type Mutation struct {
	Op        string
	EntityKey string
	Writes    []state.Partition
	Snapshot  func(state.Snapshot) any
	Speculate func(*state.Snapshot)
	Restore   func(*state.Snapshot, any)
	Reconcile func(*state.Snapshot, json.RawMessage) error
	Call      RemoteCall
	Timeout   time.Duration
}

// Coordinator runs mutations against one session store.
//
// There is no per-entity mutation queue: two overlapping mutations on the
// same entity race, and the second snapshot may capture the first one's
// still-unconfirmed speculation, so rolling one back can discard the
// other's effect. The attempt token only stops a stale completion from
// being applied after a newer attempt began.
type Coordinator struct {
	store *state.Store
	log   *logging.Logger

	mu       sync.Mutex
	attempts map[string]uint64
}

// NewCoordinator creates a coordinator for a store.
func NewCoordinator(store *state.Store, log *logging.Logger) *Coordinator {
	if log == nil {
		log = logging.New("mutation")
	}
	return &Coordinator{
		store:    store,
		log:      log,
		attempts: make(map[string]uint64),
	}
}

func (c *Coordinator) begin(entityKey string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts[entityKey]++
	return c.attempts[entityKey]
}

func (c *Coordinator) current(entityKey string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts[entityKey]
}

// Perform runs one mutation: capture, speculate, call, then reconcile or
// roll back. The returned error is always a *Error when non-nil.
func (c *Coordinator) Perform(ctx context.Context, m Mutation) error {
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	captured := m.Snapshot(c.store.Get())
	c.store.Apply(m.Writes, m.Speculate)
	token := c.begin(m.EntityKey)

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	payload, err := m.Call(callCtx)

	if c.current(m.EntityKey) != token {
		c.log.Debug("attempt_superseded", map[string]any{
			"op": m.Op, "entity": m.EntityKey,
		})
		return &Error{Op: m.Op, EntityKey: m.EntityKey, Err: ErrSuperseded}
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = domain.ErrTimeout
		}
		c.store.Apply(m.Writes, func(s *state.Snapshot) {
			m.Restore(s, captured)
		})
		c.log.Warn("mutation_rolled_back", map[string]any{
			"op": m.Op, "entity": m.EntityKey,
		}, err)
		return &Error{Op: m.Op, EntityKey: m.EntityKey, Err: err}
	}

	var reconcileErr error
	c.store.Apply(m.Writes, func(s *state.Snapshot) {
		reconcileErr = m.Reconcile(s, payload)
	})
	if reconcileErr != nil {
		// The server committed; keep the speculation rather than diverge
		// by rolling back a confirmed change.
		c.log.Warn("reconcile_failed", map[string]any{
			"op": m.Op, "entity": m.EntityKey,
		}, reconcileErr)
		return &Error{Op: m.Op, EntityKey: m.EntityKey, Err: reconcileErr}
	}

	c.log.TimedEvent("mutation_committed", start, map[string]any{
		"op": m.Op, "entity": m.EntityKey,
	})
	return nil
}
