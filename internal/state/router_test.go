package state

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/tether/internal/domain"
)

func event(t *testing.T, typ domain.EventType, payload any) domain.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return domain.Event{ID: "01J0000000000000000000000", Type: typ, Payload: raw}
}

type fakeInvalidator struct {
	sessions []string
}

func (f *fakeInvalidator) Invalidate(sessionID string) {
	f.sessions = append(f.sessions, sessionID)
}

// --- Dispatch Tests ---

func TestRouteUnknownTypeIsNoOp(t *testing.T) {
	s := NewStore("sess-1")
	r := NewRouter(s, nil, nil)
	before := s.Get()

	r.Route(domain.Event{Type: "some_future_event", Payload: json.RawMessage(`{"x":1}`)})

	assert.Equal(t, before, s.Get())
}

func TestRouteMalformedPayloadDropped(t *testing.T) {
	s := NewStore("sess-1")
	r := NewRouter(s, nil, nil)

	r.Route(domain.Event{Type: domain.EventTaskUpdated, Payload: json.RawMessage(`{not json`)})

	assert.Empty(t, s.Get().Tasks)
}

func TestRouteTaskCreated(t *testing.T) {
	s := NewStore("sess-1")
	r := NewRouter(s, nil, nil)

	r.Route(event(t, domain.EventTaskCreated, taskEventPayload{
		Task: domain.Task{ID: "t1", Title: "build", Step: "todo", Rev: 1},
	}))

	task, ok := s.Get().TaskByID("t1")
	assert.True(t, ok)
	assert.Equal(t, "build", task.Title)
}

func TestRouteTaskUpdatedIdempotent(t *testing.T) {
	s := NewStore("sess-1")
	r := NewRouter(s, nil, nil)
	ev := event(t, domain.EventTaskUpdated, taskEventPayload{
		Task: domain.Task{ID: "t1", Step: "doing", Rev: 2},
	})

	r.Route(ev)
	once := s.Get()
	r.Route(ev)
	twice := s.Get()

	assert.Equal(t, once, twice)
}

func TestRouteTaskUpdatedLastWriteWins(t *testing.T) {
	s := NewStore("sess-1")
	r := NewRouter(s, nil, nil)

	newer := event(t, domain.EventTaskUpdated, taskEventPayload{
		Task: domain.Task{ID: "t1", Step: "done", Rev: 7},
	})
	older := event(t, domain.EventTaskUpdated, taskEventPayload{
		Task: domain.Task{ID: "t1", Step: "doing", Rev: 4},
	})
	unrelated := event(t, domain.EventTaskUpdated, taskEventPayload{
		Task: domain.Task{ID: "t2", Step: "todo", Rev: 1},
	})

	// Completion order scrambled relative to issue order.
	r.Route(newer)
	r.Route(unrelated)
	r.Route(older)

	task, _ := s.Get().TaskByID("t1")
	assert.Equal(t, "done", task.Step)
	assert.Equal(t, int64(7), task.Rev)
}

func TestRouteTaskUpdatedCarriesRunAutomation(t *testing.T) {
	s := NewStore("sess-1")
	r := NewRouter(s, nil, nil)

	r.Route(event(t, domain.EventTaskUpdated, taskEventPayload{
		Task: domain.Task{ID: "t1", Step: "review", Rev: 2},
		Run:  &domain.Run{SessionID: "sess-1", State: domain.RunRunning, Step: "review"},
	}))

	snap := s.Get()
	assert.Equal(t, "review", snap.Run.Step)
	assert.Equal(t, domain.RunRunning, snap.Run.State)
}

func TestRouteMessageAddedAndUpdated(t *testing.T) {
	s := NewStore("sess-1")
	r := NewRouter(s, nil, nil)

	added := domain.Message{
		ID: "m1", SessionID: "sess-1", Author: domain.AuthorAgent,
		Tag: domain.TagToolExecute, Rev: 1,
		Meta:      domain.Meta{ToolCallID: "call-1", Status: domain.StatusRunning},
		CreatedAt: time.Now().UTC(),
	}
	r.Route(event(t, domain.EventMessageAdded, added))

	updated := added
	updated.Rev = 2
	updated.Meta.Status = domain.StatusComplete
	r.Route(event(t, domain.EventMessageUpdated, updated))

	m, ok := s.Get().MessageByID("m1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusComplete, m.Meta.Status)
}

func TestRoutePermissionLifecycle(t *testing.T) {
	s := NewStore("sess-1")
	r := NewRouter(s, nil, nil)

	r.Route(event(t, domain.EventPermissionRequested, domain.PermissionRequest{
		ID: "p1", ToolCallID: "abc", Tool: "bash", Status: domain.PermissionPending,
	}))
	assert.Equal(t, domain.PermissionPending, s.Get().Permissions["abc"].Status)

	r.Route(event(t, domain.EventPermissionResolved, permissionResolvedPayload{
		ToolCallID: "abc", Status: domain.PermissionApproved,
	}))
	assert.Equal(t, domain.PermissionApproved, s.Get().Permissions["abc"].Status)
}

// --- Side Effect Tests ---

func TestRouteInvalidatesDiffCacheOnDeclaredHandlers(t *testing.T) {
	s := NewStore("sess-1")
	inv := &fakeInvalidator{}
	r := NewRouter(s, inv, nil)

	r.Route(event(t, domain.EventGitStatusChanged, domain.GitStatus{Branch: "main", Dirty: true}))
	r.Route(event(t, domain.EventMessageAdded, domain.Message{ID: "m1", Rev: 1}))
	// Task events do not touch the diff cache.
	r.Route(event(t, domain.EventTaskCreated, taskEventPayload{Task: domain.Task{ID: "t1", Rev: 1}}))

	assert.Equal(t, []string{"sess-1", "sess-1"}, inv.sessions)
}

func TestDiffCacheExpiry(t *testing.T) {
	c := NewDiffCache(10 * time.Millisecond)
	c.Put("sess-1", "diff text")

	got, ok := c.Get("sess-1")
	assert.True(t, ok)
	assert.Equal(t, "diff text", got)

	time.Sleep(15 * time.Millisecond)
	_, ok = c.Get("sess-1")
	assert.False(t, ok)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestDiffCacheInvalidate(t *testing.T) {
	c := NewDiffCache(time.Minute)
	c.Put("sess-1", "diff text")
	c.Invalidate("sess-1")

	_, ok := c.Get("sess-1")
	assert.False(t, ok)
}
