package state

import (
	"encoding/json"

	"github.com/joss/tether/internal/domain"
	"github.com/joss/tether/internal/logging"
)

// Invalidator is the declared cache side effect of an event handler.
type Invalidator interface {
	Invalidate(sessionID string)
}

type handlerFunc func(*Snapshot, json.RawMessage) error

// handler binds an event type to its transition. writes declares the
// partitions touched; invalidatesDiff declares the file-diff cache side
// effect so no handler invalidates caches implicitly.
type handler struct {
	writes          []Partition
	invalidatesDiff bool
	apply           handlerFunc
}

// taskEventPayload is the task_created / task_updated envelope. Run is set
// when a server-side automation changed the workflow snapshot as part of
// the task change; the cross-partition write is declared, not implied.
type taskEventPayload struct {
	Task domain.Task `json:"task"`
	Run  *domain.Run `json:"run,omitempty"`
}

type idPayload struct {
	ID string `json:"id"`
}

type permissionResolvedPayload struct {
	ToolCallID string                  `json:"toolCallId"`
	Status     domain.PermissionStatus `json:"status"`
}

var handlers = map[domain.EventType]handler{
	domain.EventTaskCreated: {
		writes: []Partition{PartitionTasks, PartitionRun},
		apply:  applyTaskEvent,
	},
	domain.EventTaskUpdated: {
		writes: []Partition{PartitionTasks, PartitionRun},
		apply:  applyTaskEvent,
	},
	domain.EventTaskDeleted: {
		writes: []Partition{PartitionTasks},
		apply: func(s *Snapshot, raw json.RawMessage) error {
			var p idPayload
			if err := json.Unmarshal(raw, &p); err != nil {
				return err
			}
			s.RemoveTask(p.ID)
			return nil
		},
	},
	domain.EventRunStatusChanged: {
		writes: []Partition{PartitionRun},
		apply: func(s *Snapshot, raw json.RawMessage) error {
			var run domain.Run
			if err := json.Unmarshal(raw, &run); err != nil {
				return err
			}
			s.Run = run
			return nil
		},
	},
	domain.EventMessageAdded: {
		writes:          []Partition{PartitionMessages},
		invalidatesDiff: true,
		apply: func(s *Snapshot, raw json.RawMessage) error {
			var m domain.Message
			if err := json.Unmarshal(raw, &m); err != nil {
				return err
			}
			s.AppendMessage(m)
			return nil
		},
	},
	domain.EventMessageUpdated: {
		writes:          []Partition{PartitionMessages},
		invalidatesDiff: true,
		apply: func(s *Snapshot, raw json.RawMessage) error {
			var m domain.Message
			if err := json.Unmarshal(raw, &m); err != nil {
				return err
			}
			s.ReplaceMessage(m)
			return nil
		},
	},
	domain.EventGitStatusChanged: {
		writes:          []Partition{PartitionGit},
		invalidatesDiff: true,
		apply: func(s *Snapshot, raw json.RawMessage) error {
			var g domain.GitStatus
			if err := json.Unmarshal(raw, &g); err != nil {
				return err
			}
			s.Git = g
			return nil
		},
	},
	domain.EventPermissionRequested: {
		writes: []Partition{PartitionPermissions},
		apply: func(s *Snapshot, raw json.RawMessage) error {
			var p domain.PermissionRequest
			if err := json.Unmarshal(raw, &p); err != nil {
				return err
			}
			s.UpsertPermission(p)
			return nil
		},
	},
	domain.EventPermissionResolved: {
		writes: []Partition{PartitionPermissions},
		apply: func(s *Snapshot, raw json.RawMessage) error {
			var p permissionResolvedPayload
			if err := json.Unmarshal(raw, &p); err != nil {
				return err
			}
			s.ResolvePermission(p.ToolCallID, p.Status)
			return nil
		},
	},
}

func applyTaskEvent(s *Snapshot, raw json.RawMessage) error {
	var p taskEventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	s.UpsertTask(p.Task)
	if p.Run != nil {
		s.Run = *p.Run
	}
	return nil
}

// Router dispatches inbound server events to partition transitions.
type Router struct {
	store *Store
	diffs Invalidator
	log   *logging.Logger
}

// NewRouter creates a router for one store. diffs may be nil when no
// diff cache is attached.
func NewRouter(store *Store, diffs Invalidator, log *logging.Logger) *Router {
	if log == nil {
		log = logging.New("router")
	}
	return &Router{store: store, diffs: diffs, log: log}
}

// Route applies one event. It never returns an error: unknown event types
// are a silent no-op for forward compatibility, malformed payloads are
// dropped with a debug log. Handlers are idempotent under duplicate
// delivery.
func (r *Router) Route(ev domain.Event) {
	h, ok := handlers[ev.Type]
	if !ok {
		r.log.Debug("event_skipped", map[string]any{"type": string(ev.Type)})
		return
	}

	var applyErr error
	r.store.Apply(h.writes, func(s *Snapshot) {
		applyErr = h.apply(s, ev.Payload)
	})
	if applyErr != nil {
		r.log.Debug("event_dropped", map[string]any{
			"type":  string(ev.Type),
			"cause": applyErr.Error(),
		})
		return
	}

	// Declared side effect: runs after the transition commits.
	if h.invalidatesDiff && r.diffs != nil {
		r.diffs.Invalidate(r.store.SessionID())
	}
}
