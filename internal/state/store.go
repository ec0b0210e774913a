// Package state holds the canonical client view model: a partitioned,
// single-writer store plus the router that applies server events to it.
package state

import (
	"sync"

	"github.com/joss/tether/internal/domain"
)

// Partition names an independently-addressable slice of the view model.
type Partition string

const (
	PartitionTasks       Partition = "tasks"
	PartitionRun         Partition = "run"
	PartitionMessages    Partition = "messages"
	PartitionPermissions Partition = "permissions"
	PartitionGit         Partition = "git"
)

// Snapshot is a full copy of the view model. Children is a derived index
// (parent tool call id -> child messages) maintained together with the
// messages partition so subagent resolution stays O(1).
type Snapshot struct {
	Tasks       []domain.Task
	Run         domain.Run
	Messages    []domain.Message
	Children    map[string][]domain.Message
	Permissions map[string]domain.PermissionRequest
	Git         domain.GitStatus

	// Pagination state for the messages partition.
	HasMore bool
	Cursor  string
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Tasks = make([]domain.Task, len(s.Tasks))
	copy(out.Tasks, s.Tasks)
	out.Messages = make([]domain.Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	out.Children = make(map[string][]domain.Message, len(s.Children))
	for k, v := range s.Children {
		kids := make([]domain.Message, len(v))
		copy(kids, v)
		out.Children[k] = kids
	}
	out.Permissions = make(map[string]domain.PermissionRequest, len(s.Permissions))
	for k, v := range s.Permissions {
		out.Permissions[k] = v
	}
	out.Git.Files = append([]string(nil), s.Git.Files...)
	return out
}

// Transition mutates the current snapshot in place. It always receives the
// live state, never a closed-over copy, so completions scheduled from
// asynchronous work observe every transition that interleaved since the
// work began.
type Transition func(*Snapshot)

type subscriber struct {
	parts map[Partition]bool
	cb    func(Snapshot)
}

// Store is the canonical state container for one attached session. All
// writes are serialized through Apply; no component mutates partitions
// directly. One Store per session, never a process-wide singleton.
type Store struct {
	mu     sync.Mutex
	sessID string
	snap   Snapshot
	subs   map[int]*subscriber
	nextID int
	closed bool
}

// NewStore creates an empty store for a session.
func NewStore(sessionID string) *Store {
	return &Store{
		sessID: sessionID,
		snap: Snapshot{
			Children:    make(map[string][]domain.Message),
			Permissions: make(map[string]domain.PermissionRequest),
			Run:         domain.Run{SessionID: sessionID, State: domain.RunIdle},
		},
		subs: make(map[int]*subscriber),
	}
}

// SessionID returns the session this store mirrors.
func (s *Store) SessionID() string { return s.sessID }

// Get returns a deep copy of the current view model.
func (s *Store) Get() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.clone()
}

// Apply runs a transition against the live state. writes declares the
// partitions the transition touches; subscribers selecting any of them are
// notified with a fresh copy after the transition commits. Writing a
// partition that was not declared is a bug in the caller.
func (s *Store) Apply(writes []Partition, fn Transition) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	fn(&s.snap)
	var notify []func(Snapshot)
	for _, sub := range s.subs {
		for _, p := range writes {
			if sub.parts[p] {
				notify = append(notify, sub.cb)
				break
			}
		}
	}
	var copied Snapshot
	if len(notify) > 0 {
		copied = s.snap.clone()
	}
	s.mu.Unlock()

	for _, cb := range notify {
		cb(copied)
	}
}

// Subscribe registers a callback for changes to any of the given
// partitions. The returned function removes the subscription.
func (s *Store) Subscribe(parts []Partition, cb func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	set := make(map[Partition]bool, len(parts))
	for _, p := range parts {
		set[p] = true
	}
	s.subs[id] = &subscriber{parts: set, cb: cb}
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Close tears the store down at session detach. Further Applies are
// dropped and all subscriptions are removed.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.subs = make(map[int]*subscriber)
}
