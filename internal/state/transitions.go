package state

import (
	"sort"

	"github.com/joss/tether/internal/domain"
)

// Pure transition helpers shared by the router, the mutation layer and the
// pager. Last-write-wins is decided by entity revision, never by arrival
// order, so re-applied and reordered events converge to the same state.

// UpsertTask inserts or replaces a task. Returns false when the stored
// revision already supersedes the incoming one.
func (s *Snapshot) UpsertTask(t domain.Task) bool {
	for i, cur := range s.Tasks {
		if cur.ID != t.ID {
			continue
		}
		if cur.Rev > t.Rev {
			return false
		}
		s.Tasks[i] = t
		s.sortTasks()
		return true
	}
	s.Tasks = append(s.Tasks, t)
	s.sortTasks()
	return true
}

// RemoveTask deletes a task by id. Removing an absent task is a no-op.
func (s *Snapshot) RemoveTask(id string) {
	for i, cur := range s.Tasks {
		if cur.ID == id {
			s.Tasks = append(s.Tasks[:i], s.Tasks[i+1:]...)
			return
		}
	}
}

// TaskByID looks up a task. Value receiver so it works on the copies
// returned by Store.Get.
func (s Snapshot) TaskByID(id string) (domain.Task, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Task{}, false
}

// RestoreTask reinstates a captured task value unconditionally, ignoring
// revision ordering, and re-sorts the board. Rollback paths use it so the
// restored task lands back in step/position order.
func (s *Snapshot) RestoreTask(t domain.Task) {
	for i, cur := range s.Tasks {
		if cur.ID == t.ID {
			s.Tasks[i] = t
			s.sortTasks()
			return
		}
	}
	s.Tasks = append(s.Tasks, t)
	s.sortTasks()
}

func (s *Snapshot) sortTasks() {
	sort.SliceStable(s.Tasks, func(i, j int) bool {
		if s.Tasks[i].Step != s.Tasks[j].Step {
			return s.Tasks[i].Step < s.Tasks[j].Step
		}
		return s.Tasks[i].Position < s.Tasks[j].Position
	})
}

// AppendMessage adds a message to the tail of the log. Duplicate delivery
// of the same id is a no-op unless the incoming revision is newer.
func (s *Snapshot) AppendMessage(m domain.Message) bool {
	for i, cur := range s.Messages {
		if cur.ID != m.ID {
			continue
		}
		if cur.Rev >= m.Rev {
			return false
		}
		s.Messages[i] = m
		s.reindexChild(m)
		return true
	}
	s.Messages = append(s.Messages, m)
	s.indexChild(m)
	return true
}

// ReplaceMessage replaces a message record by id. Returns false when the
// message is unknown or the stored revision is newer.
func (s *Snapshot) ReplaceMessage(m domain.Message) bool {
	for i, cur := range s.Messages {
		if cur.ID != m.ID {
			continue
		}
		if cur.Rev > m.Rev {
			return false
		}
		s.Messages[i] = m
		s.reindexChild(m)
		return true
	}
	return false
}

// PrependMessages inserts an older page at the head of the log in
// chronological order, skipping ids already present.
func (s *Snapshot) PrependMessages(msgs []domain.Message) int {
	known := make(map[string]bool, len(s.Messages))
	for _, m := range s.Messages {
		known[m.ID] = true
	}
	var fresh []domain.Message
	for _, m := range msgs {
		if known[m.ID] {
			continue
		}
		fresh = append(fresh, m)
		s.indexChild(m)
	}
	s.Messages = append(fresh, s.Messages...)
	return len(fresh)
}

// MessageByID looks up a message. Value receiver so it works on the
// copies returned by Store.Get.
func (s Snapshot) MessageByID(id string) (domain.Message, bool) {
	for _, m := range s.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return domain.Message{}, false
}

func (s *Snapshot) indexChild(m domain.Message) {
	parent := m.Meta.ParentToolCallID
	if parent == "" {
		return
	}
	for _, kid := range s.Children[parent] {
		if kid.ID == m.ID {
			return
		}
	}
	s.Children[parent] = append(s.Children[parent], m)
}

func (s *Snapshot) reindexChild(m domain.Message) {
	parent := m.Meta.ParentToolCallID
	if parent == "" {
		return
	}
	kids := s.Children[parent]
	for i, kid := range kids {
		if kid.ID == m.ID {
			kids[i] = m
			return
		}
	}
	s.Children[parent] = append(kids, m)
}

// UpsertPermission records a permission request by tool call id. A request
// that is already resolved never reverts to pending.
func (s *Snapshot) UpsertPermission(p domain.PermissionRequest) bool {
	cur, ok := s.Permissions[p.ToolCallID]
	if ok && cur.Status.Resolved() && !p.Status.Resolved() {
		return false
	}
	s.Permissions[p.ToolCallID] = p
	return true
}

// ResolvePermission marks the request for a tool call approved or
// rejected. Unknown tool call ids are dropped.
func (s *Snapshot) ResolvePermission(toolCallID string, status domain.PermissionStatus) bool {
	cur, ok := s.Permissions[toolCallID]
	if !ok || !status.Resolved() {
		return false
	}
	cur.Status = status
	s.Permissions[toolCallID] = cur
	return true
}
