package domain

import "encoding/json"

// EventType tags an inbound server event. The set is closed but
// extensible: a type without a registered handler is a valid no-op.
type EventType string

const (
	EventTaskCreated         EventType = "task_created"
	EventTaskUpdated         EventType = "task_updated"
	EventTaskDeleted         EventType = "task_deleted"
	EventRunStatusChanged    EventType = "run_status_changed"
	EventMessageAdded        EventType = "message_added"
	EventMessageUpdated      EventType = "message_updated"
	EventGitStatusChanged    EventType = "git_status_changed"
	EventPermissionRequested EventType = "permission_requested"
	EventPermissionResolved  EventType = "permission_resolved"
)

// Event is the inbound server envelope: a type tag plus an opaque payload
// decoded by the matching handler.
type Event struct {
	ID      string          `json:"id"` // ULID, lexicographically ordered
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}
