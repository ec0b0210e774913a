package domain

import "time"

// PermissionStatus is the lifecycle of a gating request.
type PermissionStatus string

const (
	PermissionPending  PermissionStatus = "pending"
	PermissionApproved PermissionStatus = "approved"
	PermissionRejected PermissionStatus = "rejected"
)

// Resolved reports whether the request no longer gates its tool call.
func (s PermissionStatus) Resolved() bool {
	return s == PermissionApproved || s == PermissionRejected
}

// PermissionRequest gates a tool call until the user approves or rejects
// it. Requests are indexed by ToolCallID so the projector resolves them
// in O(1).
type PermissionRequest struct {
	ID         string           `json:"id"`
	ToolCallID string           `json:"toolCallId"`
	Tool       string           `json:"tool"`
	Path       string           `json:"path,omitempty"`
	Command    string           `json:"command,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	Status     PermissionStatus `json:"status"`
	CreatedAt  time.Time        `json:"createdAt"`
}
