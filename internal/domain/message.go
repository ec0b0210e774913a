// Package domain defines the core entities mirrored from the tether server:
// sessions, messages, tasks, runs and permission requests.
package domain

import "time"

// Author identifies who produced a message.
type Author string

const (
	AuthorUser   Author = "user"
	AuthorAgent  Author = "agent"
	AuthorSystem Author = "system"
)

// Message type tags. Rendering and grouping dispatch on these strings
// against static tables; unknown tags fall back to a generic leaf.
const (
	TagTaskDescription = "task_description"
	TagAgentText       = "agent_text"
	TagThinking        = "thinking"
	TagTodo            = "todo"
	TagToolCall        = "tool_call"
	TagToolEdit        = "tool_edit"
	TagToolRead        = "tool_read"
	TagToolSearch      = "tool_search"
	TagToolExecute     = "tool_execute"
	TagStatus          = "status"
	TagError           = "error"
	TagProgress        = "progress"
	TagPermission      = "permission_request"
	TagScriptRun       = "script_run"
)

// Tool call status values pushed by the server.
const (
	StatusPending  = "pending"
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusError    = "error"
)

// TerminalStatus reports whether a tool status is final.
func TerminalStatus(status string) bool {
	return status == StatusComplete || status == StatusError
}

// Meta carries the optional per-message metadata the server attaches to
// tool and permission messages.
type Meta struct {
	ToolCallID       string `json:"toolCallId,omitempty"`
	ParentToolCallID string `json:"parentToolCallId,omitempty"`
	Status           string `json:"status,omitempty"`
	Title            string `json:"title,omitempty"`
	Subagent         bool   `json:"subagent,omitempty"`
}

// Message is a single record in the flat, append-only conversation log.
// Messages are immutable once created; a message_updated event replaces
// the whole record by id.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"parentSessionId"`
	Author    Author    `json:"authorType"`
	Tag       string    `json:"typeTag"`
	Content   string    `json:"content"`
	Meta      Meta      `json:"metadata"`
	Rev       int64     `json:"rev"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsToolCall reports whether the message represents an agent-invoked tool.
func (m Message) IsToolCall() bool {
	switch m.Tag {
	case TagToolCall, TagToolEdit, TagToolRead, TagToolSearch, TagToolExecute:
		return true
	}
	return false
}

// Session describes an attachable server session.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Directory string    `json:"directory,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
