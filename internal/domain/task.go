package domain

import "time"

// Task is an entry on the session workflow board. Moving a task between
// steps is the canonical optimistic mutation: the server may run
// automations on a move that change more fields than the client predicted.
type Task struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Step      string    `json:"step"`
	Position  int       `json:"position"`
	Assignee  string    `json:"assignee,omitempty"`
	Labels    []string  `json:"labels,omitempty"`
	Rev       int64     `json:"rev"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RunState classifies the workflow run lifecycle.
type RunState string

const (
	RunIdle    RunState = "idle"
	RunRunning RunState = "running"
	RunPaused  RunState = "paused"
	RunDone    RunState = "done"
	RunFailed  RunState = "failed"
)

// Active reports whether the session is still producing output.
func (s RunState) Active() bool {
	return s == RunRunning || s == RunPaused
}

// Run is the workflow snapshot for an attached session. TurnStartedAt is
// the server-recorded start of the current agent turn, so elapsed timers
// survive re-renders and reattaches.
type Run struct {
	SessionID     string    `json:"sessionId"`
	State         RunState  `json:"state"`
	Step          string    `json:"step,omitempty"`
	TurnStartedAt time.Time `json:"turnStartedAt,omitempty"`
}

// GitStatus mirrors the server's view of the session working tree.
type GitStatus struct {
	Branch string   `json:"branch"`
	Dirty  bool     `json:"dirty"`
	Ahead  int      `json:"ahead"`
	Behind int      `json:"behind"`
	Files  []string `json:"files,omitempty"`
}
