package mutation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/joss/tether/internal/domain"
	"github.com/joss/tether/internal/state"
)

// Operations executes named server operations. Implemented by api.Client.
type Operations interface {
	Do(ctx context.Context, op string, params any) (json.RawMessage, error)
}

// taskSnapshot is the literal capture for task mutations: the task value
// plus whether it existed at all.
type taskSnapshot struct {
	task   domain.Task
	exists bool
}

// taskResult is the server's authoritative answer to a task operation. Run
// is present when a server-side automation adjusted the workflow snapshot.
type taskResult struct {
	Task domain.Task `json:"task"`
	Run  *domain.Run `json:"run,omitempty"`
}

// MoveTask optimistically moves a task to a step/position and reconciles
// with the server result.
func MoveTask(ctx context.Context, c *Coordinator, ops Operations, taskID, step string, position int) error {
	return c.Perform(ctx, Mutation{
		Op:        "task.move",
		EntityKey: taskID,
		Writes:    []state.Partition{state.PartitionTasks, state.PartitionRun},
		Snapshot: func(s state.Snapshot) any {
			t, ok := s.TaskByID(taskID)
			return taskSnapshot{task: t, exists: ok}
		},
		Speculate: func(s *state.Snapshot) {
			t, ok := s.TaskByID(taskID)
			if !ok {
				return
			}
			t.Step = step
			t.Position = position
			s.UpsertTask(t)
		},
		Restore: func(s *state.Snapshot, captured any) {
			snap := captured.(taskSnapshot)
			if !snap.exists {
				s.RemoveTask(taskID)
				return
			}
			s.RestoreTask(snap.task)
		},
		Reconcile: func(s *state.Snapshot, payload json.RawMessage) error {
			var res taskResult
			if err := json.Unmarshal(payload, &res); err != nil {
				return err
			}
			s.UpsertTask(res.Task)
			if res.Run != nil {
				s.Run = *res.Run
			}
			return nil
		},
		Call: func(ctx context.Context) (json.RawMessage, error) {
			return ops.Do(ctx, "task.move", map[string]any{
				"taskId":   taskID,
				"step":     step,
				"position": position,
			})
		},
	})
}

// SendMessage inserts a local echo of the user message immediately and
// swaps it for the server record once confirmed. On failure the echo is
// removed.
func SendMessage(ctx context.Context, c *Coordinator, ops Operations, sessionID, content string) error {
	echoID := "local-" + uuid.NewString()
	echo := domain.Message{
		ID:        echoID,
		SessionID: sessionID,
		Author:    domain.AuthorUser,
		Tag:       "", // plain user text has no type tag
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	return c.Perform(ctx, Mutation{
		Op:        "message.send",
		EntityKey: echoID,
		Writes:    []state.Partition{state.PartitionMessages},
		Snapshot: func(state.Snapshot) any {
			// Pre-mutation sub-state for a brand new message is its absence.
			return nil
		},
		Speculate: func(s *state.Snapshot) {
			s.AppendMessage(echo)
		},
		Restore: func(s *state.Snapshot, _ any) {
			removeMessage(s, echoID)
		},
		Reconcile: func(s *state.Snapshot, payload json.RawMessage) error {
			var confirmed domain.Message
			if err := json.Unmarshal(payload, &confirmed); err != nil {
				return err
			}
			removeMessage(s, echoID)
			s.AppendMessage(confirmed)
			return nil
		},
		Call: func(ctx context.Context) (json.RawMessage, error) {
			return ops.Do(ctx, "message.send", map[string]any{
				"sessionId": sessionID,
				"content":   content,
				"localId":   echoID,
			})
		},
	})
}

// RespondPermission optimistically resolves a pending permission request.
func RespondPermission(ctx context.Context, c *Coordinator, ops Operations, toolCallID string, status domain.PermissionStatus) error {
	return c.Perform(ctx, Mutation{
		Op:        "permission.respond",
		EntityKey: toolCallID,
		Writes:    []state.Partition{state.PartitionPermissions},
		Snapshot: func(s state.Snapshot) any {
			p, ok := s.Permissions[toolCallID]
			return permSnapshot{perm: p, exists: ok}
		},
		Speculate: func(s *state.Snapshot) {
			s.ResolvePermission(toolCallID, status)
		},
		Restore: func(s *state.Snapshot, captured any) {
			snap := captured.(permSnapshot)
			if !snap.exists {
				delete(s.Permissions, toolCallID)
				return
			}
			s.Permissions[toolCallID] = snap.perm
		},
		Reconcile: func(s *state.Snapshot, payload json.RawMessage) error {
			var confirmed domain.PermissionRequest
			if err := json.Unmarshal(payload, &confirmed); err != nil {
				return err
			}
			s.Permissions[confirmed.ToolCallID] = confirmed
			return nil
		},
		Call: func(ctx context.Context) (json.RawMessage, error) {
			return ops.Do(ctx, "permission.respond", map[string]any{
				"toolCallId": toolCallID,
				"status":     status,
			})
		},
	})
}

type permSnapshot struct {
	perm   domain.PermissionRequest
	exists bool
}

func removeMessage(s *state.Snapshot, id string) {
	for i, cur := range s.Messages {
		if cur.ID == id {
			s.Messages = append(s.Messages[:i], s.Messages[i+1:]...)
			return
		}
	}
}
