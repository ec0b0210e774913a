package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/joss/tether/internal/api"
	"github.com/joss/tether/internal/domain"
	"github.com/joss/tether/internal/mutation"
	"github.com/joss/tether/internal/state"
	"github.com/joss/tether/internal/transcript"
)

// connect opens the event feed. The stream lives until ctx is cancelled
// on detach, so the feed goroutine never outlives the model.
func connect(ctx context.Context, client *api.Client, sessionID string) tea.Cmd {
	return func() tea.Msg {
		events, err := client.Events(ctx, sessionID)
		if err != nil {
			return disconnectedMsg{err: err}
		}
		return connectedMsg{events: events}
	}
}

func waitEvent(events <-chan domain.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return disconnectedMsg{}
		}
		return eventMsg(ev)
	}
}

func waitSnapshot(sub <-chan state.Snapshot) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(<-sub)
	}
}

func loadPage(client *api.Client, sessionID string, req domain.PageRequest) tea.Cmd {
	return func() tea.Msg {
		page, err := client.Messages(context.Background(), sessionID, req)
		if err != nil {
			return pageErrMsg{err: err}
		}
		return pageMsg(page)
	}
}

func sendMessage(coord *mutation.Coordinator, ops mutation.Operations, sessionID, content string, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := mutation.SendMessage(ctx, coord, ops, sessionID, content)
		return mutationDoneMsg{op: "send", err: err}
	}
}

func moveTask(coord *mutation.Coordinator, ops mutation.Operations, taskID, step string, position int, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := mutation.MoveTask(ctx, coord, ops, taskID, step, position)
		return mutationDoneMsg{op: "move " + taskID, err: err}
	}
}

func respondPermission(coord *mutation.Coordinator, ops mutation.Operations, toolCallID string, status domain.PermissionStatus, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := mutation.RespondPermission(ctx, coord, ops, toolCallID, status)
		return mutationDoneMsg{op: string(status), err: err}
	}
}

// loadDiff resolves the session diff for the status bar, serving from the
// diff cache when the router has not invalidated it since the last fetch.
func loadDiff(ctx context.Context, client *api.Client, diffs *state.DiffCache, sessionID string) tea.Cmd {
	return func() tea.Msg {
		if text, ok := diffs.Get(sessionID); ok {
			return diffMsg{diff: text}
		}
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		text, err := client.Diff(ctx, sessionID)
		if err != nil {
			return diffMsg{err: err}
		}
		diffs.Put(sessionID, text)
		return diffMsg{diff: text}
	}
}

func saveTranscript(cache *transcript.Cache, sessionID string, msgs []domain.Message) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return savedMsg{err: cache.SaveMessages(ctx, sessionID, msgs)}
	}
}

func elapsedTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return elapsedTickMsg(t) })
}
