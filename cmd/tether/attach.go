package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/joss/tether/internal/config"
	"github.com/joss/tether/internal/domain"
	"github.com/joss/tether/internal/logging"
	"github.com/joss/tether/internal/transcript"
	"github.com/joss/tether/internal/tui"
)

func attachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attach [session-id]",
		Short: "Attach to a session",
		Long: `Attach the terminal to an agent session.

Without an argument, $TETHER_SESSION_ID is used; if that is empty the
most recently updated session on the server is picked.

Examples:
  tether attach
  tether attach sess-4f2a`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			sessionID := config.Env().SessionID
			if len(args) > 0 {
				sessionID = args[0]
			}
			runAttach(sessionID)
		},
	}
}

func runAttach(sessionID string) {
	log := logging.New("cli")
	client := newClient()

	sess, err := resolveSession(client, sessionID)
	if err != nil {
		fatalError(err)
	}

	cache, err := transcript.New(config.GetPaths().Data)
	if err != nil {
		// The TUI works without the offline cache.
		log.Warn("transcript cache unavailable", nil, err)
		cache = nil
	} else {
		defer cache.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		cache.SaveSession(ctx, sess)
		cancel()
	}

	p := tea.NewProgram(tui.NewModel(client, cache, sess), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fatalError(err)
	}
}

// resolveSession turns an optional id into a full session record,
// defaulting to the most recently updated session on the server.
func resolveSession(client interface {
	Sessions(ctx context.Context) ([]domain.Session, error)
}, sessionID string) (domain.Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sessions, err := client.Sessions(ctx)
	if err != nil {
		return domain.Session{}, fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		return domain.Session{}, fmt.Errorf("no sessions on server")
	}

	if sessionID == "" {
		return sessions[0], nil
	}
	for _, s := range sessions {
		if s.ID == sessionID {
			return s, nil
		}
	}
	return domain.Session{}, fmt.Errorf("session %s not found", sessionID)
}
