package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joss/tether/internal/config"
	"github.com/joss/tether/internal/render"
	"github.com/joss/tether/internal/transcript"
)

func sessionsCmd() *cobra.Command {
	var cached bool

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions",
		Long: `List agent sessions on the server, most recently updated first.

With --cached, list the locally cached sessions instead (works offline).`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			r := render.New(pretty, 0)

			if cached {
				cache, err := transcript.New(config.GetPaths().Data)
				if err != nil {
					fatalError(err)
				}
				defer cache.Close()

				sessions, err := cache.Sessions(context.Background())
				if err != nil {
					fatalError(err)
				}
				fmt.Print(r.Sessions(sessions))
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			sessions, err := newClient().Sessions(ctx)
			if err != nil {
				fatalError(err)
			}
			fmt.Print(r.Sessions(sessions))
		},
	}

	cmd.Flags().BoolVar(&cached, "cached", false, "List locally cached sessions")
	return cmd
}
