package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/joss/tether/internal/config"
	"github.com/joss/tether/internal/render"
	"github.com/joss/tether/internal/transcript"
)

func logCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "log <session-id>",
		Short: "Print a cached transcript",
		Long: `Print a session transcript from the local cache, without touching
the server. The cache is filled while attached.

Examples:
  tether log sess-4f2a
  tether log sess-4f2a --limit 20`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cache, err := transcript.New(config.GetPaths().Data)
			if err != nil {
				fatalError(err)
			}
			defer cache.Close()

			msgs, err := cache.Messages(context.Background(), args[0], limit)
			if err != nil {
				fatalError(err)
			}

			width := 100
			if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
				width = w
			}
			fmt.Print(render.New(pretty, width).Transcript(msgs))
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Only the newest N messages (0 = all)")
	return cmd
}
