// Package main provides the tether CLI entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joss/tether/internal/api"
	"github.com/joss/tether/internal/config"
)

var (
	version = "0.1.0"
	pretty  = true
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tether [session-id]",
		Short: "Terminal client for remote agent sessions",
		Long: `tether attaches your terminal to a running agent session on an
orchestration server: live transcript, task board moves, permission
prompts and lazy history, all without owning the agent loop.

Usage modes:
  tether                   Attach to $TETHER_SESSION_ID (or the most recent session)
  tether <session-id>      Attach to a specific session
  tether <command>         Run a tether command (see below)

The server is taken from $TETHER_SERVER_URL.`,
		Version: version,
		Args:    cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			sessionID := config.Env().SessionID
			if len(args) > 0 {
				sessionID = args[0]
			}
			runAttach(sessionID)
		},
	}

	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", true, "Pretty print output")

	rootCmd.AddCommand(attachCmd())
	rootCmd.AddCommand(sessionsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(rulesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newClient() *api.Client {
	env := config.Env()
	return api.NewClient(env.ServerURL, env.Token)
}

// fatalError prints an error to stderr and exits.
func fatalError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
