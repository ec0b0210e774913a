package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joss/tether/internal/config"
	"github.com/joss/tether/internal/domain"
	"github.com/joss/tether/internal/rules"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Show permission auto-answer rules",
		Long: fmt.Sprintf(`Show the permission auto-answer rules loaded from %s.

Rules are one per line: allow|deny <tool> <pattern>. The first matching
rule answers a permission request without prompting.`, config.GetPaths().Rules),
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			set, err := rules.Load(config.GetPaths().Rules)
			if err != nil {
				fatalError(err)
			}
			if set.Len() == 0 {
				fmt.Println("No rules loaded; every permission request will prompt.")
				return
			}
			fmt.Printf("%d rules loaded from %s\n", set.Len(), config.GetPaths().Rules)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check <tool> <target>",
		Short: "Evaluate a request against the rules",
		Long: `Evaluate what the rules would answer for a permission request.

Examples:
  tether rules check read internal/state/store.go
  tether rules check bash "git push"`,
		Args: cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			set, err := rules.Load(config.GetPaths().Rules)
			if err != nil {
				fatalError(err)
			}
			status, ok := set.Match(domain.PermissionRequest{Tool: args[0], Path: args[1]})
			if !ok {
				fmt.Println("no match: would prompt")
				return
			}
			fmt.Printf("would auto-answer: %s\n", status)
		},
	})

	return cmd
}
