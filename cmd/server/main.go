// Command chatline runs the contact service and its operator tooling.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatline",
		Short: "Contact requests and relationships for the chat platform",
		Long: `chatline serves the contact API: user search, contact requests and
their responses, and contact lists.

Configuration is read from CHATLINE_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newSeedCommand())
	cmd.AddCommand(newReconcileCommand())
	cmd.AddCommand(newTokenCommand())
	return cmd
}
