// Command vps-agent runs the autonomous task agent: an HTTP intake for
// platform tasks, an LLM-driven execution loop inside a Docker sandbox, and
// webhook reporting back to the platform.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Mikeyy1405/Writgoai.nl/internal/version"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "vps-agent",
		Short: "Autonomous task agent for the WritgoAI platform",
		Long: `vps-agent accepts tasks over HTTP, works on them with an LLM-driven
loop inside a Docker sandbox, and reports results back over webhooks.`,
		SilenceUsage: true,
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(newProgressCommand())
	root.AddCommand(newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Version: %s\n", version.Version)
		},
	}
}
