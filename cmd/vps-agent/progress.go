package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Mikeyy1405/Writgoai.nl/internal/agent"
	"github.com/Mikeyy1405/Writgoai.nl/internal/task"
	"github.com/Mikeyy1405/Writgoai.nl/internal/workspace"
)

var progressHeaderStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#7C3AED")).
	Bold(true).
	Padding(0, 1)

func newProgressCommand() *cobra.Command {
	var workspaceRoot string

	cmd := &cobra.Command{
		Use:   "progress <task-id>",
		Short: "Render the progress document of a task",
		Long: `progress reads the todo.md a running or recently finished task keeps in
its workspace and renders it to the terminal.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgress(workspaceRoot, args[0])
		},
	}
	cmd.Flags().StringVar(&workspaceRoot, "workspace-root", defaultWorkspaceRoot(),
		"directory holding the task workspaces")
	return cmd
}

func defaultWorkspaceRoot() string {
	if root := os.Getenv("WORKSPACE_ROOT"); root != "" {
		return root
	}
	return "/tmp"
}

func runProgress(root, taskID string) error {
	store := workspace.NewStore(task.WorkspaceDir(root, taskID))
	content, err := store.Read(agent.ProgressFilename)
	if err != nil {
		return fmt.Errorf("no progress document for task %s: %w", taskID, err)
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(100),
		glamour.WithEmoji(),
	)
	if err != nil {
		return fmt.Errorf("create renderer: %w", err)
	}

	rendered, err := renderer.Render(content)
	if err != nil {
		return fmt.Errorf("render progress document: %w", err)
	}

	fmt.Println(progressHeaderStyle.Render("Task " + taskID))
	fmt.Print(rendered)
	return nil
}
