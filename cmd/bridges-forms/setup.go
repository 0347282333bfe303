package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"

	"github.com/bridgestowork/bridges-forms/internal/config"
)

var setupFlags struct {
	project bool
	force   bool
	edit    bool
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create bridges-forms configuration file",
	Long: `Create a bridges-forms configuration file with the built-in Bridges catalog.

By default, creates a global config at ~/.config/bridges-forms/bridges-forms.yml.
Use --project to create a project-local config in the current directory.
Use --edit to open the file in $EDITOR afterwards.`,
	Args: cobra.NoArgs,
	RunE: runSetup,
}

func init() {
	setupCmd.Flags().BoolVarP(&setupFlags.project, "project", "p", false, "Create config in current directory instead of global location")
	setupCmd.Flags().BoolVarP(&setupFlags.force, "force", "f", false, "Overwrite existing config file")
	setupCmd.Flags().BoolVarP(&setupFlags.edit, "edit", "e", false, "Open the config file in your editor")
}

func runSetup(cmd *cobra.Command, args []string) error {
	targetPath := config.GlobalPath()
	if setupFlags.project {
		targetPath = config.ProjectPath()
	}

	switch {
	case fileExists(targetPath) && !setupFlags.force && setupFlags.edit:
		// Editing an existing file leaves it as is.
	case fileExists(targetPath) && !setupFlags.force:
		return fmt.Errorf("config file already exists at %s\n\nUse --force to overwrite or --edit to change it", targetPath)
	default:
		cfg := config.Default()
		var err error
		if setupFlags.project {
			err = config.WriteProject(cfg)
		} else {
			err = config.WriteGlobal(cfg)
		}
		if err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		fmt.Printf("Config written to: %s\n", targetPath)
	}

	if setupFlags.edit {
		return editFile(targetPath)
	}

	fmt.Println("\nRun 'bridges-forms' to get started.")
	return nil
}

func editFile(path string) error {
	c, err := editor.Command("bridges-forms", path)
	if err != nil {
		return fmt.Errorf("failed to start editor: %w", err)
	}
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("editor exited: %w", err)
	}
	return nil
}

// fileExists checks if a file exists (helper for setup command).
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
