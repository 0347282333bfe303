package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/bridgestowork/bridges-forms/internal/logger"
)

// Version set via ldflags during build
var version = "dev"

func main() {
	// Ensure logger is closed on exit
	defer func() { _ = logger.Close() }()

	if err := fang.Execute(context.Background(), rootCmd, fang.WithVersion(version)); err != nil {
		logger.Error("Command execution failed: %v", err)
		os.Exit(1)
	}
}

var rootFlags struct {
	site       string
	signInMode string
}

var rootCmd = &cobra.Command{
	Use:   "bridges-forms",
	Short: "Open Bridges forms for a site, pre-filled with a participant",
	Long: `bridges-forms walks you through choosing a site and a form, optionally
looks up an existing participant, and opens the form in your browser.

Participant search requires signing in with your organization account. Sign-in
state and launch history are kept in an embedded NATS JetStream store under
the data directory.

Configuration is loaded from multiple sources with the following precedence:
  CLI flags > Environment variables > Project config > Global config > Defaults

Project config: ./bridges-forms.yml
Global config: ~/.config/bridges-forms/bridges-forms.yml`,
	Args: cobra.NoArgs,
	RunE: runWizard,
}

func init() {
	rootCmd.Flags().StringVarP(&rootFlags.site, "site", "s", "", "Start with this site selected (e.g. \"new-york-city\")")
	rootCmd.Flags().StringVar(&rootFlags.signInMode, "sign-in-mode", "", "Sign-in presentation: auto, overlay or blocking")

	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(formsCmd)
	rootCmd.AddCommand(signoutCmd)
	rootCmd.AddCommand(historyCmd)
}
