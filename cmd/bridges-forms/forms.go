package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bridgestowork/bridges-forms/internal/catalog"
	"github.com/bridgestowork/bridges-forms/internal/tui/markdown"
)

var formsFlags struct {
	width int
}

var formsCmd = &cobra.Command{
	Use:   "forms",
	Short: "List the configured sites and forms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cat, err := catalog.FromConfig(cfg)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), markdown.Render(markdown.Catalog(cat, cfg.BaseURL), formsFlags.width))
		return nil
	},
}

func init() {
	formsCmd.Flags().IntVarP(&formsFlags.width, "width", "w", 100, "Word wrap width")
}
