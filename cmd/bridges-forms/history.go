package main

import (
	"fmt"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/spf13/cobra"

	"github.com/bridgestowork/bridges-forms/internal/history"
	"github.com/bridgestowork/bridges-forms/internal/store"
)

var historyFlags struct {
	limit int
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently opened forms",
	Long: `Show recently opened forms, newest first.

Only the form, the site and whether a participant was attached are recorded.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyFlags.limit, "limit", "n", 20, "Number of launches to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if historyFlags.limit <= 0 {
		return fmt.Errorf("limit must be > 0")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(ctx, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	log, err := history.Open(ctx, st.JetStream())
	if err != nil {
		return fmt.Errorf("failed to open launch history: %w", err)
	}
	launches, err := log.Recent(ctx, historyFlags.limit)
	if err != nil {
		return err
	}
	if len(launches) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No forms opened yet.")
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), historyTable(launches))
	return nil
}

func historyTable(launches []history.Launch) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("When", "Form", "Site", "Participant")
	for _, l := range launches {
		participant := "no"
		if l.WithContact {
			participant = "yes"
		}
		site := l.Site
		if site == "" {
			site = "-"
		}
		t.Row(l.At.Local().Format("2006-01-02 15:04"), l.FormName, site, participant)
	}
	return t.String()
}
