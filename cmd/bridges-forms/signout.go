package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var signoutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Forget the cached organization account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := openApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		accounts, err := a.provider.CachedAccounts(ctx)
		if err != nil {
			return fmt.Errorf("failed to read cached account: %w", err)
		}
		if len(accounts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No account is signed in.")
			return nil
		}

		if err := a.gate.SignOut(ctx); err != nil {
			return err
		}
		for _, acct := range accounts {
			fmt.Fprintf(cmd.OutOrStdout(), "Signed out %s.\n", acct.Email)
		}
		return nil
	},
}
