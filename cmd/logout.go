package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout <account-id>",
		Short: "Remove an account and its stored tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.close()

			accountID := args[0]
			if err := app.registry.Logout(accountID); err != nil {
				return fail("logout failed", err)
			}

			fmt.Printf("Logged out %s\n", accountID)
			return nil
		},
	}
}
