package cmd

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newAccountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List signed-in accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.close()

			accounts := app.registry.ListAccounts()
			if len(accounts) == 0 {
				fmt.Println("No accounts signed in. Run 'kinboard login' to add one.")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"Account ID", "Email", "Name", "Status"})
			for _, acct := range accounts {
				status := "ok"
				switch {
				case acct.NeedsReauth:
					status = "needs re-auth"
				case !acct.TokenValid:
					status = "token expired"
				}
				t.AppendRow(table.Row{acct.ID, acct.Email, acct.DisplayName, status})
			}
			t.SetStyle(table.StyleLight)
			t.Render()
			return nil
		},
	}
}
