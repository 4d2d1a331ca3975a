package cmd

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

func newLoginCmd() *cobra.Command {
	var loginHint string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in a Google account",
		Long: `Opens the system browser on the provider consent screen and waits
for the redirect. The resulting account is stored locally and shows up
in 'kinboard accounts'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.close()

			s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
			s.Suffix = " Waiting for sign-in in your browser..."
			s.Start()

			acct, err := app.registry.StartAuthentication(cmd.Context(), loginHint)
			s.Stop()
			if err != nil {
				return fail("sign-in failed", err)
			}

			fmt.Printf("Signed in as %s", acct.Email)
			if acct.DisplayName != "" {
				fmt.Printf(" (%s)", acct.DisplayName)
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().StringVar(&loginHint, "hint", "", "email address to preselect on the provider's account chooser")
	return cmd
}
