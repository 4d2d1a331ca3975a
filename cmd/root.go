package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kinboard/internal/account"
	"kinboard/internal/oauth"
	"kinboard/pkg/logging"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates an account needs re-authentication.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the OAuth flow failed or was abandoned.
	ExitCodeAuthFailed = 3
)

var (
	configPath string
	logLevel   string
)

// rootCmd represents the base command for the kinboard application.
var rootCmd = &cobra.Command{
	Use:   "kinboard",
	Short: "Multi-account Google sign-in for the kinboard kiosk",
	Long: `kinboard manages the signed-in Google accounts behind a shared
calendar kiosk: interactive sign-in with PKCE, durable token storage,
silent refresh, and a local API the kiosk renderer talks to.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Initialize(logging.ParseLevel(logLevel), os.Stderr)
	},
}

// SetVersion sets the version for the root command. Called from main to
// inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command and exits with a semantic code on
// failure.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "kinboard version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps flow errors to exit codes so scripts can tell "user
// declined" from "something broke".
func getExitCode(err error) int {
	var denied *oauth.DeniedError
	if errors.As(err, &denied) {
		return ExitCodeAuthFailed
	}
	if errors.Is(err, oauth.ErrAuthCancelled) || errors.Is(err, oauth.ErrAuthTimedOut) {
		return ExitCodeAuthFailed
	}
	if errors.Is(err, account.ErrReauthRequired) {
		return ExitCodeAuthRequired
	}
	var exchange *oauth.ExchangeError
	if errors.As(err, &exchange) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is $HOME/.config/kinboard/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newAccountsCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}

// fail wraps an error with a short prefix for CLI output.
func fail(action string, err error) error {
	return fmt.Errorf("%s: %w", action, err)
}
