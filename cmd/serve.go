package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"kinboard/internal/server"
	"kinboard/internal/store"
	"kinboard/pkg/logging"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local account API for the kiosk renderer",
		Long: `Starts the HTTP API the kiosk talks to: listing accounts,
triggering sign-ins, and fetching access tokens. The account store is
watched for changes made by other kinboard processes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.close()

			if addr == "" {
				addr = app.cfg.Server.Addr
			}

			// Keep the live account set in sync with CLI invocations that
			// mutate the store while we run.
			watcher, err := store.NewWatcher(app.store, func() {
				if err := app.registry.ReloadFromStore(); err != nil {
					logging.Warn("serve", "failed to reload accounts: %v", err)
				}
			})
			if err != nil {
				return fail("failed to watch account store", err)
			}
			defer watcher.Stop()

			httpServer := &http.Server{
				Addr:              addr,
				Handler:           server.New(app.registry),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logging.Info("serve", "account API listening on %s", addr)
				errCh <- httpServer.ListenAndServe()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fail("server failed", err)
				}
			case sig := <-sigCh:
				fmt.Printf("Received %s, shutting down\n", sig)
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					return fail("shutdown failed", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
