// Package window abstracts the user-facing surface that shows the
// provider consent screen. The surface is a security boundary: it never
// shares script or context privileges with the rest of the application,
// and the registry only ever hands it a URL.
package window

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
)

// Controller is an isolated browsing surface for one authentication
// attempt. The account registry binds a controller to a loopback
// session: when the session resolves the controller is closed, and when
// the surface is closed by the user first, Closed fires and the bound
// session is cancelled.
type Controller interface {
	// Open navigates the surface to the consent URL.
	Open(ctx context.Context, authURL string) error

	// Close dismisses the surface. Idempotent; called on every exit path.
	Close() error

	// Closed is signalled when the user dismisses the surface manually.
	// Implementations that cannot observe closure return a channel that
	// never fires.
	Closed() <-chan struct{}
}

// BrowserController opens consent URLs in the system default browser.
// The browser is its own process, so it is isolated by construction; the
// trade-off is that manual closure cannot be observed, so Closed never
// fires and cancellation comes from timeout or explicit Cancel instead.
type BrowserController struct {
	closed chan struct{}
}

// NewBrowserController creates a controller backed by the default
// system browser.
func NewBrowserController() *BrowserController {
	return &BrowserController{closed: make(chan struct{})}
}

// Open launches the default browser at the given URL.
// It supports Linux, macOS, and Windows.
func (c *BrowserController) Open(ctx context.Context, authURL string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", authURL)
	case "darwin":
		cmd = exec.Command("open", authURL)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", authURL)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	// Start without waiting; the browser keeps running on its own.
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}

	return nil
}

// Close is a no-op: an external browser window cannot be dismissed from
// here.
func (c *BrowserController) Close() error {
	return nil
}

// Closed returns a channel that never fires.
func (c *BrowserController) Closed() <-chan struct{} {
	return c.closed
}
