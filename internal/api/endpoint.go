package api

import (
	"net/http"

	"github.com/spf13/cobra"
)

// Endpoint is one API operation declared once: its HTTP route and the
// CLI command that calls it. The registry derives both surfaces from
// the same list so they cannot drift.
type Endpoint interface {
	// Route returns the HTTP method, path, and handler.
	Route() (method, path string, handler http.HandlerFunc)

	// RequiresInit reports whether the route needs the order store and
	// services wired before it can answer.
	RequiresInit() bool

	// Command returns the cobra command for this endpoint, or nil for
	// routes with no CLI surface (webhooks). getServerURL is deferred
	// so the flag value is read at run time.
	Command(getServerURL func() string) *cobra.Command
}
