package schema

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santagram/santagram/internal/defra"
)

// Initialize registers every embedded schema with DefraDB. Re-running
// against a database that already has the collections is a no-op.
func Initialize(ctx context.Context, client *defra.Client, logger *slog.Logger) error {
	schemas, err := All()
	if err != nil {
		return fmt.Errorf("failed to load schemas: %w", err)
	}

	for _, s := range schemas {
		switch err := client.AddSchema(ctx, s.SDL); {
		case err == nil:
			logger.Info("schema added", "name", s.Name)
		case isAlreadyExistsError(err):
			logger.Info("schema already exists", "name", s.Name)
		default:
			return fmt.Errorf("failed to add schema %s: %w", s.Name, err)
		}
	}
	return nil
}

// isAlreadyExistsError matches DefraDB's duplicate-collection error.
// DefraDB is reached over HTTP, so the error text from the response
// body is all there is to match on.
func isAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "collection already exists") ||
		strings.Contains(msg, "already exists")
}
