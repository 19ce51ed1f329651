// Package artifacts persists generated artifacts.
//
// The engine consumes the Store interface; the SQLite backend is the
// production implementation and the memory backend serves tests and
// ephemeral runs.
package artifacts

import (
	"context"
	"errors"
)

// ErrNotFound is returned when reading or updating an unknown artifact.
var ErrNotFound = errors.New("artifact not found")

// Store is the persistence collaborator consumed by agents.
type Store interface {
	// Read returns the content of the artifact with the given id.
	Read(ctx context.Context, id string) (string, error)
	// Write stores a new artifact under a location (a folder-like
	// grouping key) and returns its generated id.
	Write(ctx context.Context, name, content, location string) (string, error)
	// Update replaces the content of an existing artifact. kind records
	// what produced the revision ("documentation", "tests", ...).
	Update(ctx context.Context, id, content, kind string) error
}
