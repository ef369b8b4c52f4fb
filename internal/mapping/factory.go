package mapping

import (
	"fmt"
	"os"
	"path/filepath"
)

// Backend selects the Store implementation.
type Backend string

const (
	// BackendBolt is the default, single-process backend.
	BackendBolt Backend = "bolt"

	// BackendSQLite allows concurrent readers from other processes.
	BackendSQLite Backend = "sqlite"
)

// Path returns the file a backend keeps under location.
func Path(backend, location string) string {
	switch Backend(backend) {
	case BackendSQLite:
		return filepath.Join(location, "state.sqlite")
	default:
		return filepath.Join(location, "state.db")
	}
}

// Open creates the Store for backend under the directory location.
//
// An empty location gives a throwaway store: in-memory for sqlite, a
// temporary file for bolt.
func Open(backend, location string) (Store, error) {
	switch Backend(backend) {
	case BackendBolt, "":
		if location == "" {
			dir, err := os.MkdirTemp("", "roomdex-state-*")
			if err != nil {
				return nil, fmt.Errorf("failed to create temp state dir: %w", err)
			}
			location = dir
		}
		return NewBoltStore(Path(string(BackendBolt), location))

	case BackendSQLite:
		if location == "" {
			return NewSQLiteStore("")
		}
		return NewSQLiteStore(Path(backend, location))

	default:
		return nil, fmt.Errorf("unknown state backend: %s (valid options: bolt, sqlite)", backend)
	}
}
