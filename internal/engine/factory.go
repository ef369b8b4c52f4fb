package engine

import (
	"fmt"
	"log/slog"
	"time"
)

// Backend selects the Engine implementation.
type Backend string

const (
	// BackendBleve embeds the indexes in-process (default).
	BackendBleve Backend = "bleve"

	// BackendMeilisearch uses a Meilisearch server.
	BackendMeilisearch Backend = "meilisearch"
)

// Options configures Open.
type Options struct {
	Backend string
	// DataDir is where bleve keeps indexes. Empty means in-memory.
	DataDir string
	URL     string
	Key     string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Open creates the Engine for opts.Backend.
func Open(opts Options) (Engine, error) {
	switch Backend(opts.Backend) {
	case BackendBleve, "":
		return NewBleveEngine(opts.DataDir, opts.Logger)

	case BackendMeilisearch:
		if opts.URL == "" {
			return nil, fmt.Errorf("meilisearch backend requires a url")
		}
		return NewMeiliEngine(MeiliConfig{
			URL:     opts.URL,
			Key:     opts.Key,
			Timeout: opts.Timeout,
		}, opts.Logger), nil

	default:
		return nil, fmt.Errorf("unknown search backend: %s (valid options: bleve, meilisearch)", opts.Backend)
	}
}
