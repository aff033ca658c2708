package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/splitkit/splitkit/internal/engine"
	"github.com/splitkit/splitkit/internal/store"
	"github.com/splitkit/splitkit/internal/tracker"
)

// openGateway opens the storage backend selected by the global flags.
func openGateway() (store.Gateway, error) {
	switch backend {
	case "sqlite":
		return store.OpenSQLite(dbPath)
	case "badger":
		return store.OpenBadger(store.BadgerConfig{Path: dbPath})
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want sqlite, badger or memory)", backend)
	}
}

// findTest resolves a CLI test reference: full id, unique id prefix, or
// test name.
func findTest(ctx context.Context, eng *engine.Engine, ref string) (*store.Test, error) {
	tests, err := eng.ListTests(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}

	var matches []*store.Test
	for _, test := range tests {
		if test.ID == ref {
			return test, nil
		}
		if strings.HasPrefix(test.ID, ref) || test.Name == ref {
			matches = append(matches, test)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("test '%s' not found", ref)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("test reference '%s' is ambiguous (%d matches)", ref, len(matches))
	}
}

// withEngine opens the database, builds the engine, executes the
// function, and handles cleanup. One-shot CLI commands skip prometheus
// collectors and structured logging.
func withEngine(fn func(*engine.Engine) error) error {
	gw, err := openGateway()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer gw.Close()

	tr := tracker.New(gw, nil, nil)
	eng := engine.New(gw, tr, nil, engine.Config{})
	return fn(eng)
}
