package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nickandbro/slither-world-sub002/internal/persistence/indexdb"
	"github.com/nickandbro/slither-world-sub002/internal/persistence/snapshot"
	"github.com/nickandbro/slither-world-sub002/internal/sim/tuning"
	"github.com/nickandbro/slither-world-sub002/internal/sim/world"
)

// runtimeIndex is the read-model surface cmd/server wires up. Only the
// sqlite backend implements it today; the env switch keeps room for
// alternatives without touching main.
type runtimeIndex interface {
	world.TickJournal
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	RecordTuning(tune tuning.Tuning) error
	Stats() indexdb.QueueStats
	Close() error
}

func openRuntimeIndex(worldDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("NETCODE_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"))
	default:
		return nil, fmt.Errorf("unsupported NETCODE_INDEX_BACKEND: %s", backend)
	}
}
