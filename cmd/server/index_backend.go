package main

import (
	"fmt"
	"os"
	"strings"

	"gridclash.io/internal/persistence/indexdb"
)

func openRuntimeIndex(dataDir, matchID string, disableDB bool) (*indexdb.SQLiteIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("GSYNC_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(indexdb.DefaultPath(dataDir), matchID)
	default:
		return nil, fmt.Errorf("unsupported GSYNC_INDEX_BACKEND: %s", backend)
	}
}
