package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"plotland.farm/internal/persistence/indexdb"
	"plotland.farm/internal/sim/catalogs"
	"plotland.farm/internal/sim/farm"
	"plotland.farm/internal/sim/tuning"
)

type runtimeIndex interface {
	farm.TickLogger
	farm.AuditLogger
	Close() error
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
}

func openRuntimeIndex(farmDir, farmID string, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("PL_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(farmDir, "index", "farm.sqlite")
		return indexdb.OpenSQLite(dbPath)
	case "remote":
		endpoint := strings.TrimSpace(os.Getenv("PL_INDEX_REMOTE_INGEST_URL"))
		token := strings.TrimSpace(os.Getenv("PL_INDEX_REMOTE_TOKEN"))
		if endpoint == "" {
			return nil, fmt.Errorf("PL_INDEX_BACKEND=remote but PL_INDEX_REMOTE_INGEST_URL is empty")
		}
		flushMS := envInt("PL_INDEX_REMOTE_FLUSH_MS", 500)
		batchSize := envInt("PL_INDEX_REMOTE_BATCH_SIZE", 128)
		idx, err := indexdb.OpenRemote(indexdb.RemoteConfig{
			Endpoint:      endpoint,
			Token:         token,
			FarmID:        farmID,
			BatchSize:     batchSize,
			FlushInterval: time.Duration(flushMS) * time.Millisecond,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported PL_INDEX_BACKEND: %s", backend)
	}
}
