package main

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"auctionhouse.ai/internal/chain"
	"auctionhouse.ai/internal/persistence/indexdb"
	"auctionhouse.ai/internal/persistence/snapshot"
	"auctionhouse.ai/internal/tuning"
)

type runtimeIndex interface {
	chain.BlockLogger
	Close() error
	Stats() indexdb.Stats
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
}

type tuningRecorder interface {
	UpsertTuning(tune tuning.Tuning) error
}

func openRuntimeIndex(chainDir, chainID string, disableDB bool, e serverEnv, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(e.IndexBackend))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(chainDir, "index", "chain.sqlite")
		return indexdb.OpenSQLite(dbPath)
	case "http":
		endpoint := strings.TrimSpace(e.IndexIngestURL)
		if endpoint == "" {
			return nil, fmt.Errorf("AH_INDEX_BACKEND=http but AH_INDEX_INGEST_URL is empty")
		}
		idx, err := indexdb.OpenHTTP(indexdb.HTTPConfig{
			Endpoint:      endpoint,
			Token:         strings.TrimSpace(e.IndexIngestToken),
			ChainID:       chainID,
			BatchSize:     e.IndexBatchSize,
			FlushInterval: time.Duration(e.IndexFlushMS) * time.Millisecond,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported AH_INDEX_BACKEND: %s", backend)
	}
}

type multiBlockLogger struct {
	a chain.BlockLogger
	b chain.BlockLogger
}

func (m multiBlockLogger) WriteBlock(entry chain.BlockLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteBlock(entry)
	}
	if m.b != nil {
		_ = m.b.WriteBlock(entry)
	}
	return nil
}
