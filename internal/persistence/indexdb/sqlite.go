package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"auctionhouse.ai/internal/chain"
	"auctionhouse.ai/internal/persistence/snapshot"
	"auctionhouse.ai/internal/tuning"
)

// SQLiteIndex is a secondary, queryable copy of the block log. Writes are
// queued and applied by one goroutine; a full queue drops the write.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropBlock    atomic.Uint64
	dropSnapshot atomic.Uint64
}

type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropBlockTotal    uint64 `json:"drop_block_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

type reqKind int

const (
	reqBlock reqKind = iota + 1
	reqSnapshot
)

type req struct {
	kind reqKind

	block    chain.BlockLogEntry
	snapshot snapshotRow
}

type snapshotRow struct {
	Height  uint64
	Path    string
	ChainID string
	Entries int
	Digest  string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// NORMAL durability is enough for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS blocks (
			height INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			txs INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS txs (
			height INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			tx_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			kind TEXT NOT NULL,
			ok INTEGER NOT NULL,
			code TEXT,
			msg_json TEXT NOT NULL,
			PRIMARY KEY (height, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_txs_sender_height ON txs(sender, height);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_txs_tx_id ON txs(tx_id);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			height INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			chain_id TEXT NOT NULL,
			entries INTEGER NOT NULL,
			digest TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropBlockTotal:    s.dropBlock.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

func (s *SQLiteIndex) WriteBlock(entry chain.BlockLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqBlock, block: entry}:
	default:
		// JSONL logs remain the source of truth.
		s.dropBlock.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Height:  snap.Header.Height,
		Path:    path,
		ChainID: snap.Header.ChainID,
		Entries: len(snap.Entries),
		Digest:  snap.Digest,
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// UpsertTuning records the effective tuning in meta. It writes synchronously
// and must run before the first WriteBlock.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for k, v := range map[string]string{
		"tuning":            string(b),
		"tuning_digest":     hex.EncodeToString(sum[:]),
		"tuning_updated_at": now,
	} {
		if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES(?,?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`, k, v); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertBlock, _ := s.db.Prepare(`INSERT OR REPLACE INTO blocks(height,digest,txs,failed,raw_json) VALUES(?,?,?,?,?)`)
	insertTx, _ := s.db.Prepare(`INSERT OR REPLACE INTO txs(height,seq,tx_id,sender,kind,ok,code,msg_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(height,path,chain_id,entries,digest) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertBlock, insertTx, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqBlock:
			b := r.block
			raw, _ := json.Marshal(b)
			failed := 0
			for _, rt := range b.Txs {
				if !rt.OK {
					failed++
				}
			}
			if insertBlock != nil {
				if _, err := tx.Stmt(insertBlock).Exec(int64(b.Height), b.Digest, len(b.Txs), failed, string(raw)); err != nil {
					rollback()
					continue
				}
				opCount++
			}
			for i, rt := range b.Txs {
				if insertTx == nil {
					break
				}
				msgJSON, _ := json.Marshal(rt.Tx.Msg)
				if _, err := tx.Stmt(insertTx).Exec(
					int64(b.Height),
					i,
					rt.Tx.ID,
					rt.Tx.Sender,
					rt.Tx.Msg.Kind(),
					boolInt(rt.OK),
					rt.Code,
					string(msgJSON),
				); err != nil {
					rollback()
					break
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot != nil {
				if _, err := tx.Stmt(insertSnapshot).Exec(int64(sn.Height), sn.Path, sn.ChainID, sn.Entries, sn.Digest); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
