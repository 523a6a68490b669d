package sqlitekv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"auctionhouse.ai/internal/kv"
)

// Store is a durable kv.Store backed by a single sqlite table. Batches are
// applied in one transaction, so a committed call is never half-written.
type Store struct {
	db *sql.DB
}

var _ kv.Store = (*Store)(nil)
var _ kv.Batcher = (*Store)(nil)

func Open(path string) (*Store, error) {
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
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key BLOB PRIMARY KEY,
		value BLOB NOT NULL
	) WITHOUT ROWID;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	// State is the source of truth here, so keep FULL sync.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Get(key []byte) ([]byte, error) {
	var v []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = []byte{}
	}
	return v, nil
}

func (s *Store) Set(key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO kv(key,value) VALUES(?,?)`, key, value)
	return err
}

func (s *Store) Delete(key []byte) error {
	_, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return err
}

func (s *Store) ApplyBatch(ops []kv.Op) error {
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	upsert, err := tx.Prepare(`INSERT OR REPLACE INTO kv(key,value) VALUES(?,?)`)
	if err != nil {
		return err
	}
	defer upsert.Close()
	del, err := tx.Prepare(`DELETE FROM kv WHERE key = ?`)
	if err != nil {
		return err
	}
	defer del.Close()

	for _, op := range ops {
		if op.Value == nil {
			if _, err := del.Exec(op.Key); err != nil {
				return err
			}
			continue
		}
		if _, err := upsert.Exec(op.Key, op.Value); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Iterate loads the matching rows before calling fn, so fn may write to the
// store without deadlocking the single connection.
func (s *Store) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	var (
		rows *sql.Rows
		err  error
	)
	end := kv.PrefixEnd(prefix)
	switch {
	case len(prefix) == 0:
		rows, err = s.db.Query(`SELECT key, value FROM kv ORDER BY key`)
	case end == nil:
		rows, err = s.db.Query(`SELECT key, value FROM kv WHERE key >= ? ORDER BY key`, prefix)
	default:
		rows, err = s.db.Query(`SELECT key, value FROM kv WHERE key >= ? AND key < ? ORDER BY key`, prefix, end)
	}
	if err != nil {
		return err
	}

	var pairs [][2][]byte
	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			_ = rows.Close()
			return err
		}
		if v == nil {
			v = []byte{}
		}
		pairs = append(pairs, [2][]byte{k, v})
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, p := range pairs {
		if err := fn(p[0], p[1]); err != nil {
			return err
		}
	}
	return nil
}
