package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// dbCmd reads the sqlite index written by the server.
func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	chainID := fs.String("chain", "", "chain id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	sender := fs.String("sender", "", "sender filter (txs)")
	height := fs.Uint64("height", 0, "block height filter (txs)")
	_ = fs.Parse(args)

	q := "blocks"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*chainID) == "" {
			fmt.Fprintln(os.Stderr, "missing -chain or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "chains", *chainID, "index", "chain.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "blocks":
		err = queryBlocks(db, *limit)
	case "txs":
		err = queryTxs(db, *sender, *height, *limit)
	case "snapshots":
		err = querySnapshots(db, *limit)
	case "tuning":
		err = queryTuning(db)
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(want blocks|txs|snapshots|tuning)")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		os.Exit(1)
	}
}

func queryBlocks(db *sql.DB, limit int) error {
	rows, err := db.Query(`SELECT height,digest,txs,failed FROM blocks ORDER BY height DESC LIMIT ?`, limit)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var r struct {
			Height int64  `json:"height"`
			Digest string `json:"digest"`
			Txs    int    `json:"txs"`
			Failed int    `json:"failed"`
		}
		if err := rows.Scan(&r.Height, &r.Digest, &r.Txs, &r.Failed); err != nil {
			return err
		}
		printJSON(r)
	}
	return rows.Err()
}

func queryTxs(db *sql.DB, sender string, height uint64, limit int) error {
	where := []string{}
	params := []any{}
	if sender = strings.TrimSpace(sender); sender != "" {
		where = append(where, "sender=?")
		params = append(params, sender)
	}
	if height > 0 {
		where = append(where, "height=?")
		params = append(params, int64(height))
	}
	query := `SELECT height,seq,tx_id,sender,kind,ok,COALESCE(code,''),msg_json FROM txs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY height DESC, seq DESC LIMIT ?"
	params = append(params, limit)

	rows, err := db.Query(query, params...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			r struct {
				Height int64           `json:"height"`
				Seq    int             `json:"seq"`
				TxID   string          `json:"tx_id"`
				Sender string          `json:"sender"`
				Kind   string          `json:"kind"`
				OK     bool            `json:"ok"`
				Code   string          `json:"code,omitempty"`
				Msg    json.RawMessage `json:"msg"`
			}
			ok     int
			msgRaw string
		)
		if err := rows.Scan(&r.Height, &r.Seq, &r.TxID, &r.Sender, &r.Kind, &ok, &r.Code, &msgRaw); err != nil {
			return err
		}
		r.OK = ok != 0
		r.Msg = json.RawMessage(msgRaw)
		printJSON(r)
	}
	return rows.Err()
}

func querySnapshots(db *sql.DB, limit int) error {
	rows, err := db.Query(`SELECT height,path,chain_id,entries,digest FROM snapshots ORDER BY height DESC LIMIT ?`, limit)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var r struct {
			Height  int64  `json:"height"`
			Path    string `json:"path"`
			ChainID string `json:"chain_id"`
			Entries int    `json:"entries"`
			Digest  string `json:"digest"`
		}
		if err := rows.Scan(&r.Height, &r.Path, &r.ChainID, &r.Entries, &r.Digest); err != nil {
			return err
		}
		printJSON(r)
	}
	return rows.Err()
}

func queryTuning(db *sql.DB) error {
	var raw, digest string
	row := db.QueryRow(`SELECT
		COALESCE((SELECT value FROM meta WHERE key='tuning'), ''),
		COALESCE((SELECT value FROM meta WHERE key='tuning_digest'), '')`)
	if err := row.Scan(&raw, &digest); err != nil {
		return err
	}
	if raw == "" {
		return fmt.Errorf("no tuning recorded")
	}
	printJSON(struct {
		Digest string          `json:"digest"`
		Tuning json.RawMessage `json:"tuning"`
	}{digest, json.RawMessage(raw)})
	return nil
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
