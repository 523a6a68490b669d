package log

import (
	"path/filepath"
	"testing"
	"time"

	"auctionhouse.ai/internal/auction/contract"
	"auctionhouse.ai/internal/chain"
)

func TestBlockLogger_WriteRead(t *testing.T) {
	dir := t.TempDir()
	l := NewBlockLogger(dir)
	hour := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	l.w.now = func() time.Time { return hour }

	tx := chain.Tx{ID: "t1", Sender: "bob_key", Msg: contract.ExecuteMsg{WithdrawListing: &contract.WithdrawListing{ListingID: "1"}}}
	if err := l.WriteBlock(chain.BlockLogEntry{Height: 1, Txs: []chain.RecordedTx{{Tx: tx, OK: true}}, Digest: "d1"}); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	hour = hour.Add(time.Hour)
	if err := l.WriteBlock(chain.BlockLogEntry{Height: 2, Digest: "d2"}); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := ListBlockFiles(filepath.Join(dir, "blocks"))
	if err != nil {
		t.Fatalf("ListBlockFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files=%v want 2 hourly files", files)
	}

	var got []chain.BlockLogEntry
	for _, f := range files {
		if err := ReadBlocks(f, func(e chain.BlockLogEntry) error {
			got = append(got, e)
			return nil
		}); err != nil {
			t.Fatalf("ReadBlocks: %v", err)
		}
	}
	if len(got) != 2 || got[0].Height != 1 || got[1].Digest != "d2" {
		t.Fatalf("unexpected entries: %+v", got)
	}
	if got[0].Txs[0].Tx.Msg.Kind() != "withdraw_listing" {
		t.Fatalf("tx msg lost: %+v", got[0].Txs[0].Tx)
	}
}
