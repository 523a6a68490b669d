package sqlitekv

import (
	"path/filepath"
	"testing"

	"auctionhouse.ai/internal/kv"
)

func TestStore_BatchSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Set([]byte("stale"), []byte("x")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	c := kv.NewCache(s)
	_ = c.Set([]byte("a"), []byte("1"))
	_ = c.Set([]byte("b"), []byte("2"))
	_ = c.Delete([]byte("stale"))
	if err := c.Write(); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	if v, _ := s.Get([]byte("stale")); v != nil {
		t.Fatalf("expected stale deleted, got %q", v)
	}
	var got []string
	if err := s.Iterate(nil, func(k, v []byte) error {
		got = append(got, string(k)+"="+string(v))
		return nil
	}); err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if len(got) != 2 || got[0] != "a=1" || got[1] != "b=2" {
		t.Fatalf("unexpected rows: %v", got)
	}
}

func TestStore_PrefixedIterate(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	listings := kv.NewPrefixed(s, "listingresolver")
	other := kv.NewPrefixed(s, "bank")
	_ = listings.Set([]byte("2"), []byte("b"))
	_ = listings.Set([]byte("1"), []byte("a"))
	_ = other.Set([]byte("1"), []byte("z"))

	var got []string
	if err := listings.Iterate(nil, func(k, v []byte) error {
		got = append(got, string(k)+"="+string(v))
		return nil
	}); err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if len(got) != 2 || got[0] != "1=a" || got[1] != "2=b" {
		t.Fatalf("unexpected rows: %v", got)
	}

	if v, err := s.Get([]byte("missing")); err != nil || v != nil {
		t.Fatalf("expected nil,nil for missing key, got %q,%v", v, err)
	}
}
