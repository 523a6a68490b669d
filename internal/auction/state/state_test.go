package state

import (
	"errors"
	"testing"

	"auctionhouse.ai/internal/auction/funds"
	"auctionhouse.ai/internal/kv"
)

func TestNextListingID_Monotonic(t *testing.T) {
	s := kv.NewMemStore()
	if _, err := NextListingID(s); !errors.Is(err, ErrConfigMissing) {
		t.Fatalf("expected ErrConfigMissing before init, got %v", err)
	}
	if err := SaveConfig(s, Config{}); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	for want := 1; want <= 3; want++ {
		id, err := NextListingID(s)
		if err != nil {
			t.Fatalf("NextListingID: %v", err)
		}
		if id != string(rune('0'+want)) {
			t.Fatalf("expected id %d, got %s", want, id)
		}
	}
	c, _ := LoadConfig(s)
	if c.ListingCount != 3 {
		t.Fatalf("expected listing_count 3, got %d", c.ListingCount)
	}
}

func TestListing_LoadSaveRemove(t *testing.T) {
	s := kv.NewMemStore()
	bid := funds.NewCoin(3, "utst")
	l := Listing{
		AssetID:         "1",
		RegistryAddress: "nft",
		Seller:          "bob",
		CurrentBid:      &bid,
		CurrentBidder:   "bob",
		ExpiryHeight:    50100,
	}

	if got, err := MayLoadListing(s, "1"); err != nil || got != nil {
		t.Fatalf("expected nil,nil for missing listing, got %+v,%v", got, err)
	}
	if _, err := LoadListing(s, "1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := SaveListing(s, "1", l); err != nil {
		t.Fatalf("SaveListing: %v", err)
	}
	got, err := LoadListing(s, "1")
	if err != nil {
		t.Fatalf("LoadListing: %v", err)
	}
	if got.Seller != "bob" || got.CurrentBid == nil || !got.CurrentBid.Equal(bid) || got.ExpiryHeight != 50100 {
		t.Fatalf("unexpected listing: %+v", got)
	}

	n := 0
	_ = RangeListings(s, func(id string, _ Listing) error {
		if id != "1" {
			t.Fatalf("unexpected id %q", id)
		}
		n++
		return nil
	})
	if n != 1 {
		t.Fatalf("expected 1 listing, got %d", n)
	}

	if err := RemoveListing(s, "1"); err != nil {
		t.Fatalf("RemoveListing: %v", err)
	}
	if _, err := LoadListing(s, "1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after remove, got %v", err)
	}
}

func TestConfigAndListingsDoNotShareKeys(t *testing.T) {
	s := kv.NewMemStore()
	_ = SaveConfig(s, Config{ListingCount: 7})
	_ = SaveListing(s, "config", Listing{AssetID: "x"})
	c, err := LoadConfig(s)
	if err != nil || c.ListingCount != 7 {
		t.Fatalf("config clobbered: %+v %v", c, err)
	}
}
