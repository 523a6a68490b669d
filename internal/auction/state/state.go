package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"auctionhouse.ai/internal/auction/funds"
	"auctionhouse.ai/internal/kv"
)

const (
	configKey        = "config"
	listingNamespace = "listingresolver"
)

var (
	ErrNotFound      = errors.New("listing not found")
	ErrConfigMissing = errors.New("config not initialized")
)

// Config is the singleton record created at instantiation.
type Config struct {
	ListingCount uint64 `json:"listing_count"`
}

// Listing is the escrow receipt for one auctioned asset.
type Listing struct {
	AssetID         string      `json:"asset_id"`
	RegistryAddress string      `json:"asset_registry_address"`
	Seller          string      `json:"seller"`
	CurrentBid      *funds.Coin `json:"current_bid"`
	CurrentBidder   string      `json:"current_bidder"`
	ExpiryHeight    uint64      `json:"expiry_height"`
	// BidEscrowed is set once a bid has been taken into custody. Until then
	// CurrentBid is only the seller's minimum and backs no funds.
	BidEscrowed bool `json:"bid_escrowed"`
}

func configStore(s kv.Store) kv.Store  { return kv.NewPrefixed(s, configKey) }
func listingStore(s kv.Store) kv.Store { return kv.NewPrefixed(s, listingNamespace) }
func singletonKey() []byte             { return []byte{} }
func listingKey(id string) []byte      { return []byte(id) }
func decode(raw []byte, v any) error   { return json.Unmarshal(raw, v) }
func encode(v any) ([]byte, error)     { return json.Marshal(v) }

func LoadConfig(s kv.Store) (Config, error) {
	var c Config
	raw, err := configStore(s).Get(singletonKey())
	if err != nil {
		return c, err
	}
	if raw == nil {
		return c, ErrConfigMissing
	}
	if err := decode(raw, &c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	return c, nil
}

func SaveConfig(s kv.Store, c Config) error {
	raw, err := encode(c)
	if err != nil {
		return err
	}
	return configStore(s).Set(singletonKey(), raw)
}

// NextListingID bumps ListingCount and returns the new value as the key of the
// next listing. Keys are never reused because the counter never decreases.
func NextListingID(s kv.Store) (string, error) {
	c, err := LoadConfig(s)
	if err != nil {
		return "", err
	}
	c.ListingCount++
	if err := SaveConfig(s, c); err != nil {
		return "", err
	}
	return strconv.FormatUint(c.ListingCount, 10), nil
}

func LoadListing(s kv.Store, id string) (Listing, error) {
	l, err := MayLoadListing(s, id)
	if err != nil {
		return Listing{}, err
	}
	if l == nil {
		return Listing{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *l, nil
}

func MayLoadListing(s kv.Store, id string) (*Listing, error) {
	raw, err := listingStore(s).Get(listingKey(id))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var l Listing
	if err := decode(raw, &l); err != nil {
		return nil, fmt.Errorf("decode listing %s: %w", id, err)
	}
	return &l, nil
}

func SaveListing(s kv.Store, id string, l Listing) error {
	raw, err := encode(l)
	if err != nil {
		return err
	}
	return listingStore(s).Set(listingKey(id), raw)
}

func RemoveListing(s kv.Store, id string) error {
	return listingStore(s).Delete(listingKey(id))
}

// RangeListings visits every stored listing in key order.
func RangeListings(s kv.Store, fn func(id string, l Listing) error) error {
	return listingStore(s).Iterate(nil, func(k, v []byte) error {
		var l Listing
		if err := decode(v, &l); err != nil {
			return fmt.Errorf("decode listing %s: %w", k, err)
		}
		return fn(string(k), l)
	})
}
