package contract

import (
	"auctionhouse.ai/internal/auction/state"
	"auctionhouse.ai/internal/kv"
)

type Phase string

const (
	PhaseActive  Phase = "ACTIVE"
	PhaseExpired Phase = "EXPIRED"
)

// PhaseAt derives the auction phase at height. It is recomputed on every call
// because height advances between calls.
func PhaseAt(height, expiryHeight uint64) Phase {
	if height < expiryHeight {
		return PhaseActive
	}
	return PhaseExpired
}

func (c *Contract) Query(store kv.Store, env Env, msg QueryMsg) (any, error) {
	switch msg.Kind() {
	case "config":
		return c.QueryConfig(store)
	case "resolve_listing":
		return c.ResolveListing(store, env, msg.ResolveListing.ID)
	default:
		return nil, ErrUnknownMessage
	}
}

func (c *Contract) QueryConfig(store kv.Store) (ConfigResponse, error) {
	cfg, err := state.LoadConfig(store)
	if err != nil {
		return ConfigResponse{}, err
	}
	return ConfigResponse{ListingCount: cfg.ListingCount}, nil
}

// ResolveListing returns ErrNotFound for a missing or withdrawn listing.
func (c *Contract) ResolveListing(store kv.Store, env Env, id string) (ListingResponse, error) {
	l, err := state.LoadListing(store, id)
	if err != nil {
		return ListingResponse{}, err
	}
	return toListingResponse(id, l, env.Height), nil
}

// Listings returns every open listing in key order.
func (c *Contract) Listings(store kv.Store, env Env) ([]ListingResponse, error) {
	var out []ListingResponse
	err := state.RangeListings(store, func(id string, l state.Listing) error {
		out = append(out, toListingResponse(id, l, env.Height))
		return nil
	})
	return out, err
}

func toListingResponse(id string, l state.Listing, height uint64) ListingResponse {
	return ListingResponse{
		ListingID:       id,
		AssetID:         l.AssetID,
		RegistryAddress: l.RegistryAddress,
		Seller:          l.Seller,
		CurrentBid:      l.CurrentBid,
		CurrentBidder:   l.CurrentBidder,
		ExpiryHeight:    l.ExpiryHeight,
		Phase:           PhaseAt(height, l.ExpiryHeight),
	}
}
