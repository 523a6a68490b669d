package contract

import (
	"auctionhouse.ai/internal/auction/funds"
)

// ExecuteMsg carries exactly one of its variants, mirroring the
// {"place_listing":{...}} wire shape.
type ExecuteMsg struct {
	PlaceListing    *PlaceListing    `json:"place_listing,omitempty"`
	BidListing      *BidListing      `json:"bid_listing,omitempty"`
	WithdrawListing *WithdrawListing `json:"withdraw_listing,omitempty"`
}

type PlaceListing struct {
	RegistryAddress string      `json:"nft_contract_address"`
	AssetID         string      `json:"id"`
	MinimumBid      *funds.Coin `json:"minimum_bid,omitempty"`
}

type BidListing struct {
	ListingID string `json:"listing_id"`
}

type WithdrawListing struct {
	ListingID string `json:"listing_id"`
}

// Kind names the populated variant, or "" when none or several are set.
func (m ExecuteMsg) Kind() string {
	kind, n := "", 0
	if m.PlaceListing != nil {
		kind, n = "place_listing", n+1
	}
	if m.BidListing != nil {
		kind, n = "bid_listing", n+1
	}
	if m.WithdrawListing != nil {
		kind, n = "withdraw_listing", n+1
	}
	if n != 1 {
		return ""
	}
	return kind
}

type QueryMsg struct {
	Config         *ConfigQuery         `json:"config,omitempty"`
	ResolveListing *ResolveListingQuery `json:"resolve_listing,omitempty"`
}

type ConfigQuery struct{}

type ResolveListingQuery struct {
	ID string `json:"id"`
}

func (m QueryMsg) Kind() string {
	switch {
	case m.Config != nil && m.ResolveListing == nil:
		return "config"
	case m.ResolveListing != nil && m.Config == nil:
		return "resolve_listing"
	default:
		return ""
	}
}

// ListingResponse is the ResolveListing projection. Phase is derived from the
// query height and never stored.
type ListingResponse struct {
	ListingID       string      `json:"listing_id"`
	AssetID         string      `json:"token_id"`
	RegistryAddress string      `json:"contract_addr"`
	Seller          string      `json:"seller"`
	CurrentBid      *funds.Coin `json:"max_bid"`
	CurrentBidder   string      `json:"max_bidder"`
	ExpiryHeight    uint64      `json:"block_limit"`
	Phase           Phase       `json:"phase"`
}

type ConfigResponse struct {
	ListingCount uint64 `json:"listing_count"`
}
