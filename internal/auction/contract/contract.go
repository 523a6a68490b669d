// Package contract is the escrow English auction: listing placement, bidding
// and settlement as pure transitions over a kv.Store. Each transition returns
// the actions the host must run atomically with the state write.
package contract

import (
	"errors"
	"fmt"

	"auctionhouse.ai/internal/auction/funds"
	"auctionhouse.ai/internal/auction/state"
	"auctionhouse.ai/internal/kv"
)

var (
	ErrAuctionEnded    = errors.New("auction ended")
	ErrAuctionNotEnded = errors.New("auction not ended")
	ErrUnknownMessage  = errors.New("unknown message")

	ErrNotFound              = state.ErrNotFound
	ErrInsufficientFundsSend = funds.ErrInsufficientFundsSend
)

// API is the host's principal validation.
type API interface {
	AddrValidate(addr string) (string, error)
}

type Params struct {
	// AuctionWindow is added to the placement height to get the expiry height.
	AuctionWindow uint64
	// ApprovalWindow bounds the custody approval granted at placement.
	ApprovalWindow uint64
}

func DefaultParams() Params {
	return Params{AuctionWindow: 50000, ApprovalWindow: 20000}
}

type Env struct {
	Height          uint64
	ContractAddress string
}

type MessageInfo struct {
	Sender string
	Funds  funds.Coins
}

type Contract struct {
	api    API
	params Params
}

func New(api API, params Params) *Contract {
	if params.AuctionWindow == 0 {
		params.AuctionWindow = DefaultParams().AuctionWindow
	}
	if params.ApprovalWindow == 0 {
		params.ApprovalWindow = DefaultParams().ApprovalWindow
	}
	return &Contract{api: api, params: params}
}

func (c *Contract) Params() Params { return c.params }

func (c *Contract) Instantiate(store kv.Store, _ Env, _ MessageInfo) (Response, error) {
	if err := state.SaveConfig(store, state.Config{ListingCount: 0}); err != nil {
		return Response{}, err
	}
	return Response{}, nil
}

func (c *Contract) Execute(store kv.Store, env Env, info MessageInfo, msg ExecuteMsg) (Response, error) {
	switch msg.Kind() {
	case "place_listing":
		return c.placeListing(store, env, info, *msg.PlaceListing)
	case "bid_listing":
		return c.bidListing(store, env, info, msg.BidListing.ListingID)
	case "withdraw_listing":
		return c.withdrawListing(store, env, info, msg.WithdrawListing.ListingID)
	default:
		return Response{}, ErrUnknownMessage
	}
}

func (c *Contract) placeListing(store kv.Store, env Env, info MessageInfo, msg PlaceListing) (Response, error) {
	registry, err := c.api.AddrValidate(msg.RegistryAddress)
	if err != nil {
		return Response{}, fmt.Errorf("nft_contract_address: %w", err)
	}
	if msg.MinimumBid != nil {
		if err := msg.MinimumBid.Validate(); err != nil {
			return Response{}, fmt.Errorf("minimum_bid: %w", err)
		}
	}

	id, err := state.NextListingID(store)
	if err != nil {
		return Response{}, err
	}
	listing := state.Listing{
		AssetID:         msg.AssetID,
		RegistryAddress: registry,
		Seller:          info.Sender,
		CurrentBid:      msg.MinimumBid,
		CurrentBidder:   info.Sender,
		ExpiryHeight:    env.Height + c.params.AuctionWindow,
	}
	if err := state.SaveListing(store, id, listing); err != nil {
		return Response{}, err
	}

	var resp Response
	resp.AddAttribute("place_listing", msg.AssetID).
		AddAttribute("listing_id", id).
		AddAction(
			AssetApprove(registry, info.Sender, env.ContractAddress, msg.AssetID, env.Height+c.params.ApprovalWindow),
			AssetTransfer(registry, env.ContractAddress, env.ContractAddress, msg.AssetID),
		)
	returnAttached(&resp, env, info)
	return resp, nil
}

func (c *Contract) bidListing(store kv.Store, env Env, info MessageInfo, listingID string) (Response, error) {
	listing, err := state.LoadListing(store, listingID)
	if err != nil {
		return Response{}, err
	}
	if PhaseAt(env.Height, listing.ExpiryHeight) != PhaseActive {
		return Response{}, ErrAuctionEnded
	}
	bid, err := funds.ValidatePayment(info.Funds, listing.CurrentBid)
	if err != nil {
		return Response{}, err
	}

	// Only a bid taken into custody is refundable; a minimum set at placement
	// was never paid in.
	refund := funds.Coins(nil)
	if listing.BidEscrowed && listing.CurrentBid != nil {
		refund = funds.Coins{*listing.CurrentBid}
	}
	previousBidder := listing.CurrentBidder

	listing.CurrentBidder = info.Sender
	listing.CurrentBid = bid
	listing.BidEscrowed = true
	if err := state.SaveListing(store, listingID, listing); err != nil {
		return Response{}, err
	}

	var resp Response
	resp.AddAttribute("bidding", listingID).
		AddAction(BankSend(env.ContractAddress, previousBidder, refund))
	if change := info.Funds.Without(*bid).NonZero(); len(change) > 0 {
		resp.AddAction(BankSend(env.ContractAddress, info.Sender, change))
	}
	return resp, nil
}

func (c *Contract) withdrawListing(store kv.Store, env Env, info MessageInfo, listingID string) (Response, error) {
	listing, err := state.LoadListing(store, listingID)
	if err != nil {
		return Response{}, err
	}
	if PhaseAt(env.Height, listing.ExpiryHeight) != PhaseExpired {
		return Response{}, ErrAuctionNotEnded
	}
	if err := state.RemoveListing(store, listingID); err != nil {
		return Response{}, err
	}

	proceeds := funds.Coins(nil)
	if listing.BidEscrowed && listing.CurrentBid != nil {
		proceeds = funds.Coins{*listing.CurrentBid}
	}

	var resp Response
	resp.AddAttribute("listing_ended", listingID).
		AddAction(
			AssetTransfer(listing.RegistryAddress, env.ContractAddress, listing.CurrentBidder, listing.AssetID),
			BankSend(env.ContractAddress, listing.Seller, proceeds),
		)
	returnAttached(&resp, env, info)
	return resp, nil
}

// returnAttached hands back coins sent with a message that escrows none.
func returnAttached(resp *Response, env Env, info MessageInfo) {
	if attached := info.Funds.NonZero(); len(attached) > 0 {
		resp.AddAction(BankSend(env.ContractAddress, info.Sender, attached))
	}
}
