package chaintest

import (
	"testing"

	"auctionhouse.ai/internal/auction/contract"
	"auctionhouse.ai/internal/auction/funds"
	"auctionhouse.ai/internal/chain"
	"auctionhouse.ai/internal/kv"
)

const (
	Contract = "auction"
	Registry = "nft"
	Seller   = "bob_key"
	Bidder   = "alice_key"
	Other    = "carol_key"
	Denom    = "utst"
)

// Harness drives a chain over an in-memory store through exported APIs only:
// every helper submits one transaction in its own block via StepOnce.
type Harness struct {
	T     *testing.T
	C     *chain.Chain
	Store *kv.MemStore
}

// DefaultConfig uses short windows so expiry can be reached in a few blocks.
func DefaultConfig() chain.Config {
	return chain.Config{
		ChainID:         "test",
		ContractAddress: Contract,
		AuctionWindow:   5,
		ApprovalWindow:  3,
	}
}

// DefaultGenesis funds the bidders and gives the seller asset "1".
func DefaultGenesis() chain.Genesis {
	return chain.Genesis{
		Balances: []chain.GenesisBalance{
			{Address: Bidder, Coins: funds.Coins{funds.NewCoin(10, Denom)}},
			{Address: Other, Coins: funds.Coins{funds.NewCoin(10, Denom)}},
		},
		Assets: []chain.GenesisAsset{{Registry: Registry, AssetID: "1", Owner: Seller}},
	}
}

func New(t *testing.T, cfg chain.Config, g chain.Genesis) *Harness {
	t.Helper()
	s := kv.NewMemStore()
	c, err := chain.New(cfg, s)
	if err != nil {
		t.Fatalf("chain.New: %v", err)
	}
	if ok, err := c.InitGenesis(g); err != nil || !ok {
		t.Fatalf("InitGenesis: ok=%v err=%v", ok, err)
	}
	return &Harness{T: t, C: c, Store: s}
}

func (h *Harness) Exec(sender string, msg contract.ExecuteMsg, coins ...funds.Coin) chain.TxResult {
	h.T.Helper()
	_, _, res := h.C.StepOnce([]chain.Tx{{Sender: sender, Funds: coins, Msg: msg}})
	if len(res) != 1 {
		h.T.Fatalf("expected one result, got %d", len(res))
	}
	return res[0]
}

func (h *Harness) Place(sender, assetID string, min *funds.Coin, coins ...funds.Coin) chain.TxResult {
	h.T.Helper()
	return h.Exec(sender, contract.ExecuteMsg{PlaceListing: &contract.PlaceListing{
		RegistryAddress: Registry,
		AssetID:         assetID,
		MinimumBid:      min,
	}}, coins...)
}

func (h *Harness) Bid(sender, listingID string, coins ...funds.Coin) chain.TxResult {
	h.T.Helper()
	return h.Exec(sender, contract.ExecuteMsg{BidListing: &contract.BidListing{ListingID: listingID}}, coins...)
}

func (h *Harness) Withdraw(sender, listingID string) chain.TxResult {
	h.T.Helper()
	return h.Exec(sender, contract.ExecuteMsg{WithdrawListing: &contract.WithdrawListing{ListingID: listingID}})
}

// Advance produces n empty blocks.
func (h *Harness) Advance(n int) {
	for i := 0; i < n; i++ {
		h.C.StepOnce(nil)
	}
}

func (h *Harness) Balance(addr string) funds.Coin {
	h.T.Helper()
	coins, err := h.C.Balances(addr)
	if err != nil {
		h.T.Fatalf("Balances(%s): %v", addr, err)
	}
	for _, c := range coins {
		if c.Denom == Denom {
			return c
		}
	}
	return funds.NewCoin(0, Denom)
}

func (h *Harness) Owner(assetID string) string {
	h.T.Helper()
	a, err := h.C.Asset(Registry, assetID)
	if err != nil {
		h.T.Fatalf("Asset(%s): %v", assetID, err)
	}
	return a.Owner
}

func Coin(amount int64) funds.Coin { return funds.NewCoin(amount, Denom) }

func CoinPtr(amount int64) *funds.Coin {
	c := Coin(amount)
	return &c
}
