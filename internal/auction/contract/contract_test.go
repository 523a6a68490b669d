package contract

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"auctionhouse.ai/internal/auction/funds"
	"auctionhouse.ai/internal/kv"
)

const (
	contractAddr = "auction"
	registryAddr = "nft"
	startHeight  = 12345
)

type testAPI struct{}

func (testAPI) AddrValidate(addr string) (string, error) {
	if addr == "" || addr != strings.ToLower(addr) {
		return "", fmt.Errorf("invalid address %q", addr)
	}
	return addr, nil
}

func env(height uint64) Env { return Env{Height: height, ContractAddress: contractAddr} }

func info(sender string, coins ...funds.Coin) MessageInfo {
	return MessageInfo{Sender: sender, Funds: coins}
}

func coinPtr(c funds.Coin) *funds.Coin { return &c }

func setup(t *testing.T) (*Contract, *kv.MemStore) {
	t.Helper()
	c := New(testAPI{}, DefaultParams())
	s := kv.NewMemStore()
	if _, err := c.Instantiate(s, env(startHeight), info("creator", funds.NewCoin(0, "utst"))); err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	return c, s
}

func place(t *testing.T, c *Contract, s kv.Store, min *funds.Coin) Response {
	t.Helper()
	resp, err := c.Execute(s, env(startHeight), info("bob_key", funds.NewCoin(0, "utst")), ExecuteMsg{
		PlaceListing: &PlaceListing{RegistryAddress: registryAddr, AssetID: "1", MinimumBid: min},
	})
	if err != nil {
		t.Fatalf("PlaceListing: %v", err)
	}
	return resp
}

func bid(c *Contract, s kv.Store, height uint64, sender string, coins ...funds.Coin) (Response, error) {
	return c.Execute(s, env(height), info(sender, coins...), ExecuteMsg{BidListing: &BidListing{ListingID: "1"}})
}

func withdraw(c *Contract, s kv.Store, height uint64) (Response, error) {
	return c.Execute(s, env(height), info("alice_key"), ExecuteMsg{WithdrawListing: &WithdrawListing{ListingID: "1"}})
}

func dump(t *testing.T, s kv.Store) string {
	t.Helper()
	var b strings.Builder
	_ = s.Iterate(nil, func(k, v []byte) error {
		fmt.Fprintf(&b, "%x=%s;", k, v)
		return nil
	})
	return b.String()
}

func TestInstantiate(t *testing.T) {
	c, s := setup(t)
	cfg, err := c.QueryConfig(s)
	if err != nil {
		t.Fatalf("QueryConfig: %v", err)
	}
	if cfg.ListingCount != 0 {
		t.Fatalf("expected listing_count 0, got %d", cfg.ListingCount)
	}
}

func TestPlaceListing(t *testing.T) {
	c, s := setup(t)
	resp := place(t, c, s, coinPtr(funds.NewCoin(3, "utst")))

	if v, _ := resp.Attribute("place_listing"); v != "1" {
		t.Fatalf("expected place_listing attribute, got %+v", resp.Attributes)
	}
	if len(resp.Actions) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(resp.Actions))
	}
	approve, transfer := resp.Actions[0], resp.Actions[1]
	if approve.Kind != ActionAssetApprove || approve.Sender != "bob_key" || approve.Spender != contractAddr ||
		approve.AssetID != "1" || approve.Registry != registryAddr || approve.ExpiresHeight != startHeight+20000 {
		t.Fatalf("unexpected approve: %+v", approve)
	}
	if transfer.Kind != ActionAssetTransfer || transfer.Sender != contractAddr || transfer.Recipient != contractAddr || transfer.AssetID != "1" {
		t.Fatalf("unexpected transfer: %+v", transfer)
	}

	cfg, _ := c.QueryConfig(s)
	if cfg.ListingCount != 1 {
		t.Fatalf("expected listing_count 1, got %d", cfg.ListingCount)
	}
	l, err := c.ResolveListing(s, env(startHeight), "1")
	if err != nil {
		t.Fatalf("ResolveListing: %v", err)
	}
	if l.Seller != "bob_key" || l.CurrentBidder != "bob_key" || l.ExpiryHeight != startHeight+50000 ||
		l.CurrentBid == nil || !l.CurrentBid.Equal(funds.NewCoin(3, "utst")) || l.Phase != PhaseActive {
		t.Fatalf("unexpected listing: %+v", l)
	}
}

func TestPlaceListing_InvalidRegistryLeavesStateUntouched(t *testing.T) {
	c, s := setup(t)
	before := dump(t, s)
	_, err := c.Execute(s, env(startHeight), info("bob_key"), ExecuteMsg{
		PlaceListing: &PlaceListing{RegistryAddress: "Not-Valid", AssetID: "1"},
	})
	if err == nil {
		t.Fatalf("expected address validation error")
	}
	if dump(t, s) != before {
		t.Fatalf("state changed on failed placement")
	}
}

func TestPlaceListing_KeysAreFresh(t *testing.T) {
	c, s := setup(t)
	place(t, c, s, nil)
	resp := place(t, c, s, nil)
	if v, _ := resp.Attribute("listing_id"); v != "2" {
		t.Fatalf("expected listing 2, got %q", v)
	}
	if _, err := withdraw(c, s, startHeight+50000); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	resp = place(t, c, s, nil)
	if v, _ := resp.Attribute("listing_id"); v != "3" {
		t.Fatalf("expected listing 3 after withdrawal, got %q", v)
	}
}

func TestBidListing_StrictImprovementAndRefunds(t *testing.T) {
	c, s := setup(t)
	place(t, c, s, coinPtr(funds.NewCoin(3, "utst")))

	if _, err := bid(c, s, startHeight+1, "carol", funds.NewCoin(3, "utst")); !errors.Is(err, ErrInsufficientFundsSend) {
		t.Fatalf("expected insufficient funds at the minimum, got %v", err)
	}

	resp, err := bid(c, s, startHeight+1, "alice_key", funds.NewCoin(4, "utst"))
	if err != nil {
		t.Fatalf("first bid: %v", err)
	}
	if len(resp.Actions) != 1 {
		t.Fatalf("expected a single refund action, got %+v", resp.Actions)
	}
	refund := resp.Actions[0]
	if refund.Kind != ActionBankSend || refund.Recipient != "bob_key" || len(refund.Amount) != 0 {
		t.Fatalf("first bid must not refund the unpaid minimum: %+v", refund)
	}

	l, _ := c.ResolveListing(s, env(startHeight+1), "1")
	if l.CurrentBidder != "alice_key" || !l.CurrentBid.Equal(funds.NewCoin(4, "utst")) {
		t.Fatalf("unexpected listing after bid: %+v", l)
	}

	before := dump(t, s)
	for _, amt := range []int64{3, 4} {
		if _, err := bid(c, s, startHeight+2, "carol", funds.NewCoin(amt, "utst")); !errors.Is(err, ErrInsufficientFundsSend) {
			t.Fatalf("bid %d: expected insufficient funds, got %v", amt, err)
		}
	}
	if _, err := bid(c, s, startHeight+2, "carol", funds.NewCoin(9, "atom")); !errors.Is(err, ErrInsufficientFundsSend) {
		t.Fatalf("wrong denom: expected insufficient funds, got %v", err)
	}
	if dump(t, s) != before {
		t.Fatalf("state changed on rejected bids")
	}

	resp, err = bid(c, s, startHeight+2, "carol", funds.NewCoin(5, "utst"))
	if err != nil {
		t.Fatalf("second bid: %v", err)
	}
	refund = resp.Actions[0]
	if refund.Recipient != "alice_key" || refund.Sender != contractAddr || len(refund.Amount) != 1 || !refund.Amount[0].Equal(funds.NewCoin(4, "utst")) {
		t.Fatalf("expected full refund of 4utst to alice_key, got %+v", refund)
	}
}

func TestBidListing_ReturnsCoinsNotTakenIntoEscrow(t *testing.T) {
	c, s := setup(t)
	place(t, c, s, coinPtr(funds.NewCoin(3, "utst")))

	resp, err := bid(c, s, startHeight+1, "alice_key", funds.NewCoin(2, "utst"), funds.NewCoin(4, "utst"), funds.NewCoin(1, "atom"))
	if err != nil {
		t.Fatalf("bid: %v", err)
	}
	if len(resp.Actions) != 2 {
		t.Fatalf("expected refund + change actions, got %+v", resp.Actions)
	}
	change := resp.Actions[1]
	if change.Recipient != "alice_key" || len(change.Amount) != 2 ||
		!change.Amount[0].Equal(funds.NewCoin(2, "utst")) || !change.Amount[1].Equal(funds.NewCoin(1, "atom")) {
		t.Fatalf("unexpected change: %+v", change)
	}
}

func TestBidListing_ZeroMinimumRecordsPlaceholder(t *testing.T) {
	c, s := setup(t)
	place(t, c, s, nil)

	resp, err := bid(c, s, startHeight+1, "alice_key")
	if err != nil {
		t.Fatalf("bid: %v", err)
	}
	if len(resp.Actions) != 1 || len(resp.Actions[0].Amount) != 0 {
		t.Fatalf("expected a no-op refund, got %+v", resp.Actions)
	}
	l, _ := c.ResolveListing(s, env(startHeight+1), "1")
	if l.CurrentBid == nil || !l.CurrentBid.Equal(funds.NewCoin(0, funds.DefaultDenom)) {
		t.Fatalf("expected zero placeholder bid, got %+v", l.CurrentBid)
	}

	// The placeholder is refunded as a zero-value transfer.
	resp, err = bid(c, s, startHeight+2, "carol")
	if err != nil {
		t.Fatalf("second bid: %v", err)
	}
	refund := resp.Actions[0]
	if refund.Recipient != "alice_key" || len(refund.Amount) != 1 || !refund.Amount[0].IsZero() {
		t.Fatalf("expected zero refund to alice_key, got %+v", refund)
	}
}

func TestExpiryBoundary(t *testing.T) {
	c, s := setup(t)
	place(t, c, s, coinPtr(funds.NewCoin(3, "utst")))
	expiry := uint64(startHeight + 50000)

	if _, err := bid(c, s, expiry-1, "alice_key", funds.NewCoin(4, "utst")); err != nil {
		t.Fatalf("bid one block before expiry: %v", err)
	}
	if _, err := bid(c, s, expiry, "carol", funds.NewCoin(10, "utst")); !errors.Is(err, ErrAuctionEnded) {
		t.Fatalf("expected ErrAuctionEnded at expiry, got %v", err)
	}
	if _, err := bid(c, s, expiry+100, "carol", funds.NewCoin(10, "utst")); !errors.Is(err, ErrAuctionEnded) {
		t.Fatalf("expected ErrAuctionEnded after expiry, got %v", err)
	}

	for _, h := range []uint64{startHeight, startHeight + 40000, expiry - 1} {
		if _, err := withdraw(c, s, h); !errors.Is(err, ErrAuctionNotEnded) {
			t.Fatalf("height %d: expected ErrAuctionNotEnded, got %v", h, err)
		}
	}
	if _, err := withdraw(c, s, expiry); err != nil {
		t.Fatalf("withdraw at expiry: %v", err)
	}
}

func TestWithdrawListing_Settles(t *testing.T) {
	c, s := setup(t)
	place(t, c, s, coinPtr(funds.NewCoin(3, "utst")))
	if _, err := bid(c, s, startHeight+1, "alice_key", funds.NewCoin(4, "utst")); err != nil {
		t.Fatalf("bid: %v", err)
	}

	resp, err := withdraw(c, s, startHeight+70000)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if v, _ := resp.Attribute("listing_ended"); v != "1" {
		t.Fatalf("unexpected attributes: %+v", resp.Attributes)
	}
	if len(resp.Actions) != 2 {
		t.Fatalf("expected 2 actions, got %+v", resp.Actions)
	}
	transfer, pay := resp.Actions[0], resp.Actions[1]
	if transfer.Kind != ActionAssetTransfer || transfer.Recipient != "alice_key" || transfer.AssetID != "1" || transfer.Sender != contractAddr {
		t.Fatalf("unexpected asset transfer: %+v", transfer)
	}
	if pay.Kind != ActionBankSend || pay.Recipient != "bob_key" || len(pay.Amount) != 1 || !pay.Amount[0].Equal(funds.NewCoin(4, "utst")) {
		t.Fatalf("unexpected payout: %+v", pay)
	}

	if _, err := c.ResolveListing(s, env(startHeight+70000), "1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after withdrawal, got %v", err)
	}
	if _, err := withdraw(c, s, startHeight+70001); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second withdrawal, got %v", err)
	}
	if _, err := bid(c, s, startHeight+70001, "carol", funds.NewCoin(100, "utst")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on bid after withdrawal, got %v", err)
	}
}

func TestWithdrawListing_NoBidReturnsAssetToSeller(t *testing.T) {
	c, s := setup(t)
	place(t, c, s, coinPtr(funds.NewCoin(3, "utst")))

	resp, err := withdraw(c, s, startHeight+50000)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	transfer, pay := resp.Actions[0], resp.Actions[1]
	if transfer.Recipient != "bob_key" {
		t.Fatalf("expected asset back to seller, got %+v", transfer)
	}
	if pay.Recipient != "bob_key" || len(pay.Amount) != 0 {
		t.Fatalf("expected empty payout to seller, got %+v", pay)
	}
}

func TestPlaceAndWithdraw_ReturnAttachedCoins(t *testing.T) {
	c, s := setup(t)
	resp, err := c.Execute(s, env(startHeight), info("bob_key", funds.NewCoin(5, "utst"), funds.NewCoin(0, "uatom")), ExecuteMsg{
		PlaceListing: &PlaceListing{RegistryAddress: registryAddr, AssetID: "1", MinimumBid: coinPtr(funds.NewCoin(3, "utst"))},
	})
	if err != nil {
		t.Fatalf("PlaceListing: %v", err)
	}
	if len(resp.Actions) != 3 {
		t.Fatalf("expected 3 actions, got %+v", resp.Actions)
	}
	back := resp.Actions[2]
	if back.Kind != ActionBankSend || back.Sender != contractAddr || back.Recipient != "bob_key" ||
		len(back.Amount) != 1 || !back.Amount[0].Equal(funds.NewCoin(5, "utst")) {
		t.Fatalf("unexpected return of placement funds: %+v", back)
	}

	resp, err = c.Execute(s, env(startHeight+50000), info("carol_key", funds.NewCoin(2, "utst")), ExecuteMsg{
		WithdrawListing: &WithdrawListing{ListingID: "1"},
	})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if len(resp.Actions) != 3 {
		t.Fatalf("expected 3 actions, got %+v", resp.Actions)
	}
	back = resp.Actions[2]
	if back.Kind != ActionBankSend || back.Recipient != "carol_key" ||
		len(back.Amount) != 1 || !back.Amount[0].Equal(funds.NewCoin(2, "utst")) {
		t.Fatalf("unexpected return of withdrawal funds: %+v", back)
	}
}

func TestResolveListing_MissingIsNotFound(t *testing.T) {
	c, s := setup(t)
	if _, err := c.ResolveListing(s, env(startHeight), "42"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := c.Query(s, env(startHeight), QueryMsg{ResolveListing: &ResolveListingQuery{ID: "42"}}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound via Query, got %v", err)
	}
}

func TestExecute_RejectsAmbiguousMessages(t *testing.T) {
	c, s := setup(t)
	if _, err := c.Execute(s, env(startHeight), info("bob_key"), ExecuteMsg{}); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage for empty msg, got %v", err)
	}
	_, err := c.Execute(s, env(startHeight), info("bob_key"), ExecuteMsg{
		BidListing:      &BidListing{ListingID: "1"},
		WithdrawListing: &WithdrawListing{ListingID: "1"},
	})
	if !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage for two variants, got %v", err)
	}
	if _, err := c.Query(s, env(startHeight), QueryMsg{}); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage for empty query, got %v", err)
	}
}

func TestPhaseAt(t *testing.T) {
	if PhaseAt(9, 10) != PhaseActive || PhaseAt(10, 10) != PhaseExpired || PhaseAt(11, 10) != PhaseExpired {
		t.Fatalf("unexpected phase boundary")
	}
}
