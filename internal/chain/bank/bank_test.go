package bank

import (
	"errors"
	"testing"

	"auctionhouse.ai/internal/auction/funds"
	"auctionhouse.ai/internal/kv"
)

func TestSend(t *testing.T) {
	k := NewKeeper(kv.NewMemStore())
	if err := k.Mint("alice", funds.Coins{funds.NewCoin(10, "utst"), funds.NewCoin(1, "atom")}); err != nil {
		t.Fatalf("Mint: %v", err)
	}

	if err := k.Send("alice", "bob", funds.Coins{funds.NewCoin(4, "utst")}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	a, _ := k.Balance("alice", "utst")
	b, _ := k.Balance("bob", "utst")
	if !a.Equal(funds.NewCoin(6, "utst")) || !b.Equal(funds.NewCoin(4, "utst")) {
		t.Fatalf("unexpected balances: alice=%s bob=%s", a, b)
	}

	if err := k.Send("bob", "alice", funds.Coins{funds.NewCoin(5, "utst")}); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	all, err := k.AllBalances("alice")
	if err != nil {
		t.Fatalf("AllBalances: %v", err)
	}
	if len(all) != 2 || all[0].Denom != "atom" || all[1].Denom != "utst" {
		t.Fatalf("unexpected balances: %v", all)
	}
}

func TestSend_ZeroIsNoop(t *testing.T) {
	s := kv.NewMemStore()
	k := NewKeeper(s)
	if err := k.Send("contract", "bob", funds.Coins{funds.NewCoin(0, funds.DefaultDenom)}); err != nil {
		t.Fatalf("zero send: %v", err)
	}
	if err := k.Send("contract", "bob", nil); err != nil {
		t.Fatalf("empty send: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("zero send wrote state")
	}
}

func TestSend_DrainedBalanceIsRemoved(t *testing.T) {
	s := kv.NewMemStore()
	k := NewKeeper(s)
	_ = k.Mint("alice", funds.Coins{funds.NewCoin(3, "utst")})
	if err := k.Send("alice", "bob", funds.Coins{funds.NewCoin(3, "utst")}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	all, _ := k.AllBalances("alice")
	if len(all) != 0 {
		t.Fatalf("expected no balances, got %v", all)
	}
	if s.Len() != 1 {
		t.Fatalf("expected only bob's balance stored, got %d keys", s.Len())
	}
}
