// Package bank keeps per-principal coin balances inside the chain store.
package bank

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"auctionhouse.ai/internal/auction/funds"
	"auctionhouse.ai/internal/kv"
)

const namespace = "bank"

var ErrInsufficientBalance = errors.New("insufficient balance")

type Keeper struct {
	store kv.Store
}

func NewKeeper(store kv.Store) *Keeper {
	return &Keeper{store: kv.NewPrefixed(store, namespace)}
}

// balance keys are "<addr>\x00<denom>" so one principal's balances are contiguous.
func balanceKey(addr, denom string) []byte {
	return []byte(addr + "\x00" + denom)
}

func (k *Keeper) Balance(addr, denom string) (funds.Coin, error) {
	raw, err := k.store.Get(balanceKey(addr, denom))
	if err != nil {
		return funds.Coin{}, err
	}
	if raw == nil {
		return funds.NewCoin(0, denom), nil
	}
	amt, err := decimal.NewFromString(string(raw))
	if err != nil {
		return funds.Coin{}, fmt.Errorf("decode balance %s/%s: %w", addr, denom, err)
	}
	return funds.Coin{Denom: denom, Amount: amt}, nil
}

func (k *Keeper) AllBalances(addr string) (funds.Coins, error) {
	var out funds.Coins
	err := k.store.Iterate([]byte(addr+"\x00"), func(key, v []byte) error {
		denom := strings.TrimPrefix(string(key), addr+"\x00")
		amt, err := decimal.NewFromString(string(v))
		if err != nil {
			return fmt.Errorf("decode balance %s/%s: %w", addr, denom, err)
		}
		out = append(out, funds.Coin{Denom: denom, Amount: amt})
		return nil
	})
	return out, err
}

func (k *Keeper) setBalance(addr string, c funds.Coin) error {
	if c.Amount.IsZero() {
		return k.store.Delete(balanceKey(addr, c.Denom))
	}
	return k.store.Set(balanceKey(addr, c.Denom), []byte(c.Amount.String()))
}

// Mint credits coins out of thin air. Only genesis uses it.
func (k *Keeper) Mint(addr string, coins funds.Coins) error {
	if err := coins.Validate(); err != nil {
		return err
	}
	for _, c := range coins.NonZero() {
		cur, err := k.Balance(addr, c.Denom)
		if err != nil {
			return err
		}
		cur.Amount = cur.Amount.Add(c.Amount)
		if err := k.setBalance(addr, cur); err != nil {
			return err
		}
	}
	return nil
}

// Send moves coins from one principal to another. Zero-amount coins are
// skipped, so an empty or all-zero send succeeds without touching state.
func (k *Keeper) Send(from, to string, coins funds.Coins) error {
	if err := coins.Validate(); err != nil {
		return err
	}
	for _, c := range coins.NonZero() {
		src, err := k.Balance(from, c.Denom)
		if err != nil {
			return err
		}
		if src.Amount.LessThan(c.Amount) {
			return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from, src, c)
		}
		src.Amount = src.Amount.Sub(c.Amount)
		if err := k.setBalance(from, src); err != nil {
			return err
		}
		dst, err := k.Balance(to, c.Denom)
		if err != nil {
			return err
		}
		dst.Amount = dst.Amount.Add(c.Amount)
		if err := k.setBalance(to, dst); err != nil {
			return err
		}
	}
	return nil
}
