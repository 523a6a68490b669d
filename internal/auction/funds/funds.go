// Package funds holds the coin types and the payment guard used by bids.
package funds

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultDenom is the denomination of the placeholder returned when no
// threshold is enforced.
const DefaultDenom = "token"

var (
	ErrInsufficientFundsSend = errors.New("insufficient funds sent")
	ErrInvalidCoin           = errors.New("invalid coin")
)

// Coin is an amount of one denomination. Amount is a non-negative integer
// encoded in JSON as a decimal string.
type Coin struct {
	Denom  string          `json:"denom"`
	Amount decimal.Decimal `json:"amount"`
}

func NewCoin(amount int64, denom string) Coin {
	return Coin{Denom: denom, Amount: decimal.NewFromInt(amount)}
}

// ParseCoin parses an amount string such as "42" for denom.
func ParseCoin(amount, denom string) (Coin, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Coin{}, fmt.Errorf("%w: amount %q: %v", ErrInvalidCoin, amount, err)
	}
	c := Coin{Denom: strings.TrimSpace(denom), Amount: d}
	if err := c.Validate(); err != nil {
		return Coin{}, err
	}
	return c, nil
}

func (c Coin) Validate() error {
	if c.Denom == "" {
		return fmt.Errorf("%w: empty denom", ErrInvalidCoin)
	}
	if c.Amount.IsNegative() || !c.Amount.IsInteger() {
		return fmt.Errorf("%w: amount %s", ErrInvalidCoin, c.Amount.String())
	}
	return nil
}

func (c Coin) IsZero() bool { return c.Amount.IsZero() }

func (c Coin) Equal(o Coin) bool { return c.Denom == o.Denom && c.Amount.Equal(o.Amount) }

func (c Coin) String() string { return c.Amount.String() + c.Denom }

// Coins is an ordered list of attached or transferred coins.
type Coins []Coin

func (cs Coins) Validate() error {
	for _, c := range cs {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// NonZero drops zero-amount entries.
func (cs Coins) NonZero() Coins {
	var out Coins
	for _, c := range cs {
		if !c.IsZero() {
			out = append(out, c)
		}
	}
	return out
}

func (cs Coins) String() string {
	parts := make([]string, 0, len(cs))
	for _, c := range cs {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, ",")
}

// ValidatePayment checks attached funds against a required threshold.
//
// A nil or zero threshold passes and yields a zero placeholder of DefaultDenom.
// Otherwise the first attached coin of the required denom whose amount is
// strictly greater than the threshold is returned.
func ValidatePayment(attached Coins, required *Coin) (*Coin, error) {
	if required == nil || required.Amount.IsZero() {
		placeholder := NewCoin(0, DefaultDenom)
		return &placeholder, nil
	}
	for _, c := range attached {
		if c.Denom == required.Denom && c.Amount.GreaterThan(required.Amount) {
			out := c
			return &out, nil
		}
	}
	return nil, ErrInsufficientFundsSend
}

// Without returns cs minus the first entry equal to c. It is used to hand back
// attached coins that were not taken into escrow.
func (cs Coins) Without(c Coin) Coins {
	out := make(Coins, 0, len(cs))
	removed := false
	for _, x := range cs {
		if !removed && x.Equal(c) {
			removed = true
			continue
		}
		out = append(out, x)
	}
	return out
}
