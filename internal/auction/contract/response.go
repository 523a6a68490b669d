package contract

import (
	"auctionhouse.ai/internal/auction/funds"
)

type ActionKind string

const (
	ActionBankSend      ActionKind = "BANK_SEND"
	ActionAssetApprove  ActionKind = "ASSET_APPROVE"
	ActionAssetTransfer ActionKind = "ASSET_TRANSFER"
)

// Action is an outgoing instruction the host executes in the same unit of
// work as the state write. Sender is the authority the host runs it under.
type Action struct {
	Kind      ActionKind  `json:"kind"`
	Sender    string      `json:"sender"`
	Recipient string      `json:"recipient,omitempty"`
	Amount    funds.Coins `json:"amount,omitempty"`

	Registry      string `json:"registry,omitempty"`
	AssetID       string `json:"asset_id,omitempty"`
	Spender       string `json:"spender,omitempty"`
	ExpiresHeight uint64 `json:"expires_height,omitempty"`
}

func BankSend(from, to string, amount funds.Coins) Action {
	return Action{Kind: ActionBankSend, Sender: from, Recipient: to, Amount: amount}
}

func AssetApprove(registry, owner, spender, assetID string, expiresHeight uint64) Action {
	return Action{
		Kind:          ActionAssetApprove,
		Sender:        owner,
		Registry:      registry,
		AssetID:       assetID,
		Spender:       spender,
		ExpiresHeight: expiresHeight,
	}
}

func AssetTransfer(registry, sender, recipient, assetID string) Action {
	return Action{
		Kind:      ActionAssetTransfer,
		Sender:    sender,
		Recipient: recipient,
		Registry:  registry,
		AssetID:   assetID,
	}
}

type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type Response struct {
	Attributes []Attribute `json:"attributes,omitempty"`
	Actions    []Action    `json:"actions,omitempty"`
}

func (r *Response) AddAttribute(key, value string) *Response {
	r.Attributes = append(r.Attributes, Attribute{Key: key, Value: value})
	return r
}

func (r *Response) AddAction(a ...Action) *Response {
	r.Actions = append(r.Actions, a...)
	return r
}

// Attribute returns the first value recorded under key.
func (r Response) Attribute(key string) (string, bool) {
	for _, a := range r.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}
