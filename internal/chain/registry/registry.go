// Package registry is an in-process non-fungible asset registry with
// approve/transfer semantics. Every registry address gets its own key range
// in the chain store.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"auctionhouse.ai/internal/kv"
)

const namespace = "registry"

var (
	ErrAssetNotFound   = errors.New("asset not found")
	ErrAssetExists     = errors.New("asset already minted")
	ErrUnauthorized    = errors.New("sender may not move asset")
	ErrApprovalExpired = errors.New("approval expiry already passed")
)

type Approval struct {
	Spender       string `json:"spender"`
	ExpiresHeight uint64 `json:"expires_height"`
}

type Asset struct {
	Owner     string     `json:"owner"`
	Approvals []Approval `json:"approvals,omitempty"`
}

type Keeper struct {
	store kv.Store
}

func NewKeeper(store kv.Store) *Keeper {
	return &Keeper{store: kv.NewPrefixed(store, namespace)}
}

func assetKey(registry, assetID string) []byte {
	return []byte(registry + "\x00" + assetID)
}

func (k *Keeper) Asset(registry, assetID string) (Asset, error) {
	raw, err := k.store.Get(assetKey(registry, assetID))
	if err != nil {
		return Asset{}, err
	}
	if raw == nil {
		return Asset{}, fmt.Errorf("%w: %s/%s", ErrAssetNotFound, registry, assetID)
	}
	var a Asset
	if err := json.Unmarshal(raw, &a); err != nil {
		return Asset{}, fmt.Errorf("decode asset %s/%s: %w", registry, assetID, err)
	}
	return a, nil
}

func (k *Keeper) OwnerOf(registry, assetID string) (string, error) {
	a, err := k.Asset(registry, assetID)
	if err != nil {
		return "", err
	}
	return a.Owner, nil
}

func (k *Keeper) save(registry, assetID string, a Asset) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return k.store.Set(assetKey(registry, assetID), raw)
}

func (k *Keeper) Mint(registry, assetID, owner string) error {
	raw, err := k.store.Get(assetKey(registry, assetID))
	if err != nil {
		return err
	}
	if raw != nil {
		return fmt.Errorf("%w: %s/%s", ErrAssetExists, registry, assetID)
	}
	return k.save(registry, assetID, Asset{Owner: owner})
}

// Approve lets spender transfer the asset until height reaches expiresHeight.
// Only the current owner may approve.
func (k *Keeper) Approve(registry, sender, spender, assetID string, expiresHeight, height uint64) error {
	a, err := k.Asset(registry, assetID)
	if err != nil {
		return err
	}
	if a.Owner != sender {
		return fmt.Errorf("%w: %s does not own %s/%s", ErrUnauthorized, sender, registry, assetID)
	}
	if expiresHeight <= height {
		return ErrApprovalExpired
	}
	live := a.Approvals[:0]
	for _, ap := range a.Approvals {
		if ap.Spender != spender && ap.ExpiresHeight > height {
			live = append(live, ap)
		}
	}
	a.Approvals = append(live, Approval{Spender: spender, ExpiresHeight: expiresHeight})
	return k.save(registry, assetID, a)
}

// Transfer moves the asset to recipient. The sender must own it or hold an
// approval that has not expired at height. Approvals do not survive a transfer.
func (k *Keeper) Transfer(registry, sender, recipient, assetID string, height uint64) error {
	a, err := k.Asset(registry, assetID)
	if err != nil {
		return err
	}
	if !a.canMove(sender, height) {
		return fmt.Errorf("%w: %s on %s/%s", ErrUnauthorized, sender, registry, assetID)
	}
	a.Owner = recipient
	a.Approvals = nil
	return k.save(registry, assetID, a)
}

func (a Asset) canMove(sender string, height uint64) bool {
	if a.Owner == sender {
		return true
	}
	for _, ap := range a.Approvals {
		if ap.Spender == sender && height < ap.ExpiresHeight {
			return true
		}
	}
	return false
}
