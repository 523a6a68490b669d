package chain

import (
	"fmt"

	"auctionhouse.ai/internal/auction/contract"
	"auctionhouse.ai/internal/auction/funds"
	"auctionhouse.ai/internal/chain/bank"
	"auctionhouse.ai/internal/chain/registry"
	"auctionhouse.ai/internal/kv"
)

type Genesis struct {
	Balances []GenesisBalance
	Assets   []GenesisAsset
}

type GenesisBalance struct {
	Address string
	Coins   funds.Coins
}

type GenesisAsset struct {
	Registry string
	AssetID  string
	Owner    string
}

// InitGenesis instantiates the auction contract and seeds balances and
// assets at height 0. It reports false without touching state when the
// store already holds a chain.
func (c *Chain) InitGenesis(g Genesis) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ok, err := c.initializedLocked()
	if err != nil || ok {
		return false, err
	}

	cache := kv.NewCache(c.store)
	if err := c.initGenesis(cache, g); err != nil {
		cache.Discard()
		return false, err
	}
	if err := c.saveHeight(cache, 0); err != nil {
		return false, err
	}
	if err := cache.Write(); err != nil {
		return false, err
	}
	c.height.Store(0)
	return true, nil
}

// Initialized reports whether the store already holds a chain, either from
// genesis or from an imported snapshot.
func (c *Chain) Initialized() (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initializedLocked()
}

func (c *Chain) initializedLocked() (bool, error) {
	raw, err := c.chainStore(c.store).Get([]byte(heightKey))
	if err != nil {
		return false, err
	}
	return raw != nil, nil
}

func (c *Chain) initGenesis(store kv.Store, g Genesis) error {
	env := contract.Env{Height: 0, ContractAddress: c.cfg.ContractAddress}
	if _, err := c.contract.Instantiate(c.contractStore(store), env, contract.MessageInfo{Sender: c.cfg.ContractAddress}); err != nil {
		return fmt.Errorf("instantiate: %w", err)
	}
	bk := bank.NewKeeper(store)
	for _, b := range g.Balances {
		if _, err := c.AddrValidate(b.Address); err != nil {
			return fmt.Errorf("genesis balance: %w", err)
		}
		if err := bk.Mint(b.Address, b.Coins); err != nil {
			return fmt.Errorf("genesis balance %s: %w", b.Address, err)
		}
	}
	reg := registry.NewKeeper(store)
	for _, a := range g.Assets {
		if _, err := c.AddrValidate(a.Registry); err != nil {
			return fmt.Errorf("genesis asset registry: %w", err)
		}
		if _, err := c.AddrValidate(a.Owner); err != nil {
			return fmt.Errorf("genesis asset owner: %w", err)
		}
		if err := reg.Mint(a.Registry, a.AssetID, a.Owner); err != nil {
			return fmt.Errorf("genesis asset %s/%s: %w", a.Registry, a.AssetID, err)
		}
	}
	return nil
}
