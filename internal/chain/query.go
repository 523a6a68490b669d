package chain

import (
	"auctionhouse.ai/internal/auction/contract"
	"auctionhouse.ai/internal/auction/funds"
	"auctionhouse.ai/internal/chain/bank"
	"auctionhouse.ai/internal/chain/registry"
)

// Queries read the last committed block. Phase is reported as of that height.

func (c *Chain) env() contract.Env {
	return contract.Env{Height: c.height.Load(), ContractAddress: c.cfg.ContractAddress}
}

func (c *Chain) Query(msg contract.QueryMsg) (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.contract.Query(c.contractStore(c.store), c.env(), msg)
}

func (c *Chain) ListingConfig() (contract.ConfigResponse, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.contract.QueryConfig(c.contractStore(c.store))
}

func (c *Chain) ResolveListing(id string) (contract.ListingResponse, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.contract.ResolveListing(c.contractStore(c.store), c.env(), id)
}

func (c *Chain) Listings() ([]contract.ListingResponse, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.contract.Listings(c.contractStore(c.store), c.env())
}

func (c *Chain) Balances(addr string) (funds.Coins, error) {
	if _, err := c.AddrValidate(addr); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return bank.NewKeeper(c.store).AllBalances(addr)
}

func (c *Chain) Asset(registryAddr, assetID string) (registry.Asset, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return registry.NewKeeper(c.store).Asset(registryAddr, assetID)
}
