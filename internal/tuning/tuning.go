package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"auctionhouse.ai/internal/auction/funds"
	"auctionhouse.ai/internal/chain"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	ChainID         string `yaml:"chain_id" json:"chain_id"`
	ContractAddress string `yaml:"contract_address" json:"contract_address"`
	BlockIntervalMs int    `yaml:"block_interval_ms" json:"block_interval_ms"`

	AuctionWindowBlocks  uint64 `yaml:"auction_window_blocks" json:"auction_window_blocks"`
	ApprovalWindowBlocks uint64 `yaml:"approval_window_blocks" json:"approval_window_blocks"`

	SnapshotEveryBlocks uint64 `yaml:"snapshot_every_blocks" json:"snapshot_every_blocks"`
	MaxPendingTxs       int    `yaml:"max_pending_txs" json:"max_pending_txs"`

	Genesis Genesis `yaml:"genesis" json:"genesis"`
}

type Genesis struct {
	Balances []Balance `yaml:"balances" json:"balances,omitempty"`
	Assets   []Asset   `yaml:"assets" json:"assets,omitempty"`
}

type Balance struct {
	Address string     `yaml:"address" json:"address"`
	Coins   []CoinSpec `yaml:"coins" json:"coins"`
}

// CoinSpec keeps the amount as a string so values beyond int64 survive YAML.
type CoinSpec struct {
	Denom  string `yaml:"denom" json:"denom"`
	Amount string `yaml:"amount" json:"amount"`
}

type Asset struct {
	Registry string `yaml:"registry" json:"registry"`
	ID       string `yaml:"id" json:"id"`
	Owner    string `yaml:"owner" json:"owner"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:      "1.0",
		ChainID:              "auctionhouse-1",
		ContractAddress:      "auction",
		BlockIntervalMs:      1000,
		AuctionWindowBlocks:  50000,
		ApprovalWindowBlocks: 20000,
		SnapshotEveryBlocks:  3600,
		MaxPendingTxs:        1024,
	}
}

// Load reads path over Defaults. A missing file yields the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.BlockIntervalMs <= 0 {
		return fmt.Errorf("block_interval_ms must be > 0")
	}
	if t.AuctionWindowBlocks == 0 {
		return fmt.Errorf("auction_window_blocks must be > 0")
	}
	if t.ApprovalWindowBlocks == 0 {
		return fmt.Errorf("approval_window_blocks must be > 0")
	}
	if _, err := chain.ValidateAddress(t.ContractAddress); err != nil {
		return fmt.Errorf("contract_address: %w", err)
	}
	if _, err := t.ChainGenesis(); err != nil {
		return err
	}
	return nil
}

func (t Tuning) ChainConfig() chain.Config {
	return chain.Config{
		ChainID:             t.ChainID,
		ContractAddress:     t.ContractAddress,
		BlockInterval:       time.Duration(t.BlockIntervalMs) * time.Millisecond,
		AuctionWindow:       t.AuctionWindowBlocks,
		ApprovalWindow:      t.ApprovalWindowBlocks,
		SnapshotEveryBlocks: t.SnapshotEveryBlocks,
		MaxPendingTxs:       t.MaxPendingTxs,
	}
}

func (t Tuning) ChainGenesis() (chain.Genesis, error) {
	var g chain.Genesis
	for _, b := range t.Genesis.Balances {
		coins := make(funds.Coins, 0, len(b.Coins))
		for _, cs := range b.Coins {
			c, err := funds.ParseCoin(cs.Amount, cs.Denom)
			if err != nil {
				return g, fmt.Errorf("genesis balance %s: %w", b.Address, err)
			}
			coins = append(coins, c)
		}
		g.Balances = append(g.Balances, chain.GenesisBalance{Address: b.Address, Coins: coins})
	}
	for _, a := range t.Genesis.Assets {
		if a.ID == "" {
			return g, fmt.Errorf("genesis asset in %s: empty id", a.Registry)
		}
		g.Assets = append(g.Assets, chain.GenesisAsset{Registry: a.Registry, AssetID: a.ID, Owner: a.Owner})
	}
	return g, nil
}
