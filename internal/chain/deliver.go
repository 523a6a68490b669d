package chain

import (
	"errors"
	"fmt"

	"auctionhouse.ai/internal/auction/contract"
	"auctionhouse.ai/internal/auction/funds"
	"auctionhouse.ai/internal/chain/bank"
	"auctionhouse.ai/internal/chain/registry"
	"auctionhouse.ai/internal/kv"
	"auctionhouse.ai/internal/protocol"
)

// ErrForeignAuthority is returned when an action names a sender that is
// neither the contract nor the transaction signer.
var ErrForeignAuthority = errors.New("action sender not authorized by transaction")

// deliver runs tx against parent inside its own cache. Nothing reaches parent
// unless the funds move, the contract and every emitted action succeed.
func (c *Chain) deliver(parent kv.Store, tx Tx, height uint64) TxResult {
	res := TxResult{TxID: tx.ID, Height: height}
	cache := kv.NewCache(parent)
	resp, err := c.execute(cache, tx, height)
	if err == nil {
		err = cache.Write()
	}
	if err != nil {
		cache.Discard()
		res.Code = CodeFor(err)
		res.Message = err.Error()
		return res
	}
	res.OK = true
	res.Attributes = resp.Attributes
	res.Actions = resp.Actions
	return res
}

func (c *Chain) execute(store kv.Store, tx Tx, height uint64) (contract.Response, error) {
	sender, err := c.AddrValidate(tx.Sender)
	if err != nil {
		return contract.Response{}, fmt.Errorf("sender: %w", err)
	}
	if err := tx.Funds.Validate(); err != nil {
		return contract.Response{}, err
	}

	bk := bank.NewKeeper(store)
	if err := bk.Send(sender, c.cfg.ContractAddress, tx.Funds); err != nil {
		return contract.Response{}, err
	}

	env := contract.Env{Height: height, ContractAddress: c.cfg.ContractAddress}
	info := contract.MessageInfo{Sender: sender, Funds: tx.Funds}
	resp, err := c.contract.Execute(c.contractStore(store), env, info, tx.Msg)
	if err != nil {
		return contract.Response{}, err
	}

	reg := registry.NewKeeper(store)
	for i, a := range resp.Actions {
		if err := c.dispatch(bk, reg, sender, a, height); err != nil {
			return contract.Response{}, fmt.Errorf("action %d (%s): %w", i, a.Kind, err)
		}
	}
	return resp, nil
}

func (c *Chain) dispatch(bk *bank.Keeper, reg *registry.Keeper, signer string, a contract.Action, height uint64) error {
	if a.Sender != c.cfg.ContractAddress && a.Sender != signer {
		return fmt.Errorf("%w: %s", ErrForeignAuthority, a.Sender)
	}
	switch a.Kind {
	case contract.ActionBankSend:
		if len(a.Amount.NonZero()) == 0 {
			return nil
		}
		if _, err := c.AddrValidate(a.Recipient); err != nil {
			return err
		}
		return bk.Send(a.Sender, a.Recipient, a.Amount)
	case contract.ActionAssetApprove:
		return reg.Approve(a.Registry, a.Sender, a.Spender, a.AssetID, a.ExpiresHeight, height)
	case contract.ActionAssetTransfer:
		if _, err := c.AddrValidate(a.Recipient); err != nil {
			return err
		}
		return reg.Transfer(a.Registry, a.Sender, a.Recipient, a.AssetID, height)
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
}

// CodeFor maps an execution error to its wire code.
func CodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, contract.ErrNotFound):
		return protocol.ErrNotFound
	case errors.Is(err, contract.ErrAuctionEnded):
		return protocol.ErrAuctionEnded
	case errors.Is(err, contract.ErrAuctionNotEnded):
		return protocol.ErrAuctionNotEnded
	case errors.Is(err, funds.ErrInsufficientFundsSend):
		return protocol.ErrInsufficientFunds
	case errors.Is(err, ErrInvalidAddress):
		return protocol.ErrInvalidAddress
	case errors.Is(err, contract.ErrUnknownMessage), errors.Is(err, funds.ErrInvalidCoin):
		return protocol.ErrBadRequest
	case errors.Is(err, bank.ErrInsufficientBalance),
		errors.Is(err, registry.ErrAssetNotFound),
		errors.Is(err, registry.ErrAssetExists):
		return protocol.ErrNoResource
	case errors.Is(err, registry.ErrUnauthorized),
		errors.Is(err, registry.ErrApprovalExpired),
		errors.Is(err, ErrForeignAuthority):
		return protocol.ErrUnauthorized
	case errors.Is(err, ErrBusy), errors.Is(err, ErrStopped):
		return protocol.ErrBusy
	default:
		return protocol.ErrInternal
	}
}
