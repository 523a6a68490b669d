package chain

import (
	"fmt"

	"auctionhouse.ai/internal/auction/contract"
	"auctionhouse.ai/internal/protocol"
)

// TxFromExecute builds the transaction an authenticated principal submits
// with an EXECUTE frame.
func TxFromExecute(principal string, m protocol.ExecuteMsg) (Tx, error) {
	msg, err := m.DecodeExecute()
	if err != nil {
		return Tx{}, fmt.Errorf("%w: %v", contract.ErrUnknownMessage, err)
	}
	if msg.Kind() == "" {
		return Tx{}, contract.ErrUnknownMessage
	}
	return Tx{Sender: principal, Funds: m.Funds, Msg: msg}, nil
}

func (r TxResult) Result(reqID string) protocol.ResultMsg {
	out := protocol.NewResult(reqID)
	out.OK = r.OK
	out.Code = r.Code
	out.Message = r.Message
	out.TxID = r.TxID
	out.Height = r.Height
	out.Attributes = r.Attributes
	out.Actions = r.Actions
	return out
}

// QueryResult answers a QUERY frame against the last committed block.
func (c *Chain) QueryResult(reqID string, msg contract.QueryMsg) protocol.ResultMsg {
	data, err := c.Query(msg)
	if err != nil {
		return protocol.ErrorResult(reqID, CodeFor(err), err.Error())
	}
	out := protocol.NewResult(reqID)
	out.OK = true
	out.Height = c.CurrentHeight()
	out.Data = data
	return out
}

func (c *Chain) Params() protocol.ChainParams {
	return protocol.ChainParams{
		ChainID:         c.cfg.ChainID,
		ContractAddress: c.cfg.ContractAddress,
		Height:          c.CurrentHeight(),
		BlockIntervalMS: int(c.cfg.BlockInterval.Milliseconds()),
		AuctionWindow:   c.cfg.AuctionWindow,
		ApprovalWindow:  c.cfg.ApprovalWindow,
	}
}
