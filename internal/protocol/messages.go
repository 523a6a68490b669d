package protocol

import (
	"encoding/json"

	"auctionhouse.ai/internal/auction/contract"
	"auctionhouse.ai/internal/auction/funds"
)

// HELLO (client -> server)
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	ClientName      string     `json:"client_name,omitempty"`
	Auth            *HelloAuth `json:"auth,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	Principal       string      `json:"principal"`
	ChainParams     ChainParams `json:"chain_params"`
}

type ChainParams struct {
	ChainID         string `json:"chain_id"`
	ContractAddress string `json:"contract_address"`
	Height          uint64 `json:"height"`
	BlockIntervalMS int    `json:"block_interval_ms"`
	AuctionWindow   uint64 `json:"auction_window"`
	ApprovalWindow  uint64 `json:"approval_window"`
}

// EXECUTE (client -> server). Msg is one of the contract's execute variants.
type ExecuteMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	ReqID           string          `json:"req_id"`
	Msg             json.RawMessage `json:"msg"`
	Funds           funds.Coins     `json:"funds,omitempty"`
}

// QUERY (client -> server)
type QueryMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	ReqID           string          `json:"req_id"`
	Msg             json.RawMessage `json:"msg"`
}

// RESULT (server -> client) answers one EXECUTE or QUERY.
type ResultMsg struct {
	Type            string               `json:"type"`
	ProtocolVersion string               `json:"protocol_version"`
	ReqID           string               `json:"req_id,omitempty"`
	OK              bool                 `json:"ok"`
	Code            string               `json:"code,omitempty"`
	Message         string               `json:"message,omitempty"`
	TxID            string               `json:"tx_id,omitempty"`
	Height          uint64               `json:"height,omitempty"`
	Attributes      []contract.Attribute `json:"attributes,omitempty"`
	Actions         []contract.Action    `json:"actions,omitempty"`
	Data            any                  `json:"data,omitempty"`
}

func NewResult(reqID string) ResultMsg {
	return ResultMsg{Type: TypeResult, ProtocolVersion: Version, ReqID: reqID}
}

func ErrorResult(reqID, code, message string) ResultMsg {
	r := NewResult(reqID)
	r.Code = code
	r.Message = message
	return r
}

// DecodeExecute unmarshals the contract message carried by an EXECUTE frame.
func (m ExecuteMsg) DecodeExecute() (contract.ExecuteMsg, error) {
	var out contract.ExecuteMsg
	err := json.Unmarshal(m.Msg, &out)
	return out, err
}

func (m QueryMsg) DecodeQuery() (contract.QueryMsg, error) {
	var out contract.QueryMsg
	err := json.Unmarshal(m.Msg, &out)
	return out, err
}
