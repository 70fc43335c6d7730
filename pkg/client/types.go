package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	TradeTypeExactInput  = "EXACT_INPUT"
	TradeTypeExactOutput = "EXACT_OUTPUT"

	StepKindTransaction = "transaction"
	StepKindSignature   = "signature"

	ItemStatusIncomplete = "incomplete"
	ItemStatusComplete   = "complete"

	StatusWaiting = "waiting"
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusRefund  = "refund"
)

// QuoteRequest is the body of POST /quote
type QuoteRequest struct {
	User                string    `json:"user"`
	Recipient           string    `json:"recipient,omitempty"`
	OriginChainID       uint64    `json:"originChainId"`
	DestinationChainID  uint64    `json:"destinationChainId"`
	OriginCurrency      string    `json:"originCurrency"`
	DestinationCurrency string    `json:"destinationCurrency"`
	Amount              string    `json:"amount"`
	TradeType           string    `json:"tradeType"`
	Txs                 []QuoteTx `json:"txs,omitempty"`
	Referrer            string    `json:"referrer,omitempty"`
}

// QuoteTx is a raw transaction the router runs on the destination chain
type QuoteTx struct {
	To    string `json:"to"`
	Value string `json:"value"`
	Data  string `json:"data"`
}

// Quote is the router's answer to a QuoteRequest. Its steps are executed in order.
type Quote struct {
	Steps   []Step         `json:"steps"`
	Fees    map[string]Fee `json:"fees,omitempty"`
	Details *Details       `json:"details,omitempty"`
}

// RequestID returns the first request id carried by the quote steps
func (q *Quote) RequestID() string {
	for _, step := range q.Steps {
		if step.RequestID != "" {
			return step.RequestID
		}
	}
	return ""
}

// Currency identifies an asset on a chain
type Currency struct {
	ChainID  uint64 `json:"chainId"`
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
}

// CurrencyAmount is an amount of a currency in raw and formatted form
type CurrencyAmount struct {
	Currency        *Currency `json:"currency,omitempty"`
	Amount          string    `json:"amount"`
	AmountFormatted string    `json:"amountFormatted"`
	AmountUsd       string    `json:"amountUsd"`
}

// Fee is one fee component of a quote (gas, relayer, app)
type Fee = CurrencyAmount

// Details summarises what the quote does
type Details struct {
	Operation    string          `json:"operation"`
	Sender       string          `json:"sender"`
	Recipient    string          `json:"recipient"`
	CurrencyIn   *CurrencyAmount `json:"currencyIn,omitempty"`
	CurrencyOut  *CurrencyAmount `json:"currencyOut,omitempty"`
	TimeEstimate float64         `json:"timeEstimate"`
	Rate         string          `json:"rate"`
}

// Step is one stage of quote execution
type Step struct {
	ID          string     `json:"id"`
	Action      string     `json:"action"`
	Description string     `json:"description"`
	Kind        string     `json:"kind"`
	RequestID   string     `json:"requestId"`
	Items       []StepItem `json:"items"`
}

// StepItem is one wallet interaction within a step
type StepItem struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Check  *Check          `json:"check,omitempty"`
}

// Check tells the client where to poll for the item's completion
type Check struct {
	Endpoint string `json:"endpoint"`
	Method   string `json:"method"`
}

// TxData is the payload of a transaction step item
type TxData struct {
	From                 string   `json:"from"`
	To                   string   `json:"to"`
	Data                 string   `json:"data"`
	Value                Quantity `json:"value"`
	ChainID              uint64   `json:"chainId"`
	Gas                  Quantity `json:"gas"`
	MaxFeePerGas         Quantity `json:"maxFeePerGas"`
	MaxPriorityFeePerGas Quantity `json:"maxPriorityFeePerGas"`
}

// TxData decodes the item payload as a transaction
func (i *StepItem) TxData() (*TxData, error) {
	if len(i.Data) == 0 {
		return nil, fmt.Errorf("step item has no data")
	}

	var tx TxData
	if err := json.Unmarshal(i.Data, &tx); err != nil {
		return nil, fmt.Errorf("failed to decode transaction data: %w", err)
	}
	if !common.IsHexAddress(tx.To) {
		return nil, fmt.Errorf("invalid transaction target: %q", tx.To)
	}
	return &tx, nil
}

// CallData decodes the hex call-data
func (t *TxData) CallData() ([]byte, error) {
	if t.Data == "" || t.Data == "0x" {
		return nil, nil
	}
	return hexutil.Decode(t.Data)
}

// Quantity is an integer the API encodes as a decimal string, a hex string or a JSON number
type Quantity struct {
	*big.Int
}

// UnmarshalJSON implements json.Unmarshaler
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		q.Int = nil
		return nil
	}

	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	if raw == "" {
		q.Int = nil
		return nil
	}

	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		v, err := hexutil.DecodeBig(raw)
		if err != nil {
			return fmt.Errorf("invalid quantity %q: %w", raw, err)
		}
		q.Int = v
		return nil
	}

	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return fmt.Errorf("invalid quantity %q", raw)
	}
	q.Int = v
	return nil
}

// MarshalJSON implements json.Marshaler
func (q Quantity) MarshalJSON() ([]byte, error) {
	if q.Int == nil {
		return []byte("null"), nil
	}
	return json.Marshal(q.Int.String())
}

// Uint64 returns the value or 0 when unset
func (q Quantity) Uint64() uint64 {
	if q.Int == nil || !q.Int.IsUint64() {
		return 0
	}
	return q.Int.Uint64()
}

// StatusResponse is returned by GET /intents/status/v2
type StatusResponse struct {
	Status             string   `json:"status"`
	Details            string   `json:"details,omitempty"`
	InTxHashes         []string `json:"inTxHashes,omitempty"`
	TxHashes           []string `json:"txHashes,omitempty"`
	UpdatedAt          int64    `json:"updatedAt,omitempty"`
	OriginChainID      uint64   `json:"originChainId,omitempty"`
	DestinationChainID uint64   `json:"destinationChainId,omitempty"`
}

// IsTerminal reports whether the status will not change anymore
func (s *StatusResponse) IsTerminal() bool {
	return IsTerminalStatus(s.Status)
}

// IsTerminalStatus reports whether a Relay request status is final
func IsTerminalStatus(status string) bool {
	switch strings.ToLower(status) {
	case StatusSuccess, StatusFailure, StatusRefund:
		return true
	default:
		return false
	}
}

// ChainCurrency is a currency listed for a chain
type ChainCurrency struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
}

// ChainInfo is one entry of GET /chains
type ChainInfo struct {
	ID              uint64          `json:"id"`
	Name            string          `json:"name"`
	DisplayName     string          `json:"displayName"`
	HTTPRPCURL      string          `json:"httpRpcUrl"`
	ExplorerURL     string          `json:"explorerUrl"`
	DepositEnabled  bool            `json:"depositEnabled"`
	Disabled        bool            `json:"disabled"`
	Currency        *ChainCurrency  `json:"currency,omitempty"`
	ERC20Currencies []ChainCurrency `json:"erc20Currencies,omitempty"`
}

type chainsResponse struct {
	Chains []ChainInfo `json:"chains"`
}
