package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay-deposit/pkg/wallet"
)

type recordingWallet struct {
	mu       sync.Mutex
	chainID  uint64
	switches []uint64
	sent     []wallet.TxRequest
	revert   bool
}

func (w *recordingWallet) Address() common.Address {
	return common.HexToAddress("0x00000000000000000000000000000000000000aa")
}

func (w *recordingWallet) ChainID(ctx context.Context) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chainID, nil
}

func (w *recordingWallet) SwitchChain(ctx context.Context, chainID uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.switches = append(w.switches, chainID)
	w.chainID = chainID
	return nil
}

func (w *recordingWallet) SendTransaction(ctx context.Context, req wallet.TxRequest) (common.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sent = append(w.sent, req)
	return common.BigToHash(big.NewInt(int64(len(w.sent)))), nil
}

func (w *recordingWallet) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if w.revert {
		return &types.Receipt{Status: types.ReceiptStatusFailed}, wallet.ErrTransactionReverted
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: hash}, nil
}

const quoteJSON = `{
  "steps": [{
    "id": "deposit",
    "action": "Confirm transaction in your wallet",
    "description": "Depositing funds to the relayer",
    "kind": "transaction",
    "requestId": "0xrequest",
    "items": [{
      "status": "incomplete",
      "data": {
        "from": "0x00000000000000000000000000000000000000aa",
        "to": "0x00000000000000000000000000000000000000bb",
        "data": "0xa9059cbb",
        "value": "0",
        "chainId": 80094,
        "gas": "0x186a0",
        "maxFeePerGas": "20000000000",
        "maxPriorityFeePerGas": 1000000000
      },
      "check": {"endpoint": "/intents/status?requestId=0xrequest", "method": "GET"}
    }]
  }],
  "fees": {"relayer": {"amount": "1500", "amountFormatted": "0.0015", "amountUsd": "0.0015"}},
  "details": {
    "operation": "swap",
    "timeEstimate": 12,
    "currencyIn": {"amount": "10001500", "amountFormatted": "10.0015", "currency": {"chainId": 80094, "symbol": "USDC.e", "decimals": 6}},
    "currencyOut": {"amount": "10000000", "amountFormatted": "10.0", "currency": {"chainId": 1, "symbol": "USDC", "decimals": 6}}
  }
}`

func TestGetQuote(t *testing.T) {
	var got QuoteRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/quote", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, quoteJSON)
	}))
	defer server.Close()

	c := NewRelayClient(Config{BaseURL: server.URL})
	quote, err := c.GetQuote(context.Background(), QuoteRequest{
		User:                "0xaa",
		OriginChainID:       80094,
		DestinationChainID:  1,
		OriginCurrency:      "0x01",
		DestinationCurrency: "0x02",
		Amount:              "10000000",
		TradeType:           TradeTypeExactOutput,
		Txs:                 []QuoteTx{{To: "0xbb", Value: "0", Data: "0x00"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "10000000", got.Amount)
	assert.Equal(t, TradeTypeExactOutput, got.TradeType)
	assert.Len(t, got.Txs, 1)

	require.Len(t, quote.Steps, 1)
	assert.Equal(t, "0xrequest", quote.RequestID())
	assert.Equal(t, "10.0", quote.Details.CurrencyOut.AmountFormatted)
	assert.Equal(t, "0.0015", quote.Fees["relayer"].AmountFormatted)

	tx, err := quote.Steps[0].Items[0].TxData()
	require.NoError(t, err)
	assert.Equal(t, uint64(100000), tx.Gas.Uint64())
	assert.Equal(t, int64(20000000000), tx.MaxFeePerGas.Int64())
	assert.Equal(t, int64(1000000000), tx.MaxPriorityFeePerGas.Int64())
	assert.Equal(t, uint64(80094), tx.ChainID)
}

func TestGetQuoteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"message":"Amount too low","errorCode":"AMOUNT_TOO_LOW"}`)
	}))
	defer server.Close()

	c := NewRelayClient(Config{BaseURL: server.URL})
	_, err := c.GetQuote(context.Background(), QuoteRequest{})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "AMOUNT_TOO_LOW", apiErr.ErrorCode)
	assert.Contains(t, err.Error(), "Amount too low")
}

func TestGetQuoteRejectsEmptyQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"steps":[]}`)
	}))
	defer server.Close()

	_, err := NewRelayClient(Config{BaseURL: server.URL}).GetQuote(context.Background(), QuoteRequest{})
	require.ErrorIs(t, err, ErrEmptyQuote)
}

func newStatusServer(t *testing.T, statuses ...string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/intents/status", r.URL.Path)
		require.Equal(t, "0xrequest", r.URL.Query().Get("requestId"))
		n := int(atomic.AddInt32(&calls, 1)) - 1
		if n >= len(statuses) {
			n = len(statuses) - 1
		}
		fmt.Fprintf(w, `{"status":%q}`, statuses[n])
	}))
	return server, &calls
}

func decodeQuote(t *testing.T) *Quote {
	t.Helper()
	var quote Quote
	require.NoError(t, json.Unmarshal([]byte(quoteJSON), &quote))
	return &quote
}

func TestExecute(t *testing.T) {
	server, calls := newStatusServer(t, StatusWaiting, StatusPending, StatusSuccess)
	defer server.Close()

	c := NewRelayClient(Config{BaseURL: server.URL, PollingInterval: time.Millisecond})
	w := &recordingWallet{chainID: 1}

	var progress []Progress
	quote := decodeQuote(t)
	result, err := c.Execute(context.Background(), quote, w, func(p Progress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, "0xrequest", result.RequestID)
	assert.Len(t, result.TxHashes, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))

	require.Equal(t, []uint64{80094}, w.switches)
	require.Len(t, w.sent, 1)
	sent := w.sent[0]
	assert.Equal(t, uint64(80094), sent.ChainID)
	assert.Equal(t, common.HexToAddress("0xbb"), sent.To)
	assert.Equal(t, []byte{0xa9, 0x05, 0x9c, 0xbb}, sent.Data)
	assert.Equal(t, uint64(100000), sent.Gas)
	assert.Equal(t, int64(0), sent.Value.Int64())

	require.Len(t, progress, 3)
	assert.Equal(t, ItemStatusIncomplete, progress[0].Status)
	assert.Equal(t, StatusPending, progress[1].Status)
	assert.Equal(t, StatusSuccess, progress[2].Status)
	assert.Equal(t, "deposit", progress[2].Step.ID)

	assert.Equal(t, ItemStatusComplete, quote.Steps[0].Items[0].Status)
}

func TestExecuteSkipsCompletedItems(t *testing.T) {
	c := NewRelayClient(Config{BaseURL: "http://127.0.0.1:0"})
	quote := decodeQuote(t)
	quote.Steps[0].Items[0].Status = ItemStatusComplete

	w := &recordingWallet{chainID: 80094}
	result, err := c.Execute(context.Background(), quote, w, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Empty(t, w.sent)
}

func TestExecuteFailure(t *testing.T) {
	server, _ := newStatusServer(t, StatusPending, StatusRefund)
	defer server.Close()

	c := NewRelayClient(Config{BaseURL: server.URL, PollingInterval: time.Millisecond})
	result, err := c.Execute(context.Background(), decodeQuote(t), &recordingWallet{chainID: 80094}, nil)
	require.ErrorIs(t, err, ErrExecutionFailed)
	assert.Equal(t, StatusFailure, result.Status)
	assert.Len(t, result.TxHashes, 1)
}

func TestExecutePollTimeout(t *testing.T) {
	server, calls := newStatusServer(t, StatusPending)
	defer server.Close()

	c := NewRelayClient(Config{BaseURL: server.URL, PollingInterval: time.Millisecond, MaxPolls: 4})
	_, err := c.Execute(context.Background(), decodeQuote(t), &recordingWallet{chainID: 80094}, nil)
	require.ErrorIs(t, err, ErrPollTimeout)
	assert.Equal(t, int32(4), atomic.LoadInt32(calls))
}

func TestExecuteRevertedTransaction(t *testing.T) {
	c := NewRelayClient(Config{BaseURL: "http://127.0.0.1:0"})
	result, err := c.Execute(context.Background(), decodeQuote(t), &recordingWallet{chainID: 80094, revert: true}, nil)
	require.ErrorIs(t, err, wallet.ErrTransactionReverted)
	assert.Len(t, result.TxHashes, 1)
}

func TestExecuteUnsupportedStep(t *testing.T) {
	quote := &Quote{Steps: []Step{{
		ID:    "authorize",
		Kind:  StepKindSignature,
		Items: []StepItem{{Status: ItemStatusIncomplete}},
	}}}

	w := &recordingWallet{chainID: 1}
	_, err := NewRelayClient(Config{}).Execute(context.Background(), quote, w, nil)
	require.ErrorIs(t, err, ErrUnsupportedStep)
	assert.Empty(t, w.sent)
}

func TestExecuteEmptyQuote(t *testing.T) {
	_, err := NewRelayClient(Config{}).Execute(context.Background(), nil, &recordingWallet{}, nil)
	require.ErrorIs(t, err, ErrEmptyQuote)
}

func TestGetStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/intents/status/v2", r.URL.Path)
		require.Equal(t, "0xabc", r.URL.Query().Get("requestId"))
		fmt.Fprint(w, `{"status":"success","inTxHashes":["0x1"],"txHashes":["0x2"],"updatedAt":1700000000000,"originChainId":80094,"destinationChainId":1}`)
	}))
	defer server.Close()

	status, err := NewRelayClient(Config{BaseURL: server.URL}).GetStatus(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.True(t, status.IsTerminal())
	assert.Equal(t, []string{"0x2"}, status.TxHashes)
	assert.Equal(t, uint64(80094), status.OriginChainID)

	_, err = NewRelayClient(Config{BaseURL: server.URL}).GetStatus(context.Background(), "")
	require.Error(t, err)
}

func TestGetChains(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chains", r.URL.Path)
		fmt.Fprint(w, `{"chains":[{"id":80094,"name":"berachain","displayName":"Berachain","depositEnabled":true,"currency":{"symbol":"BERA","decimals":18},"erc20Currencies":[{"symbol":"USDC.e","decimals":6,"address":"0x549943e04f40284185054145c6E4e9568C1D3241"}]}]}`)
	}))
	defer server.Close()

	chains, err := NewRelayClient(Config{BaseURL: server.URL + "/"}).GetChains(context.Background())
	require.NoError(t, err)
	require.Len(t, chains, 1)
	assert.Equal(t, "Berachain", chains[0].DisplayName)
	assert.Equal(t, "BERA", chains[0].Currency.Symbol)
	assert.Len(t, chains[0].ERC20Currencies, 1)
}

func TestQuantity(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{`"0x10"`, "16"},
		{`"123"`, "123"},
		{`456`, "456"},
	}
	for _, tt := range tests {
		var q Quantity
		require.NoError(t, json.Unmarshal([]byte(tt.in), &q))
		assert.Equal(t, tt.expected, q.Int.String())
	}

	var q Quantity
	require.NoError(t, json.Unmarshal([]byte(`null`), &q))
	assert.Nil(t, q.Int)
	assert.Equal(t, uint64(0), q.Uint64())

	require.Error(t, json.Unmarshal([]byte(`"abc"`), &q))

	out, err := json.Marshal(Quantity{Int: common.Big1})
	require.NoError(t, err)
	assert.Equal(t, `"1"`, string(out))
}

func TestIsTerminalStatus(t *testing.T) {
	assert.True(t, IsTerminalStatus("SUCCESS"))
	assert.True(t, IsTerminalStatus(StatusRefund))
	assert.False(t, IsTerminalStatus(StatusWaiting))
	assert.False(t, IsTerminalStatus(StatusPending))
}
