package wallet

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu        sync.Mutex
	chainID   uint64
	baseFee   *big.Int
	balance   *big.Int
	call      []byte
	sent      []*types.Transaction
	receipts  map[common.Hash]*types.Receipt
	misses    int
	estimates int
}

func newFakeClient(chainID uint64) *fakeClient {
	return &fakeClient{
		chainID:  chainID,
		baseFee:  big.NewInt(10_000_000_000),
		balance:  big.NewInt(0),
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

func (f *fakeClient) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).SetUint64(f.chainID), nil
}

func (f *fakeClient) BlockNumber(ctx context.Context) (uint64, error) { return 1, nil }

func (f *fakeClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1), BaseFee: f.baseFee}, nil
}

func (f *fakeClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return f.call, nil
}

func (f *fakeClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}

func (f *fakeClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(5_000_000_000), nil
}

func (f *fakeClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.estimates++
	return 50_000, nil
}

func (f *fakeClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.misses > 0 {
		f.misses--
		return nil, ethereum.NotFound
	}
	receipt, ok := f.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (f *fakeClient) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	return nil, errors.New("not supported")
}

func (f *fakeClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (f *fakeClient) Close() {}

func newTestWallet(t *testing.T, clients map[uint64]EthClient, active uint64) *EVMWallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	w := NewEVMWallet(key, clients, active)
	w.SetReceiptPollInterval(time.Millisecond)
	return w
}

func TestSendTransactionDynamicFee(t *testing.T) {
	client := newFakeClient(80094)
	w := newTestWallet(t, map[uint64]EthClient{80094: client}, 80094)

	to := common.HexToAddress("0x0000000000000000000000000000000000000abc")
	hash, err := w.SendTransaction(context.Background(), TxRequest{To: to, Data: []byte{0x01}})
	require.NoError(t, err)
	require.Len(t, client.sent, 1)

	tx := client.sent[0]
	require.Equal(t, hash, tx.Hash())
	require.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	require.Equal(t, uint64(60_000), tx.Gas())
	require.Equal(t, int64(1_000_000_000), tx.GasTipCap().Int64())
	require.Equal(t, int64(21_000_000_000), tx.GasFeeCap().Int64())
	require.Equal(t, to, *tx.To())
	require.Equal(t, int64(80094), tx.ChainId().Int64())

	sender, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	require.NoError(t, err)
	require.Equal(t, w.Address(), sender)
}

func TestSendTransactionUsesSuppliedFees(t *testing.T) {
	client := newFakeClient(1)
	w := newTestWallet(t, map[uint64]EthClient{1: client}, 1)

	_, err := w.SendTransaction(context.Background(), TxRequest{
		ChainID:              1,
		To:                   common.HexToAddress("0x01"),
		Gas:                  90_000,
		MaxFeePerGas:         big.NewInt(30),
		MaxPriorityFeePerGas: big.NewInt(2),
	})
	require.NoError(t, err)

	tx := client.sent[0]
	require.Equal(t, uint64(90_000), tx.Gas())
	require.Equal(t, int64(30), tx.GasFeeCap().Int64())
	require.Equal(t, int64(2), tx.GasTipCap().Int64())
	require.Zero(t, client.estimates)
}

func TestSendTransactionLegacyWhenGasPriceConfigured(t *testing.T) {
	client := newFakeClient(1)
	w := newTestWallet(t, map[uint64]EthClient{1: client}, 1)
	w.SetGasConfig(GasConfig{Limit: 100_000, Price: big.NewInt(7)})

	_, err := w.SendTransaction(context.Background(), TxRequest{To: common.HexToAddress("0x01")})
	require.NoError(t, err)

	tx := client.sent[0]
	require.Equal(t, uint8(types.LegacyTxType), tx.Type())
	require.Equal(t, int64(7), tx.GasPrice().Int64())
	require.Equal(t, uint64(100_000), tx.Gas())
}

func TestSetGasConfigDuringSend(t *testing.T) {
	client := newFakeClient(1)
	w := newTestWallet(t, map[uint64]EthClient{1: client}, 1)

	errs := make(chan error, 20)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			w.SetGasConfig(GasConfig{Limit: uint64(50_000 + i), Price: big.NewInt(int64(i + 1))})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			if _, err := w.SendTransaction(context.Background(), TxRequest{To: common.HexToAddress("0x01")}); err != nil {
				errs <- err
			}
		}
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	w.SetGasConfig(GasConfig{Limit: 60_000, Price: big.NewInt(9)})
	_, err := w.SendTransaction(context.Background(), TxRequest{To: common.HexToAddress("0x01")})
	require.NoError(t, err)

	client.mu.Lock()
	defer client.mu.Unlock()
	last := client.sent[len(client.sent)-1]
	require.Equal(t, uint64(60_000), last.Gas())
	require.Equal(t, int64(9), last.GasPrice().Int64())
}

func TestSendTransactionLegacyWithoutBaseFee(t *testing.T) {
	client := newFakeClient(1)
	client.baseFee = nil
	w := newTestWallet(t, map[uint64]EthClient{1: client}, 1)

	_, err := w.SendTransaction(context.Background(), TxRequest{To: common.HexToAddress("0x01")})
	require.NoError(t, err)
	require.Equal(t, uint8(types.LegacyTxType), client.sent[0].Type())
	require.Equal(t, int64(5_000_000_000), client.sent[0].GasPrice().Int64())
}

func TestSendTransactionWrongChain(t *testing.T) {
	client := newFakeClient(1)
	w := newTestWallet(t, map[uint64]EthClient{1: client}, 1)

	_, err := w.SendTransaction(context.Background(), TxRequest{ChainID: 80094, To: common.HexToAddress("0x01")})
	require.ErrorIs(t, err, ErrWrongChain)
	require.Empty(t, client.sent)
}

func TestSwitchChain(t *testing.T) {
	w := newTestWallet(t, map[uint64]EthClient{
		1:     newFakeClient(1),
		80094: newFakeClient(80094),
	}, 1)

	require.NoError(t, w.SwitchChain(context.Background(), 80094))
	id, err := w.ChainID(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(80094), id)

	err = w.SwitchChain(context.Background(), 10)
	require.ErrorIs(t, err, ErrChainNotConfigured)

	id, err = w.ChainID(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(80094), id)
	require.Equal(t, []uint64{1, 80094}, w.Chains())
}

func TestSwitchChainRejectsMisconfiguredEndpoint(t *testing.T) {
	w := newTestWallet(t, map[uint64]EthClient{1: newFakeClient(1), 80094: newFakeClient(5)}, 1)

	err := w.SwitchChain(context.Background(), 80094)
	require.Error(t, err)

	id, err := w.ChainID(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)
}

func TestWaitForReceipt(t *testing.T) {
	client := newFakeClient(1)
	w := newTestWallet(t, map[uint64]EthClient{1: client}, 1)

	ok := common.HexToHash("0xaa")
	reverted := common.HexToHash("0xbb")
	client.receipts[ok] = &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(3)}
	client.receipts[reverted] = &types.Receipt{Status: types.ReceiptStatusFailed}
	client.misses = 2

	receipt, err := w.WaitForReceipt(context.Background(), ok)
	require.NoError(t, err)
	require.Equal(t, int64(3), receipt.BlockNumber.Int64())

	receipt, err = w.WaitForReceipt(context.Background(), reverted)
	require.ErrorIs(t, err, ErrTransactionReverted)
	require.NotNil(t, receipt)
}

func TestWaitForReceiptHonoursContext(t *testing.T) {
	w := newTestWallet(t, map[uint64]EthClient{1: newFakeClient(1)}, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := w.WaitForReceipt(ctx, common.HexToHash("0xcc"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReaders(t *testing.T) {
	client := newFakeClient(1)
	client.balance = big.NewInt(42)
	client.call = common.LeftPadBytes(big.NewInt(1_500_000).Bytes(), 32)

	native, err := NativeBalance(context.Background(), client, common.HexToAddress("0x01"))
	require.NoError(t, err)
	require.Equal(t, int64(42), native.Int64())

	token, err := TokenBalance(context.Background(), client, common.HexToAddress("0x02"), common.HexToAddress("0x01"))
	require.NoError(t, err)
	require.Equal(t, int64(1_500_000), token.Int64())
}

func TestParsePrivateKey(t *testing.T) {
	_, err := ParsePrivateKey("")
	require.Error(t, err)

	_, err = ParsePrivateKey("0xnothex")
	require.Error(t, err)

	key, err := ParsePrivateKey("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	require.Equal(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", crypto.PubkeyToAddress(key.PublicKey).Hex())
}
