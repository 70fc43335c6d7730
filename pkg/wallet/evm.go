package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultReceiptPollInterval is how often WaitForReceipt asks for the receipt
	DefaultReceiptPollInterval = 2 * time.Second

	gasBufferPercent = 120
)

// EVMWallet signs with a local private key and keeps one RPC client per chain
type EVMWallet struct {
	mu         sync.RWMutex
	clients    map[uint64]EthClient
	privateKey *ecdsa.PrivateKey
	address    common.Address
	active     uint64
	gas        GasConfig
	pollEvery  time.Duration
}

// ParsePrivateKey parses a hex private key with or without 0x prefix
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	if hexKey == "" {
		return nil, fmt.Errorf("private key not configured")
	}
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return privateKey, nil
}

// Dial connects to every configured RPC endpoint. Chain ids are verified lazily on SwitchChain.
func Dial(ctx context.Context, privateKeyHex string, rpcURLs map[uint64]string, activeChain uint64, gas GasConfig) (*EVMWallet, error) {
	privateKey, err := ParsePrivateKey(privateKeyHex)
	if err != nil {
		return nil, err
	}

	clients := make(map[uint64]EthClient, len(rpcURLs))
	for chainID, url := range rpcURLs {
		if url == "" {
			continue
		}

		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			closeAll(clients)
			return nil, fmt.Errorf("failed to connect to RPC endpoint for chain %d: %w", chainID, err)
		}
		clients[chainID] = client
	}

	w := NewEVMWallet(privateKey, clients, activeChain)
	w.gas = gas
	return w, nil
}

// NewEVMWallet builds a wallet over already connected clients
func NewEVMWallet(privateKey *ecdsa.PrivateKey, clients map[uint64]EthClient, activeChain uint64) *EVMWallet {
	return &EVMWallet{
		clients:    clients,
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		active:     activeChain,
		pollEvery:  DefaultReceiptPollInterval,
	}
}

// SetReceiptPollInterval changes how often WaitForReceipt polls
func (e *EVMWallet) SetReceiptPollInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	e.mu.Lock()
	e.pollEvery = d
	e.mu.Unlock()
}

// SetGasConfig changes gas overrides
func (e *EVMWallet) SetGasConfig(gas GasConfig) {
	e.mu.Lock()
	e.gas = gas
	e.mu.Unlock()
}

// Address returns the account address derived from the private key
func (e *EVMWallet) Address() common.Address {
	return e.address
}

// ChainID returns the chain the wallet is currently connected to
func (e *EVMWallet) ChainID(ctx context.Context) (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if _, ok := e.clients[e.active]; !ok {
		return 0, fmt.Errorf("%w: %d", ErrChainNotConfigured, e.active)
	}
	return e.active, nil
}

// SwitchChain makes chainID the active chain after checking the endpoint serves it
func (e *EVMWallet) SwitchChain(ctx context.Context, chainID uint64) error {
	client, err := e.Client(chainID)
	if err != nil {
		return err
	}

	remote, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain id: %w", err)
	}
	if remote.Uint64() != chainID {
		return fmt.Errorf("RPC endpoint for chain %d serves chain %d", chainID, remote.Uint64())
	}

	e.mu.Lock()
	e.active = chainID
	e.mu.Unlock()

	logrus.WithField("chain_id", chainID).Debug("switched wallet chain")
	return nil
}

// Client returns the RPC client for a chain
func (e *EVMWallet) Client(chainID uint64) (EthClient, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	client, ok := e.clients[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrChainNotConfigured, chainID)
	}
	return client, nil
}

// Chains returns the configured chain ids in ascending order
func (e *EVMWallet) Chains() []uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := make([]uint64, 0, len(e.clients))
	for id := range e.clients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SendTransaction signs req with the wallet key and broadcasts it on the active chain
func (e *EVMWallet) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	e.mu.RLock()
	active := e.active
	gas := e.gas
	e.mu.RUnlock()

	if req.ChainID != 0 && req.ChainID != active {
		return common.Hash{}, fmt.Errorf("%w: want %d, active %d", ErrWrongChain, req.ChainID, active)
	}

	client, err := e.Client(active)
	if err != nil {
		return common.Hash{}, err
	}

	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}

	nonce, err := client.PendingNonceAt(ctx, e.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasLimit, err := e.gasLimit(ctx, client, req, gas, value)
	if err != nil {
		return common.Hash{}, err
	}

	tx, err := e.buildTx(ctx, client, req, gas, active, nonce, gasLimit, value)
	if err != nil {
		return common.Hash{}, err
	}

	chainID := new(big.Int).SetUint64(active)
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), e.privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"chain_id": active,
		"to":       req.To.Hex(),
		"nonce":    nonce,
		"gas":      gasLimit,
		"hash":     signedTx.Hash().Hex(),
	}).Debug("transaction sent")

	return signedTx.Hash(), nil
}

func (e *EVMWallet) gasLimit(ctx context.Context, client EthClient, req TxRequest, gas GasConfig, value *big.Int) (uint64, error) {
	if req.Gas != 0 {
		return req.Gas, nil
	}
	if gas.Limit != 0 {
		return gas.Limit, nil
	}

	to := req.To
	estimated, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From:  e.address,
		To:    &to,
		Value: value,
		Data:  req.Data,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to estimate gas: %w", err)
	}

	return estimated * gasBufferPercent / 100, nil
}

func (e *EVMWallet) buildTx(ctx context.Context, client EthClient, req TxRequest, gas GasConfig, chainID, nonce, gasLimit uint64, value *big.Int) (*types.Transaction, error) {
	to := req.To

	gasPrice := req.GasPrice
	if gasPrice == nil && req.MaxFeePerGas == nil {
		gasPrice = gas.Price
	}
	if gasPrice != nil {
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gasLimit,
			To:       &to,
			Value:    value,
			Data:     req.Data,
		}), nil
	}

	feeCap := req.MaxFeePerGas
	tip := req.MaxPriorityFeePerGas
	if feeCap == nil {
		header, err := client.HeaderByNumber(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get latest header: %w", err)
		}

		if header.BaseFee == nil {
			price, err := client.SuggestGasPrice(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to get gas price: %w", err)
			}
			return types.NewTx(&types.LegacyTx{
				Nonce:    nonce,
				GasPrice: price,
				Gas:      gasLimit,
				To:       &to,
				Value:    value,
				Data:     req.Data,
			}), nil
		}

		if tip == nil {
			suggested, err := client.SuggestGasTipCap(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to get gas tip cap: %w", err)
			}
			tip = suggested
		}
		feeCap = new(big.Int).Add(new(big.Int).Mul(header.BaseFee, big.NewInt(2)), tip)
	}
	if tip == nil {
		suggested, err := client.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get gas tip cap: %w", err)
		}
		tip = suggested
	}
	if tip.Cmp(feeCap) > 0 {
		tip = new(big.Int).Set(feeCap)
	}

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(chainID),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      req.Data,
	}), nil
}

// WaitForReceipt polls the active chain until the transaction is mined.
// A mined transaction with failed status returns the receipt and ErrTransactionReverted.
func (e *EVMWallet) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	e.mu.RLock()
	active := e.active
	pollEvery := e.pollEvery
	e.mu.RUnlock()

	client, err := e.Client(active)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("%w: %s", ErrTransactionReverted, hash.Hex())
			}
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close closes every client connection
func (e *EVMWallet) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	closeAll(e.clients)
}

func closeAll(clients map[uint64]EthClient) {
	for _, client := range clients {
		if client != nil {
			client.Close()
		}
	}
}
