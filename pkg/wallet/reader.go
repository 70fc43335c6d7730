package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"relay-deposit/pkg/contracts"
)

// NativeBalance returns the latest native balance of account
func NativeBalance(ctx context.Context, client EthClient, account common.Address) (*big.Int, error) {
	balance, err := client.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get native balance: %w", err)
	}
	return balance, nil
}

// TokenBalance returns the latest ERC20 balance of account
func TokenBalance(ctx context.Context, client EthClient, token, account common.Address) (*big.Int, error) {
	data, err := contracts.PackBalanceOf(account)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf data: %w", err)
	}

	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call balanceOf: %w", err)
	}

	return contracts.UnpackBalanceOf(result)
}

// RelayerOwner reads getOwner() from the relayer contract
func RelayerOwner(ctx context.Context, client EthClient, relayer common.Address) (common.Address, error) {
	data, err := contracts.PackGetOwner()
	if err != nil {
		return common.Address{}, err
	}

	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &relayer, Data: data}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to call getOwner: %w", err)
	}

	return contracts.UnpackGetOwner(result)
}
