package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// DepositRequest is everything needed to ask the router for a deposit quote.
// It is built fresh for every deposit action and never persisted.
type DepositRequest struct {
	User               common.Address
	OriginChainID      uint64
	DestinationChainID uint64
	OriginAsset        common.Address
	DestinationAsset   common.Address
	Amount             string // smallest unit
	Txs                []RawTx
}

// RawTx is a transaction the router executes on the destination chain after bridging
type RawTx struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}
