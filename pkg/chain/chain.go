package chain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// USDCDecimals is the precision of USDC on every supported chain
const USDCDecimals = 6

// Chain describes an EVM network the tool can deposit from or to
type Chain struct {
	ID             uint64
	Name           string
	DisplayName    string
	NativeSymbol   string
	NativeDecimals int
	USDC           common.Address
}

var (
	Berachain = Chain{
		ID:             80094,
		Name:           "berachain",
		DisplayName:    "Berachain",
		NativeSymbol:   "BERA",
		NativeDecimals: 18,
		USDC:           common.HexToAddress("0x549943e04f40284185054145c6E4e9568C1D3241"),
	}

	Ethereum = Chain{
		ID:             1,
		Name:           "ethereum",
		DisplayName:    "Ethereum",
		NativeSymbol:   "ETH",
		NativeDecimals: 18,
		USDC:           common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
	}
)

var known = []Chain{Berachain, Ethereum}

// aliases maps short names to canonical chain names
var aliases = map[string]string{
	"bera":    "berachain",
	"eth":     "ethereum",
	"mainnet": "ethereum",
}

// Lookup resolves a chain by name, alias or numeric id
func Lookup(key string) (Chain, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if canonical, ok := aliases[key]; ok {
		key = canonical
	}

	if id, err := strconv.ParseUint(key, 10, 64); err == nil {
		return ByID(id)
	}

	for _, c := range known {
		if c.Name == key {
			return c, nil
		}
	}

	return Chain{}, fmt.Errorf("unknown chain: %s", key)
}

// ByID returns the built-in chain with the given id
func ByID(id uint64) (Chain, error) {
	for _, c := range known {
		if c.ID == id {
			return c, nil
		}
	}
	return Chain{}, fmt.Errorf("unknown chain id: %d", id)
}

// Known returns all built-in chains
func Known() []Chain {
	out := make([]Chain, len(known))
	copy(out, known)
	return out
}

func (c Chain) String() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return fmt.Sprintf("chain %d", c.ID)
}
