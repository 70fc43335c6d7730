package contracts

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DefaultRelayerAddress is the deposit relayer deployed on the destination chain
var DefaultRelayerAddress = common.HexToAddress("0xe55eCaD237C49085c28c3045cfaD313dB694CC5E")

// RelayerABI is the interface of the deposit relayer contract
const RelayerABI = `[
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"asset","type":"address"},{"indexed":true,"internalType":"address","name":"user","type":"address"},{"indexed":true,"internalType":"uint256","name":"amount","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"originChainId","type":"uint256"},{"indexed":false,"internalType":"address","name":"referral","type":"address"}],"name":"DepositProcessed","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"oldOwner","type":"address"},{"indexed":true,"internalType":"address","name":"newOwner","type":"address"}],"name":"OwnerSet","type":"event"},
{"inputs":[{"internalType":"address","name":"newOwner","type":"address"}],"name":"changeOwner","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[],"name":"getOwner","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"address","name":"token","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"address","name":"user","type":"address"},{"internalType":"uint256","name":"originChainId","type":"uint256"},{"internalType":"address","name":"referral","type":"address"}],"name":"handleRelayLinkMessage","outputs":[],"stateMutability":"nonpayable","type":"function"},
{"inputs":[{"internalType":"address","name":"token","type":"address"}],"name":"rescue","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

const (
	EventDepositProcessed = "DepositProcessed"
	EventOwnerSet         = "OwnerSet"

	MethodHandleRelayLinkMessage = "handleRelayLinkMessage"
)

// ErrUnknownEvent is returned when a log does not belong to the relayer interface
var ErrUnknownEvent = errors.New("log is not a relayer event")

var relayerABI = mustParseABI(RelayerABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("failed to parse ABI: %v", err))
	}
	return parsed
}

// DepositProcessed is emitted by the relayer after it accepted a bridged deposit
type DepositProcessed struct {
	Asset         common.Address
	User          common.Address
	Amount        *big.Int
	OriginChainID *big.Int
	Referral      common.Address
	Raw           types.Log
}

// OwnerSet is emitted whenever relayer ownership changes
type OwnerSet struct {
	OldOwner common.Address
	NewOwner common.Address
	Raw      types.Log
}

// PackHandleRelayLinkMessage builds call-data for the relayer deposit entry point
func PackHandleRelayLinkMessage(token common.Address, amount *big.Int, user common.Address, originChainID uint64, referral common.Address) ([]byte, error) {
	data, err := relayerABI.Pack(MethodHandleRelayLinkMessage, token, amount, user, new(big.Int).SetUint64(originChainID), referral)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", MethodHandleRelayLinkMessage, err)
	}
	return data, nil
}

// PackGetOwner builds call-data for getOwner()
func PackGetOwner() ([]byte, error) {
	return relayerABI.Pack("getOwner")
}

// UnpackGetOwner decodes the getOwner() return value
func UnpackGetOwner(data []byte) (common.Address, error) {
	out, err := relayerABI.Unpack("getOwner", data)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to unpack getOwner: %w", err)
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// PackChangeOwner builds call-data for changeOwner(newOwner)
func PackChangeOwner(newOwner common.Address) ([]byte, error) {
	return relayerABI.Pack("changeOwner", newOwner)
}

// PackRescue builds call-data for rescue(token)
func PackRescue(token common.Address) ([]byte, error) {
	return relayerABI.Pack("rescue", token)
}

// RelayerEventTopics returns the topic0 values of every relayer event
func RelayerEventTopics() []common.Hash {
	return []common.Hash{
		relayerABI.Events[EventDepositProcessed].ID,
		relayerABI.Events[EventOwnerSet].ID,
	}
}

// ParseRelayerLog decodes a relayer log into *DepositProcessed or *OwnerSet
func ParseRelayerLog(log types.Log) (interface{}, error) {
	if len(log.Topics) == 0 {
		return nil, ErrUnknownEvent
	}

	switch log.Topics[0] {
	case relayerABI.Events[EventDepositProcessed].ID:
		return ParseDepositProcessed(log)
	case relayerABI.Events[EventOwnerSet].ID:
		return ParseOwnerSet(log)
	default:
		return nil, ErrUnknownEvent
	}
}

// ParseDepositProcessed decodes a DepositProcessed log
func ParseDepositProcessed(log types.Log) (*DepositProcessed, error) {
	fields, err := unpackEvent(EventDepositProcessed, log)
	if err != nil {
		return nil, err
	}

	return &DepositProcessed{
		Asset:         fields["asset"].(common.Address),
		User:          fields["user"].(common.Address),
		Amount:        fields["amount"].(*big.Int),
		OriginChainID: fields["originChainId"].(*big.Int),
		Referral:      fields["referral"].(common.Address),
		Raw:           log,
	}, nil
}

// ParseOwnerSet decodes an OwnerSet log
func ParseOwnerSet(log types.Log) (*OwnerSet, error) {
	fields, err := unpackEvent(EventOwnerSet, log)
	if err != nil {
		return nil, err
	}

	return &OwnerSet{
		OldOwner: fields["oldOwner"].(common.Address),
		NewOwner: fields["newOwner"].(common.Address),
		Raw:      log,
	}, nil
}

func unpackEvent(name string, log types.Log) (map[string]interface{}, error) {
	event := relayerABI.Events[name]
	if len(log.Topics) == 0 || log.Topics[0] != event.ID {
		return nil, fmt.Errorf("%w: expected %s", ErrUnknownEvent, name)
	}

	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(log.Topics)-1 != len(indexed) {
		return nil, fmt.Errorf("%s: expected %d indexed topics, got %d", name, len(indexed), len(log.Topics)-1)
	}

	fields := make(map[string]interface{})
	if len(log.Data) > 0 {
		if err := relayerABI.UnpackIntoMap(fields, name, log.Data); err != nil {
			return nil, fmt.Errorf("failed to unpack %s data: %w", name, err)
		}
	}
	if err := abi.ParseTopicsIntoMap(fields, indexed, log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("failed to unpack %s topics: %w", name, err)
	}

	return fields, nil
}
