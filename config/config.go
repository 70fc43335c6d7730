package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"relay-deposit/pkg/chain"
	"relay-deposit/pkg/client"
	"relay-deposit/pkg/contracts"
)

// ErrMissingPrivateKey is returned by commands that need to sign
var ErrMissingPrivateKey = errors.New("private key not found. Please set RELAY_DEPOSIT_WALLET_PRIVATE_KEY environment variable or add wallet.private_key to .relay-deposit.yaml")

// Endpoint is a chain the tool talks to
type Endpoint struct {
	Chain  chain.Chain
	RPCURL string
}

// Config holds the application configuration
type Config struct {
	BaseURL         string
	PollingInterval time.Duration
	MaxPolls        int

	PrivateKey string

	Origin      Endpoint
	Destination Endpoint
	Relayer     common.Address

	HistoryFile string

	GasLimit uint64
	GasPrice *big.Int // wei, nil uses network fees
}

// Load reads configuration from environment variables and config file.
// configFile overrides the default search path when set.
func Load(configFile string) (*Config, error) {
	return load(viper.GetViper(), configFile)
}

func load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(".relay-deposit")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	// RELAY_DEPOSIT_ORIGIN_RPC_URL -> origin.rpc_url
	v.SetEnvPrefix("RELAY_DEPOSIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("relay.base_url", client.MainnetAPI)
	v.SetDefault("relay.polling_interval", client.DefaultPollingInterval)
	v.SetDefault("relay.max_polls", client.DefaultMaxPolls)

	v.SetDefault("origin.chain_id", chain.Berachain.ID)
	v.SetDefault("origin.rpc_url", "https://rpc.berachain.com")
	v.SetDefault("destination.chain_id", chain.Ethereum.ID)
	v.SetDefault("destination.rpc_url", "https://ethereum-rpc.publicnode.com")

	v.SetDefault("relayer.address", contracts.DefaultRelayerAddress.Hex())
	v.SetDefault("gas.limit", 0)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		BaseURL:         v.GetString("relay.base_url"),
		PollingInterval: v.GetDuration("relay.polling_interval"),
		MaxPolls:        v.GetInt("relay.max_polls"),
		PrivateKey:      strings.TrimSpace(v.GetString("wallet.private_key")),
		HistoryFile:     v.GetString("history.file"),
		GasLimit:        v.GetUint64("gas.limit"),
	}

	var err error
	if cfg.Origin, err = endpoint(v, "origin"); err != nil {
		return nil, err
	}
	if cfg.Destination, err = endpoint(v, "destination"); err != nil {
		return nil, err
	}

	relayer := v.GetString("relayer.address")
	if !common.IsHexAddress(relayer) {
		return nil, fmt.Errorf("invalid relayer.address: %q", relayer)
	}
	cfg.Relayer = common.HexToAddress(relayer)

	if price := v.GetString("gas.price"); price != "" {
		p, ok := new(big.Int).SetString(price, 10)
		if !ok || p.Sign() <= 0 {
			return nil, fmt.Errorf("invalid gas.price: %q", price)
		}
		cfg.GasPrice = p
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func endpoint(v *viper.Viper, prefix string) (Endpoint, error) {
	c, err := chain.ByID(v.GetUint64(prefix + ".chain_id"))
	if err != nil {
		return Endpoint{}, fmt.Errorf("%s.chain_id: %w", prefix, err)
	}

	if usdc := v.GetString(prefix + ".usdc"); usdc != "" {
		if !common.IsHexAddress(usdc) {
			return Endpoint{}, fmt.Errorf("invalid %s.usdc: %q", prefix, usdc)
		}
		c.USDC = common.HexToAddress(usdc)
	}

	return Endpoint{Chain: c, RPCURL: v.GetString(prefix + ".rpc_url")}, nil
}

// Validate checks the settings every command depends on
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("relay.base_url is required")
	}
	if c.Origin.Chain.ID == c.Destination.Chain.ID {
		return fmt.Errorf("origin and destination chains must differ")
	}
	if c.Origin.RPCURL == "" {
		return fmt.Errorf("origin.rpc_url is required")
	}
	if c.PollingInterval <= 0 {
		return fmt.Errorf("relay.polling_interval must be positive")
	}
	return nil
}

// RequirePrivateKey returns ErrMissingPrivateKey when no signing key is configured
func (c *Config) RequirePrivateKey() error {
	if c.PrivateKey == "" {
		return ErrMissingPrivateKey
	}
	return nil
}

// RPCURLs maps chain id to RPC endpoint for every chain with one configured
func (c *Config) RPCURLs() map[uint64]string {
	urls := make(map[uint64]string, 2)
	if c.Origin.RPCURL != "" {
		urls[c.Origin.Chain.ID] = c.Origin.RPCURL
	}
	if c.Destination.RPCURL != "" {
		urls[c.Destination.Chain.ID] = c.Destination.RPCURL
	}
	return urls
}
