package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"relay-deposit/config"
	"relay-deposit/pkg/client"
	"relay-deposit/pkg/wallet"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "relay-deposit",
	Short: "A CLI for depositing USDC into the relayer through Relay",
	Long: `relay-deposit bridges USDC from Berachain to Ethereum with the Relay protocol
and deposits it into the relayer contract in the same request. The relayer
is credited to your own address.

Examples:
  relay-deposit deposit 10 USDC
  relay-deposit deposit 2.5 --dry-run
  relay-deposit balance --watch
  relay-deposit status <request-id>
  relay-deposit history`,
	Version: "0.1.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		setupLogging(verbose)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default is $HOME/.relay-deposit.yaml)")
}

func setupLogging(verbose bool) {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.WarnLevel)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(configFile)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	return cfg
}

func newRelayClient(cfg *config.Config) *client.RelayClient {
	return client.NewRelayClient(client.Config{
		BaseURL:         cfg.BaseURL,
		PollingInterval: cfg.PollingInterval,
		MaxPolls:        cfg.MaxPolls,
	})
}

// dialWallet opens the signing wallet on the origin chain
func dialWallet(ctx context.Context, cfg *config.Config) (*wallet.EVMWallet, error) {
	if err := cfg.RequirePrivateKey(); err != nil {
		return nil, err
	}
	return wallet.Dial(ctx, cfg.PrivateKey, cfg.RPCURLs(), cfg.Origin.Chain.ID, wallet.GasConfig{
		Limit: cfg.GasLimit,
		Price: cfg.GasPrice,
	})
}

// dialEndpoint opens a read-only connection
func dialEndpoint(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("no RPC endpoint configured")
	}
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", rpcURL, err)
	}
	return c, nil
}

// signalContext is cancelled on Ctrl+C
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func confirm(prompt string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("\n%s (y/N): ", prompt)

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func printJSON(v interface{}) {
	jsonData, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(jsonData))
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}
