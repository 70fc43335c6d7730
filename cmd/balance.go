package cmd

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"relay-deposit/config"
	"relay-deposit/pkg/balance"
	"relay-deposit/pkg/wallet"
)

var (
	balanceAddress  string
	watchBalance    bool
	balanceInterval int
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show native and USDC balances on the origin chain",
	Long: `Show the native and USDC balances of your account on the origin chain.

The account is derived from the configured private key unless --address is given.
With --watch the balances are re-read on every new block.

Examples:
  relay-deposit balance
  relay-deposit balance --address 0x1234...abcd
  relay-deposit balance --watch`,
	Args: cobra.NoArgs,
	Run:  runBalance,
}

func init() {
	rootCmd.AddCommand(balanceCmd)

	balanceCmd.Flags().StringVar(&balanceAddress, "address", "", "Account to show (default is the configured wallet)")
	balanceCmd.Flags().BoolVarP(&watchBalance, "watch", "w", false, "Refresh balances on every new block")
	balanceCmd.Flags().IntVar(&balanceInterval, "interval", 2, "Block polling interval in seconds for HTTP endpoints")
}

func runBalance(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	cfg := loadConfig()

	account, err := resolveAccount(cfg, balanceAddress)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if watchBalance {
		if jsonOutput {
			fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
			os.Exit(1)
		}
		fmt.Printf("\nWatching balances of %s on %s. Press Ctrl+C to stop.\n", color.CyanString(account.Hex()), cfg.Origin.Chain.DisplayName)
		if err := runBalanceWatch(ctx, cfg, account); err != nil && ctx.Err() == nil {
			printError(err)
			os.Exit(1)
		}
		return
	}

	rpc, err := dialEndpoint(ctx, cfg.Origin.RPCURL)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer rpc.Close()

	cache := balance.NewAccountCache(rpc, cfg.Origin.Chain, account)

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching balances..."
		s.Start()
	}

	values, err := cache.Snapshot(ctx)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		output := map[string]interface{}{
			"account":  account.Hex(),
			"chain_id": cfg.Origin.Chain.ID,
		}
		for _, name := range cache.Names() {
			q, _ := cache.Query(name)
			output[name] = q.Format(values[name])
			output[name+"_base_units"] = values[name].String()
		}
		printJSON(output)
		return
	}

	displayBalances(cache, values, account, cfg, nil)
}

// resolveAccount picks the --address flag or the address of the configured key
func resolveAccount(cfg *config.Config, address string) (common.Address, error) {
	if address != "" {
		if !common.IsHexAddress(address) {
			return common.Address{}, fmt.Errorf("invalid address: %s", address)
		}
		return common.HexToAddress(address), nil
	}

	if err := cfg.RequirePrivateKey(); err != nil {
		return common.Address{}, fmt.Errorf("%w (or pass --address)", err)
	}
	key, err := wallet.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

// runBalanceWatch prints the balances of account on every new origin block until ctx is done
func runBalanceWatch(ctx context.Context, cfg *config.Config, account common.Address) error {
	rpc, err := dialEndpoint(ctx, cfg.Origin.RPCURL)
	if err != nil {
		return err
	}
	defer rpc.Close()

	cache := balance.NewAccountCache(rpc, cfg.Origin.Chain, account)

	// websocket endpoints push heads, HTTP ones are polled
	var source balance.BlockSource = rpc
	if !strings.HasPrefix(cfg.Origin.RPCURL, "ws") {
		source = balance.NewPollingBlockSource(rpc, time.Duration(balanceInterval)*time.Second)
	}

	watcher := balance.NewWatcher(cache, source)
	watcher.OnRefresh = func(ctx context.Context, head *types.Header) {
		values, err := cache.Snapshot(ctx)
		if err != nil {
			color.Red("Error: %v", err)
			return
		}
		displayBalances(cache, values, account, cfg, head.Number)
	}

	return watcher.Run(ctx)
}

func displayBalances(cache *balance.Cache, values map[string]*big.Int, account common.Address, cfg *config.Config, block *big.Int) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     BALANCES")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Account:  %s\n", color.CyanString(account.Hex()))
	fmt.Printf("  Chain:    %s (%d)\n", cfg.Origin.Chain.DisplayName, cfg.Origin.Chain.ID)
	if block != nil {
		fmt.Printf("  Block:    %s\n", block.String())
	}
	fmt.Println()

	for _, name := range cache.Names() {
		q, _ := cache.Query(name)
		fmt.Printf("  %-8s  %s\n", strings.ToUpper(name)+":", color.YellowString(q.Format(values[name])))
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}
