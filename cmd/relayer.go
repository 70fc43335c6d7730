package cmd

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"relay-deposit/config"
	"relay-deposit/pkg/amount"
	"relay-deposit/pkg/chain"
	"relay-deposit/pkg/contracts"
	"relay-deposit/pkg/wallet"
)

var (
	eventsFromBlock uint64
	eventsRange     uint64
)

var relayerCmd = &cobra.Command{
	Use:   "relayer",
	Short: "Inspect and administer the relayer contract",
	Long: `Read the relayer contract on the destination chain and run its owner-only actions.

Examples:
  relay-deposit relayer owner
  relay-deposit relayer events --from-block 21000000
  relay-deposit relayer change-owner 0x1234...abcd
  relay-deposit relayer rescue 0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48`,
}

var relayerOwnerCmd = &cobra.Command{
	Use:   "owner",
	Short: "Show the relayer owner",
	Args:  cobra.NoArgs,
	Run:   runRelayerOwner,
}

var relayerEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List deposits and ownership changes emitted by the relayer",
	Long: `List DepositProcessed and OwnerSet events of the relayer.

Without --from-block the most recent blocks are scanned (see --range).

Examples:
  relay-deposit relayer events
  relay-deposit relayer events --from-block 21000000
  relay-deposit relayer events --range 50000 --json`,
	Args: cobra.NoArgs,
	Run:  runRelayerEvents,
}

var relayerChangeOwnerCmd = &cobra.Command{
	Use:   "change-owner <address>",
	Short: "Transfer relayer ownership (owner only)",
	Args:  cobra.ExactArgs(1),
	Run:   runRelayerChangeOwner,
}

var relayerRescueCmd = &cobra.Command{
	Use:   "rescue <token>",
	Short: "Recover tokens held by the relayer (owner only)",
	Args:  cobra.ExactArgs(1),
	Run:   runRelayerRescue,
}

func init() {
	rootCmd.AddCommand(relayerCmd)
	relayerCmd.AddCommand(relayerOwnerCmd)
	relayerCmd.AddCommand(relayerEventsCmd)
	relayerCmd.AddCommand(relayerChangeOwnerCmd)
	relayerCmd.AddCommand(relayerRescueCmd)

	relayerEventsCmd.Flags().Uint64Var(&eventsFromBlock, "from-block", 0, "First block to scan")
	relayerEventsCmd.Flags().Uint64Var(&eventsRange, "range", 5000, "Number of recent blocks to scan when --from-block is not set")
	relayerChangeOwnerCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
	relayerRescueCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
}

func runRelayerOwner(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	cfg := loadConfig()

	ctx, cancel := signalContext()
	defer cancel()

	rpc, err := dialEndpoint(ctx, cfg.Destination.RPCURL)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer rpc.Close()

	owner, err := wallet.RelayerOwner(ctx, rpc, cfg.Relayer)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(map[string]string{"relayer": cfg.Relayer.Hex(), "owner": owner.Hex()})
		return
	}

	fmt.Printf("\n  Relayer:  %s\n", color.CyanString(cfg.Relayer.Hex()))
	fmt.Printf("  Owner:    %s\n\n", color.YellowString(owner.Hex()))
}

func runRelayerEvents(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	cfg := loadConfig()

	ctx, cancel := signalContext()
	defer cancel()

	rpc, err := dialEndpoint(ctx, cfg.Destination.RPCURL)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer rpc.Close()

	from := eventsFromBlock
	if from == 0 {
		latest, err := rpc.BlockNumber(ctx)
		if err != nil {
			printError(fmt.Errorf("failed to get latest block: %w", err))
			os.Exit(1)
		}
		if latest > eventsRange {
			from = latest - eventsRange
		}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = fmt.Sprintf(" Scanning relayer events from block %d...", from)
		s.Start()
	}

	logs, err := rpc.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		Addresses: []common.Address{cfg.Relayer},
		Topics:    [][]common.Hash{contracts.RelayerEventTopics()},
	})
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(fmt.Errorf("failed to filter logs: %w", err))
		os.Exit(1)
	}

	var events []map[string]interface{}
	for _, log := range logs {
		event, err := contracts.ParseRelayerLog(log)
		if err != nil {
			continue
		}
		events = append(events, describeEvent(event))
	}

	if jsonOutput {
		printJSON(events)
		return
	}

	if len(events) == 0 {
		color.Yellow("\nNo relayer events found since block %d.\n", from)
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                              RELAYER EVENTS")
	fmt.Println(strings.Repeat("=", 90))
	for _, e := range events {
		switch e["event"] {
		case contracts.EventDepositProcessed:
			fmt.Printf("\n  #%-10v %s  %s USDC from chain %v\n", e["block"], color.GreenString("deposit"), e["amount"], e["origin_chain_id"])
			fmt.Printf("              user %s  referral %s\n", color.CyanString(e["user"].(string)), e["referral"])
		case contracts.EventOwnerSet:
			fmt.Printf("\n  #%-10v %s  %s -> %s\n", e["block"], color.YellowString("owner"), e["old_owner"], color.CyanString(e["new_owner"].(string)))
		}
		fmt.Printf("              tx %s\n", color.HiBlackString(e["tx_hash"].(string)))
	}
	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d events\n\n", len(events))
}

func describeEvent(event interface{}) map[string]interface{} {
	switch e := event.(type) {
	case *contracts.DepositProcessed:
		return map[string]interface{}{
			"event":           contracts.EventDepositProcessed,
			"block":           e.Raw.BlockNumber,
			"tx_hash":         e.Raw.TxHash.Hex(),
			"asset":           e.Asset.Hex(),
			"user":            e.User.Hex(),
			"amount":          amount.FromBaseUnits(e.Amount, chain.USDCDecimals),
			"origin_chain_id": e.OriginChainID.String(),
			"referral":        e.Referral.Hex(),
		}
	case *contracts.OwnerSet:
		return map[string]interface{}{
			"event":     contracts.EventOwnerSet,
			"block":     e.Raw.BlockNumber,
			"tx_hash":   e.Raw.TxHash.Hex(),
			"old_owner": e.OldOwner.Hex(),
			"new_owner": e.NewOwner.Hex(),
		}
	default:
		return map[string]interface{}{}
	}
}

func runRelayerChangeOwner(cmd *cobra.Command, args []string) {
	if !common.IsHexAddress(args[0]) {
		printError(fmt.Errorf("invalid address: %s", args[0]))
		os.Exit(1)
	}
	newOwner := common.HexToAddress(args[0])

	data, err := contracts.PackChangeOwner(newOwner)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	runRelayerAdmin(fmt.Sprintf("Transfer relayer ownership to %s?", newOwner.Hex()), data)
}

func runRelayerRescue(cmd *cobra.Command, args []string) {
	if !common.IsHexAddress(args[0]) {
		printError(fmt.Errorf("invalid token address: %s", args[0]))
		os.Exit(1)
	}
	token := common.HexToAddress(args[0])

	data, err := contracts.PackRescue(token)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	runRelayerAdmin(fmt.Sprintf("Rescue %s from the relayer?", token.Hex()), data)
}

// runRelayerAdmin sends an owner-only call to the relayer from the configured wallet
func runRelayerAdmin(prompt string, data []byte) {
	cfg := loadConfig()

	ctx, cancel := signalContext()
	defer cancel()

	w, err := dialWallet(ctx, cfg)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer w.Close()

	if !noConfirm && !confirm(prompt) {
		fmt.Println("\nCancelled.")
		os.Exit(0)
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Sending transaction..."
	s.Start()

	hash, err := sendRelayerCall(ctx, w, cfg, data)
	s.Stop()

	if err != nil {
		if hash != (common.Hash{}) {
			fmt.Printf("  Transaction: %s\n", color.HiBlackString(hash.Hex()))
		}
		printError(err)
		os.Exit(1)
	}

	color.Green("\n✓ Transaction confirmed!")
	fmt.Printf("  Transaction: %s\n\n", color.CyanString(hash.Hex()))
}

func sendRelayerCall(ctx context.Context, w *wallet.EVMWallet, cfg *config.Config, data []byte) (common.Hash, error) {
	if err := w.SwitchChain(ctx, cfg.Destination.Chain.ID); err != nil {
		return common.Hash{}, err
	}

	hash, err := w.SendTransaction(ctx, wallet.TxRequest{
		ChainID: cfg.Destination.Chain.ID,
		To:      cfg.Relayer,
		Value:   big.NewInt(0),
		Data:    data,
	})
	if err != nil {
		return common.Hash{}, err
	}

	if _, err := w.WaitForReceipt(ctx, hash); err != nil {
		return hash, err
	}
	return hash, nil
}
