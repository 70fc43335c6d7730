package cmd

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"relay-deposit/config"
	"relay-deposit/pkg/bridge"
	"relay-deposit/pkg/client"
	"relay-deposit/pkg/history"
	"relay-deposit/pkg/parser"
	"relay-deposit/pkg/wallet"
)

var (
	noConfirm     bool
	dryRun        bool
	watchBalances bool
)

var depositCmd = &cobra.Command{
	Use:   "deposit <amount> [USDC]",
	Short: "Bridge USDC and deposit it into the relayer",
	Long: `Bridge USDC from the origin chain (Berachain) to the destination chain
(Ethereum) and deposit it into the relayer contract in one Relay request.

The quote asks Relay to run two transactions on the destination chain:
  1. transfer the USDC to the relayer
  2. call the relayer deposit function crediting your address

The wallet is switched to the origin chain first if needed.

Examples:
  relay-deposit deposit 10 USDC
  relay-deposit deposit 2.5 --dry-run
  relay-deposit deposit 100 --yes --watch-balances`,
	Args: cobra.RangeArgs(1, 2),
	Run:  runDeposit,
}

func init() {
	rootCmd.AddCommand(depositCmd)

	depositCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
	depositCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Build the deposit and fetch a quote without sending anything")
	depositCmd.Flags().BoolVar(&watchBalances, "watch-balances", false, "Keep watching origin balances after the deposit")
}

func runDeposit(cmd *cobra.Command, args []string) {
	depositArgs, err := parser.ParseDepositArgs(args)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	cfg := loadConfig()

	ctx, cancel := signalContext()
	defer cancel()

	// without a key the controller runs with no wallet and does nothing
	var w wallet.Wallet
	evmWallet, err := dialWallet(ctx, cfg)
	switch {
	case errors.Is(err, config.ErrMissingPrivateKey):
	case err != nil:
		printError(err)
		os.Exit(1)
	default:
		defer evmWallet.Close()
		w = evmWallet
	}

	controller := bridge.NewController(bridge.Config{
		Origin:      cfg.Origin.Chain,
		Destination: cfg.Destination.Chain,
		Relayer:     cfg.Relayer,
	}, w, newRelayClient(cfg))

	manager, err := history.NewManager(cfg.HistoryFile)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	controller.SetRecorder(manager)

	if w != nil && !jsonOutput {
		displayDepositPlan(controller, w, depositArgs.Amount)
		if !dryRun && !noConfirm && !confirm("Proceed with deposit?") {
			fmt.Println("\nDeposit cancelled.")
			os.Exit(0)
		}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		controller.OnProgress(func(msg string) {
			setSuffix(s, " "+msg+"...")
		})
		controller.OnStepProgress(func(p client.Progress) {
			setSuffix(s, " "+describeProgress(p))
		})
		s.Suffix = " Preparing deposit..."
		s.Start()
	}

	var outcome *bridge.Outcome
	if dryRun {
		outcome, err = controller.Preview(ctx, depositArgs.Amount)
	} else {
		outcome, err = controller.Deposit(ctx, depositArgs.Amount)
	}
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		if outcome != nil && outcome.Result != nil && len(outcome.Result.TxHashes) > 0 {
			color.Yellow("\nTransactions were sent before the failure:")
			for _, hash := range outcome.Result.TxHashes {
				fmt.Printf("  %s\n", color.HiBlackString(hash.Hex()))
			}
			fmt.Println("\nCheck progress with:")
			color.Cyan("  relay-deposit history refresh\n")
		}
		printError(err)
		os.Exit(1)
	}

	if outcome == nil {
		color.Yellow("\nNo wallet configured. Set RELAY_DEPOSIT_WALLET_PRIVATE_KEY to make deposits.\n")
		return
	}

	if jsonOutput {
		printJSON(depositOutput(outcome, dryRun))
		return
	}

	displayDepositQuote(outcome.Quote, depositArgs.Amount)

	if dryRun {
		fmt.Println("Dry run: nothing was sent.")
		return
	}

	displayDepositResult(outcome)

	if watchBalances {
		account := w.Address()
		fmt.Println("\nWatching origin balances. Press Ctrl+C to stop.")
		if err := runBalanceWatch(ctx, cfg, account); err != nil && ctx.Err() == nil {
			printError(err)
			os.Exit(1)
		}
	}
}

func describeProgress(p client.Progress) string {
	label := p.Step.Description
	if label == "" {
		label = p.Step.Action
	}
	if label == "" {
		label = p.Step.ID
	}

	switch p.Status {
	case client.ItemStatusIncomplete:
		return fmt.Sprintf("[%d/%d] %s: waiting for signature...", p.StepIndex+1, p.StepCount, label)
	case client.StatusPending:
		return fmt.Sprintf("[%d/%d] %s: confirming %s...", p.StepIndex+1, p.StepCount, label, shortHash(p.TxHash.Hex()))
	default:
		return fmt.Sprintf("[%d/%d] %s: done", p.StepIndex+1, p.StepCount, label)
	}
}

func setSuffix(s *spinner.Spinner, suffix string) {
	s.Lock()
	s.Suffix = suffix
	s.Unlock()
}

func shortHash(hash string) string {
	if len(hash) <= 14 {
		return hash
	}
	return hash[:10] + "..." + hash[len(hash)-4:]
}

func displayDepositPlan(controller *bridge.Controller, w wallet.Wallet, amount string) {
	route := controller.Config()

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                    DEPOSIT")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Amount:            %s %s\n", amount, color.YellowString("USDC"))
	fmt.Printf("  From:              %s\n", route.Origin.DisplayName)
	fmt.Printf("  To:                %s\n", route.Destination.DisplayName)
	fmt.Printf("  Relayer:           %s\n", color.CyanString(route.Relayer.Hex()))
	fmt.Printf("  Credited Account:  %s\n", color.CyanString(w.Address().Hex()))

	fmt.Println("\n" + strings.Repeat("=", 60))
}

func displayDepositQuote(quote *client.Quote, amount string) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                   DEPOSIT QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Request ID:        %s\n", color.CyanString(quote.RequestID()))
	fmt.Printf("  Deposit:           %s %s\n", amount, color.YellowString("USDC"))

	if d := quote.Details; d != nil {
		if d.CurrencyIn != nil {
			fmt.Printf("  You Pay:           %s %s\n", d.CurrencyIn.AmountFormatted, color.YellowString(currencySymbol(d.CurrencyIn)))
		}
		if d.CurrencyOut != nil {
			fmt.Printf("  Relayer Receives:  %s %s\n", d.CurrencyOut.AmountFormatted, color.YellowString(currencySymbol(d.CurrencyOut)))
		}
		if d.TimeEstimate > 0 {
			fmt.Printf("  Estimated Time:    %.0f seconds\n", d.TimeEstimate)
		}
	}

	if len(quote.Fees) > 0 {
		names := make([]string, 0, len(quote.Fees))
		for name := range quote.Fees {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Println("\n  Fees:")
		for _, name := range names {
			fee := quote.Fees[name]
			if fee.AmountFormatted == "" {
				continue
			}
			fmt.Printf("    %-16s %s %s\n", name, fee.AmountFormatted, currencySymbol(&fee))
		}
	}

	fmt.Printf("\n  Steps:\n")
	for i, step := range quote.Steps {
		fmt.Printf("    %d. %s (%s)\n", i+1, step.Description, step.Kind)
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func currencySymbol(c *client.CurrencyAmount) string {
	if c.Currency == nil {
		return ""
	}
	return c.Currency.Symbol
}

func displayDepositResult(outcome *bridge.Outcome) {
	color.Green("✓ Deposit completed!")
	for _, hash := range outcome.Result.TxHashes {
		fmt.Printf("  Transaction: %s\n", color.CyanString(hash.Hex()))
	}

	fmt.Println("\nYou can check the request status using:")
	color.Cyan("  relay-deposit status %s\n", outcome.Result.RequestID)
}

func depositOutput(outcome *bridge.Outcome, dryRun bool) map[string]interface{} {
	output := map[string]interface{}{
		"amount":            outcome.Amount,
		"amount_base_units": outcome.Request.Amount,
		"user":              outcome.Request.User.Hex(),
		"origin_chain_id":   outcome.Request.OriginChainID,
		"dest_chain_id":     outcome.Request.DestinationChainID,
		"request_id":        outcome.Quote.RequestID(),
		"status":            "quote_generated",
	}
	if dryRun {
		output["quote"] = outcome.Quote
		return output
	}

	hashes := make([]string, 0, len(outcome.Result.TxHashes))
	for _, hash := range outcome.Result.TxHashes {
		hashes = append(hashes, hash.Hex())
	}
	output["tx_hashes"] = hashes
	output["status"] = outcome.Result.Status
	return output
}
