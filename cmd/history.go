package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"relay-deposit/pkg/chain"
	"relay-deposit/pkg/history"
)

var (
	historyStatusFilter string
	historyWatch        bool
	historyInterval     int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show deposits made from this machine",
	Long: `Show and refresh the local history of deposits.

Every executed deposit is recorded in ~/.relay-deposit-history.json together
with its Relay request id, so its outcome can be checked later.

Examples:
  relay-deposit history
  relay-deposit history view 1b4e28ba
  relay-deposit history refresh`,
	Run: runHistoryList,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded deposits",
	Long: `Display all recorded deposits, newest first.

Examples:
  relay-deposit history list
  relay-deposit history list --status submitted
  relay-deposit history list --json`,
	Run: runHistoryList,
}

var historyViewCmd = &cobra.Command{
	Use:   "view <id>",
	Short: "View details of a recorded deposit",
	Long: `Display a recorded deposit. A unique id prefix is enough.

With --watch the deposit is checked against Relay until it completes or fails.

Examples:
  relay-deposit history view 1b4e28ba
  relay-deposit history view 1b4e28ba --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run:  runHistoryView,
}

var historyRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Update unfinished deposits from Relay",
	Long: `Ask Relay for the status of every unfinished deposit from the last 24 hours
and update the local history.

Examples:
  relay-deposit history refresh`,
	Args: cobra.NoArgs,
	Run:  runHistoryRefresh,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyViewCmd)
	historyCmd.AddCommand(historyRefreshCmd)

	historyCmd.PersistentFlags().StringVar(&historyStatusFilter, "status", "", "Filter by status (pending, submitted, completed, failed)")
	historyViewCmd.Flags().BoolVarP(&historyWatch, "watch", "w", false, "Follow the deposit until it settles")
	historyViewCmd.Flags().IntVar(&historyInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func openHistory() *history.Manager {
	cfg := loadConfig()
	manager, err := history.NewManager(cfg.HistoryFile)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	return manager
}

func runHistoryList(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	manager := openHistory()

	var records []*history.DepositRecord
	for _, r := range manager.List() {
		if historyStatusFilter == "" || string(r.Status) == historyStatusFilter {
			records = append(records, r)
		}
	}

	if jsonOutput {
		summaries := make([]*history.DepositSummary, len(records))
		for i, r := range records {
			summaries[i] = r.ToSummary()
		}
		printJSON(summaries)
		return
	}

	if len(records) == 0 {
		color.Yellow("No deposits recorded.\n")
		fmt.Println("\nMake a deposit with:")
		color.Cyan("  relay-deposit deposit <amount> USDC\n")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 100))
	color.Green("                                          DEPOSITS")
	fmt.Println(strings.Repeat("=", 100))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nID\tCREATED\tAMOUNT\tROUTE\tREQUEST\tSTATUS")
	fmt.Fprintln(w, strings.Repeat("-", 100))

	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s USDC\t%s\t%s\t%s\n",
			r.ID[:8],
			r.Created.Format("2006-01-02 15:04"),
			r.Amount,
			routeName(r),
			truncateString(r.RequestID, 18),
			getDepositStatusColor(r.Status))
	}

	w.Flush()
	fmt.Println("\n" + strings.Repeat("=", 100) + "\n")
}

func runHistoryView(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	manager := openHistory()

	record, err := manager.Get(args[0])
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if historyWatch && !record.Status.IsTerminal() && record.RequestID != "" {
		record = watchRecord(manager, record, jsonOutput)
	}

	if jsonOutput {
		printJSON(record)
		return
	}

	displayRecord(record)
}

func runHistoryRefresh(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	cfg := loadConfig()

	manager, err := history.NewManager(cfg.HistoryFile)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	ctx, cancel := signalContext()
	defer cancel()

	tracker := history.NewTracker(manager, newRelayClient(cfg))

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Refreshing deposit status..."
		s.Start()
	}

	updated, err := tracker.Refresh(ctx)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"updated": updated})
		return
	}

	printSuccess(fmt.Sprintf("Updated %d deposit(s).", updated))
}

// watchRecord waits for a deposit to settle and returns its latest state
func watchRecord(manager *history.Manager, record *history.DepositRecord, quiet bool) *history.DepositRecord {
	if historyInterval <= 0 {
		printError(fmt.Errorf("--interval must be positive"))
		os.Exit(1)
	}

	cfg := loadConfig()
	tracker := history.NewTracker(manager, newRelayClient(cfg))

	ctx, cancel := signalContext()
	defer cancel()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !quiet {
		s.Suffix = fmt.Sprintf(" Waiting for deposit %s to settle (every %ds, Ctrl+C to stop)...", record.ID[:8], historyInterval)
		s.Start()
	}

	settled, err := tracker.Wait(ctx, record.ID, time.Duration(historyInterval)*time.Second)
	if !quiet {
		s.Stop()
	}
	if err != nil && !quiet {
		color.Yellow("Stopped watching: %v", err)
	}
	if settled != nil {
		return settled
	}
	if latest, err := manager.Get(record.ID); err == nil {
		return latest
	}
	return record
}

func displayRecord(r *history.DepositRecord) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                         DEPOSIT")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  ID:              %s\n", color.CyanString(r.ID))
	fmt.Printf("  Created:         %s\n", r.Created.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Amount:          %s USDC (%s base units)\n", r.Amount, r.AmountBaseUnits)
	fmt.Printf("  Route:           %s\n", routeName(r))
	fmt.Printf("  Account:         %s\n", r.User)
	if r.Relayer != "" {
		fmt.Printf("  Relayer:         %s\n", r.Relayer)
	}
	if r.RequestID != "" {
		fmt.Printf("  Request ID:      %s\n", color.CyanString(r.RequestID))
	}
	fmt.Printf("  Status:          %s\n", getDepositStatusColor(r.Status))
	if r.LastStatus != "" {
		fmt.Printf("  Relay Status:    %s\n", getColoredStatus(r.LastStatus))
	}
	if r.CompletionTime != nil {
		fmt.Printf("  Completed:       %s\n", r.CompletionTime.Format("2006-01-02 15:04:05"))
	}
	if r.Error != "" {
		fmt.Printf("  Error:           %s\n", color.RedString(r.Error))
	}
	for _, hash := range r.TxHashes {
		fmt.Printf("  Tx:              %s\n", color.HiBlackString(hash))
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func routeName(r *history.DepositRecord) string {
	name := func(id uint64) string {
		if c, err := chain.ByID(id); err == nil {
			return c.DisplayName
		}
		return fmt.Sprintf("%d", id)
	}
	return name(r.OriginChainID) + " -> " + name(r.DestinationChainID)
}

func getDepositStatusColor(status history.DepositStatus) string {
	switch status {
	case history.StatusCompleted:
		return color.GreenString(string(status))
	case history.StatusSubmitted:
		return color.CyanString(string(status))
	case history.StatusPending:
		return color.YellowString(string(status))
	case history.StatusFailed:
		return color.RedString(string(status))
	default:
		return string(status)
	}
}
