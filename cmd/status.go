package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"relay-deposit/pkg/client"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <request-id>",
	Short: "Check the status of a deposit request",
	Long: `Check the execution status of a Relay request by its request id.

Examples:
  relay-deposit status 0x1234...abcd
  relay-deposit status 0x1234...abcd --watch
  relay-deposit status 0x1234...abcd --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates until the request is final")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) {
	requestID := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg := loadConfig()
	apiClient := newRelayClient(cfg)

	ctx, cancel := signalContext()
	defer cancel()

	if watchStatus {
		watchRequestStatus(ctx, apiClient, requestID, jsonOutput)
	} else {
		checkRequestStatus(ctx, apiClient, requestID, jsonOutput)
	}
}

func checkRequestStatus(ctx context.Context, apiClient *client.RelayClient, requestID string, jsonOutput bool) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Checking request status..."
		s.Start()
	}

	status, err := apiClient.GetStatus(ctx, requestID)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(status)
	} else {
		displayStatus(status, requestID)
	}
}

func watchRequestStatus(ctx context.Context, apiClient *client.RelayClient, requestID string, jsonOutput bool) {
	if jsonOutput {
		fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
		os.Exit(1)
	}

	fmt.Printf("\nWatching request status (Request ID: %s)\n", color.CyanString(requestID))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	for {
		if checkAndDisplayStatus(ctx, apiClient, requestID) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// checkAndDisplayStatus returns true once the request is final
func checkAndDisplayStatus(ctx context.Context, apiClient *client.RelayClient, requestID string) bool {
	status, err := apiClient.GetStatus(ctx, requestID)
	if err != nil {
		color.Red("Error: %v", err)
		return false
	}

	displayStatus(status, requestID)
	return status.IsTerminal()
}

func displayStatus(status *client.StatusResponse, requestID string) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                       REQUEST STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Request ID:      %s\n", color.CyanString(requestID))
	fmt.Printf("  Status:          %s\n", getColoredStatus(status.Status))
	if status.UpdatedAt > 0 {
		fmt.Printf("  Last Updated:    %s\n", time.UnixMilli(status.UpdatedAt).Format("2006-01-02 15:04:05"))
	}
	if status.Details != "" {
		fmt.Printf("  Details:         %s\n", status.Details)
	}

	for _, hash := range status.InTxHashes {
		fmt.Printf("  Origin Tx:       %s\n", color.HiBlackString(hash))
	}
	for _, hash := range status.TxHashes {
		fmt.Printf("  Destination Tx:  %s\n", color.HiBlackString(hash))
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func getColoredStatus(status string) string {
	status = strings.ToUpper(status)

	switch strings.ToLower(status) {
	case client.StatusSuccess:
		return color.GreenString(status)
	case client.StatusWaiting, client.StatusPending:
		return color.YellowString(status)
	case client.StatusFailure, client.StatusRefund:
		return color.RedString(status)
	default:
		return status
	}
}
