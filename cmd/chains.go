package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"relay-deposit/pkg/client"
)

var filterName string

var chainsCmd = &cobra.Command{
	Use:     "list-chains",
	Aliases: []string{"chains", "ls"},
	Short:   "List chains supported by Relay",
	Long: `List all chains supported by the Relay API with their USDC contracts.

You can filter chains by name.

Examples:
  relay-deposit list-chains
  relay-deposit list-chains --name bera`,
	Run: runListChains,
}

func init() {
	rootCmd.AddCommand(chainsCmd)

	chainsCmd.Flags().StringVar(&filterName, "name", "", "Filter by chain name")
}

func runListChains(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg := loadConfig()
	apiClient := newRelayClient(cfg)

	ctx, cancel := signalContext()
	defer cancel()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching supported chains..."
		s.Start()
	}

	chains, err := apiClient.GetChains(ctx)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	filtered := filterChains(chains, filterName)

	if jsonOutput {
		printJSON(filtered)
	} else {
		displayChains(filtered)
	}
}

func filterChains(chains []client.ChainInfo, name string) []client.ChainInfo {
	if name == "" {
		return chains
	}

	name = strings.ToLower(name)
	var filtered []client.ChainInfo
	for _, c := range chains {
		if strings.Contains(strings.ToLower(c.Name), name) || strings.Contains(strings.ToLower(c.DisplayName), name) {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

func usdcOf(c client.ChainInfo) string {
	for _, token := range c.ERC20Currencies {
		if strings.EqualFold(token.Symbol, "USDC") || strings.EqualFold(token.Symbol, "USDC.e") {
			return token.Address
		}
	}
	return ""
}

func displayChains(chains []client.ChainInfo) {
	if len(chains) == 0 {
		fmt.Println("\nNo chains found matching the criteria.")
		return
	}

	sort.Slice(chains, func(i, j int) bool {
		return chains[i].ID < chains[j].ID
	})

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                            SUPPORTED CHAINS")
	fmt.Println(strings.Repeat("=", 90))

	for _, c := range chains {
		native := ""
		if c.Currency != nil {
			native = c.Currency.Symbol
		}

		state := color.GreenString("enabled")
		if c.Disabled || !c.DepositEnabled {
			state = color.RedString("disabled")
		}

		usdc := usdcOf(c)
		if usdc == "" {
			usdc = "-"
		}

		fmt.Printf("  %-10d  %-20s  %-6s  %-8s  %s\n",
			c.ID,
			color.CyanString(truncateString(c.DisplayName, 20)),
			color.YellowString(native),
			state,
			color.HiBlackString(usdc))
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d chains\n\n", len(chains))
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
