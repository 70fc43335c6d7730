package parser

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultToken is the only asset a deposit accepts
const DefaultToken = "USDC"

// DepositCommand is a parsed deposit command
type DepositCommand struct {
	Amount string
	Token  string
}

var depositPattern = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)(?:\s+([A-Z0-9.]+))?$`)

// ParseDepositCommand parses a deposit command
// Examples:
//   - "deposit 10 USDC"
//   - "10 usdc"
//   - "2.5"
func ParseDepositCommand(command string) (*DepositCommand, error) {
	command = strings.TrimSpace(strings.ToUpper(command))
	command = strings.TrimSpace(strings.TrimPrefix(command, "DEPOSIT"))
	command = strings.Join(strings.Fields(command), " ")

	matches := depositPattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid deposit command format. Expected: 'deposit <amount> [USDC]' (e.g., 'deposit 10 USDC')")
	}

	token := DefaultToken
	if matches[2] != "" {
		token = NormalizeTokenSymbol(matches[2])
	}
	if token != DefaultToken {
		return nil, fmt.Errorf("unsupported token %s: only %s can be deposited", token, DefaultToken)
	}

	return &DepositCommand{
		Amount: matches[1],
		Token:  token,
	}, nil
}

// ParseDepositArgs parses the positional arguments of the deposit command
func ParseDepositArgs(args []string) (*DepositCommand, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("amount is required")
	}
	return ParseDepositCommand(strings.Join(args, " "))
}

// NormalizeTokenSymbol normalizes token symbols to standard format
func NormalizeTokenSymbol(symbol string) string {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))

	aliases := map[string]string{
		"USDC.E": "USDC",
		"USDCE":  "USDC",
	}

	if normalized, exists := aliases[symbol]; exists {
		return normalized
	}

	return symbol
}
