package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDepositCommand(t *testing.T) {
	tests := []struct {
		in     string
		amount string
	}{
		{"deposit 10 USDC", "10"},
		{"10 usdc", "10"},
		{"  10   USDC ", "10"},
		{"2.5", "2.5"},
		{"Deposit 0.000001", "0.000001"},
		{".5 usdc.e", ".5"},
	}

	for _, tt := range tests {
		cmd, err := ParseDepositCommand(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.amount, cmd.Amount, tt.in)
		assert.Equal(t, DefaultToken, cmd.Token, tt.in)
	}
}

func TestParseDepositCommandErrors(t *testing.T) {
	for _, in := range []string{"", "deposit", "ten USDC", "10 ETH", "1.2.3", "-1 USDC", "10 USDC to BTC"} {
		_, err := ParseDepositCommand(in)
		assert.Error(t, err, in)
	}
}

func TestParseDepositArgs(t *testing.T) {
	cmd, err := ParseDepositArgs([]string{"10", "USDC"})
	require.NoError(t, err)
	assert.Equal(t, "10", cmd.Amount)

	_, err = ParseDepositArgs(nil)
	assert.Error(t, err)
}
