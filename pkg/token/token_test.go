package token

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestData(t *testing.T) {
	require.Equal(t, TotalSupplyCallData, Token{Name: "USDC"}.Data())
	require.Equal(t, "0xdeadbeef", Token{Name: "USDC", CallData: "0xdeadbeef"}.Data())
}

func TestScale(t *testing.T) {
	tests := []struct {
		name     string
		decimals uint
		raw      string
		want     string
	}{
		{"six decimals", 6, "1000", "0.001000"},
		{"six decimals whole", 6, "2500000", "2.500000"},
		{"eighteen decimals", 18, "1000000000000000000", "1.000000000000000000"},
		{"zero decimals", 0, "12345", "12345"},
		{"zero value", 6, "0", "0.000000"},
		{"huge value", 6, "340282366920938463463374607431768211455", "340282366920938463463374.607432"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, ok := new(big.Int).SetString(tt.raw, 10)
			require.True(t, ok)

			tok := Token{Name: "T", Decimals: tt.decimals}
			require.Equal(t, tt.want, tok.Scale(raw))
		})
	}
}

func TestScaleNil(t *testing.T) {
	require.Equal(t, "", Token{Name: "T", Decimals: 6}.Scale(nil))
}

func TestValidateSet(t *testing.T) {
	valid := []Token{
		{Name: "USDC", Contract: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Decimals: 6},
		{Name: "USDT", Contract: "0xdac17f958d2ee523a2206206994597c13d831ec7", Decimals: 6},
	}
	require.NoError(t, ValidateSet(valid))

	require.Error(t, ValidateSet(nil))
	require.Error(t, ValidateSet([]Token{{Contract: "0xabc"}}), "missing name")
	require.Error(t, ValidateSet([]Token{{Name: "USDC"}}), "missing contract")
	require.Error(t, ValidateSet([]Token{{Name: "USDC", Contract: "a0b86991"}}), "contract without 0x prefix")

	dup := []Token{
		{Name: "USDC", Contract: "0xaaa"},
		{Name: "usdc", Contract: "0xbbb"},
	}
	require.Error(t, ValidateSet(dup), "names are case-insensitively unique")
}
