// Package token defines the static token table injected through configuration.
// Each entry names an ERC20-style contract whose scalar read value (total supply)
// is sampled at resolved block heights.
package token

import (
	"fmt"
	"math/big"
	"strings"
)

const (
	// TotalSupplyCallData is the 4-byte selector for totalSupply(), used when a
	// token entry does not override call_data.
	TotalSupplyCallData = "0x18160ddd"
)

// Token describes a single contract read target.
type Token struct {
	Name     string `koanf:"name"`      // Unique name within the configured set
	Contract string `koanf:"contract"`  // Contract address (hex)
	CallData string `koanf:"call_data"` // Call selector override (hex), defaults to totalSupply()
	Decimals uint   `koanf:"decimals"`  // Decimal places applied at the presentation boundary
}

// Data returns the call data for the token, falling back to the totalSupply()
// selector when none is configured.
func (t Token) Data() string {
	if t.CallData == "" {
		return TotalSupplyCallData
	}
	return t.CallData
}

// Scale renders a raw integer magnitude as a decimal string scaled down by
// 10^decimals. The division is exact; no floating point is involved.
func (t Token) Scale(raw *big.Int) string {
	if raw == nil {
		return ""
	}
	if t.Decimals == 0 {
		return raw.String()
	}

	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(t.Decimals)), nil)
	scaled := new(big.Rat).SetFrac(raw, divisor)
	return scaled.FloatString(int(t.Decimals))
}

// ValidateSet checks that a configured token set is usable: every entry has a
// name and contract address, and names are unique within the set.
func ValidateSet(tokens []Token) error {
	if len(tokens) == 0 {
		return fmt.Errorf("no tokens configured")
	}

	seen := make(map[string]struct{}, len(tokens))
	for i, t := range tokens {
		if t.Name == "" {
			return fmt.Errorf("token at position %d has no name", i)
		}
		if t.Contract == "" {
			return fmt.Errorf("token %s has no contract address", t.Name)
		}
		if !strings.HasPrefix(t.Contract, "0x") {
			return fmt.Errorf("token %s contract address is not hex encoded", t.Name)
		}

		key := strings.ToLower(t.Name)
		if _, ok := seen[key]; ok {
			return fmt.Errorf("duplicate token name %s", t.Name)
		}
		seen[key] = struct{}{}
	}

	return nil
}
