// Package units converts token amounts between base (integer) units and
// human-readable decimal amounts. SPL token amounts are stored on-chain as
// integers scaled by the mint's decimals; every monetary aggregate in this
// service applies the conversion exactly once.
package units

import "math"

// DefaultDecimals is the decimals of the vested token mint.
const DefaultDecimals uint8 = 9

// ToHuman converts a base-unit amount to its human-readable value.
func ToHuman(base uint64, decimals uint8) float64 {
	return float64(base) / math.Pow10(int(decimals))
}

// ToBase converts a human-readable amount to base units, rounding to the
// nearest integer unit.
func ToBase(human float64, decimals uint8) uint64 {
	if human <= 0 {
		return 0
	}
	return uint64(math.Round(human * math.Pow10(int(decimals))))
}
