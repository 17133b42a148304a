// Package fixedmath holds the saturating integer arithmetic used for every ledger
// counter and ratio. No function in this package panics on overflow or on a zero
// divisor; results clamp to the bounds of the target width instead.
package fixedmath

import (
	"math"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
)

const (
	// BpsDenominator is 100% in basis points.
	BpsDenominator uint64 = 10_000
	// PriceScale is the fixed-point scale of oracle prices (1e9).
	PriceScale uint64 = 1_000_000_000
	// USDScale is the decimal scale of USD-denominated amounts (1e6).
	USDScale uint64 = 1_000_000
	// LamportScale is the decimal scale of native SOL amounts (1e9).
	LamportScale uint64 = 1_000_000_000
)

// SatAdd returns a+b clamped to math.MaxUint64.
func SatAdd(a, b uint64) uint64 {
	s := a + b
	if s < a {
		return math.MaxUint64
	}
	return s
}

// SatSub returns a-b clamped to zero.
func SatSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// SatInc returns v+1 clamped to math.MaxUint64.
func SatInc(v uint64) uint64 {
	return SatAdd(v, 1)
}

// MulDiv computes a*b/d in a widened intermediate and floors the result.
// A zero divisor yields zero; a quotient above 64 bits yields math.MaxUint64.
func MulDiv(a, b, d uint64) uint64 {
	if d == 0 {
		return 0
	}
	q := sdkmath.NewUint(a).Mul(sdkmath.NewUint(b)).Quo(sdkmath.NewUint(d))
	return clampUint64(q)
}

// ToUint16 clamps v to math.MaxUint16.
func ToUint16(v uint64) uint16 {
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v)
}

// SatAdd16 returns a+b clamped to math.MaxUint16.
func SatAdd16(a, b uint16) uint16 {
	return ToUint16(uint64(a) + uint64(b))
}

func clampUint64(u sdkmath.Uint) uint64 {
	b := u.BigInt()
	if !b.IsUint64() {
		return math.MaxUint64
	}
	return b.Uint64()
}

// USD renders a 1e6-scaled amount as a dollar string with cents.
func USD(amount uint64) string {
	return "$" + scaled(amount, 6).StringFixed(2)
}

// SOL renders a 1e9-scaled amount in whole SOL.
func SOL(amount uint64) string {
	return scaled(amount, 9).StringFixed(4) + " SOL"
}

// PriceUSD renders a 1e9-scaled oracle price.
func PriceUSD(price uint64) string {
	return "$" + scaled(price, 9).StringFixed(4)
}

// Percent renders basis points as a percentage.
func Percent(bps uint16) string {
	return scaled(uint64(bps), 2).StringFixed(2) + "%"
}

func scaled(v uint64, exp int32) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -exp)
}
