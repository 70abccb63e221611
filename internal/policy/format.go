package policy

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// TokenDecimals is the precision of the base currency.
const TokenDecimals = 18

// FormatAmount renders base units as a fixed-point string with places
// fractional digits, rounding half away from zero.
func FormatAmount(v *big.Int, places int32) string {
	if v == nil {
		return ""
	}
	return decimal.NewFromBigInt(v, -TokenDecimals).StringFixed(places)
}

// ParseAmount converts a human amount ("12.5") into base units. Digits beyond
// the token precision are truncated.
func ParseAmount(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return d.Shift(TokenDecimals).Truncate(0).BigInt(), nil
}

// FormatDeadline renders a deadline in RFC 3339 UTC; zero times render empty.
func FormatDeadline(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
