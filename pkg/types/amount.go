package types

import (
	"fmt"
	"strconv"
	"strings"
)

// COIN is the number of base units per whole coin.
const COIN = 1_000_000

// MaxMoney is the maximum representable supply, in base units:
// 2.04e9 coins.
const MaxMoney int64 = 2_040_000_000 * COIN

// Amount is a signed count of base units (1 coin = 1e6 base units).
// Negative amounts represent a fee or debit in contexts that track deltas.
type Amount int64

// Valid reports whether the amount is within the representable supply.
func (a Amount) Valid() bool {
	return a >= 0 && int64(a) <= MaxMoney
}

// String renders the amount as a decimal coin value with up to 6 digits
// of fractional precision, trailing zeros trimmed.
func (a Amount) String() string {
	neg := a < 0
	v := int64(a)
	if neg {
		v = -v
	}
	whole := v / COIN
	frac := v % COIN
	s := fmt.Sprintf("%d.%06d", whole, frac)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" {
		s = "0"
	}
	if neg {
		s = "-" + s
	}
	return s
}

// ParseAmount parses an exact decimal coin string into an Amount, rejecting
// any string that would lose precision (more than 6 fractional digits) or
// whose value would exceed MaxMoney.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("amount: empty string")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	parts := strings.SplitN(s, ".", 2)
	wholeStr := parts[0]
	if wholeStr == "" {
		wholeStr = "0"
	}
	whole, err := strconv.ParseInt(wholeStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount: invalid integer part: %w", err)
	}
	var frac int64
	if len(parts) == 2 {
		fracStr := parts[1]
		if len(fracStr) > 6 {
			return 0, fmt.Errorf("amount: %q loses precision beyond 6 fractional digits", s)
		}
		for len(fracStr) < 6 {
			fracStr += "0"
		}
		frac, err = strconv.ParseInt(fracStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("amount: invalid fractional part: %w", err)
		}
	}
	if whole > MaxMoney/COIN {
		return 0, fmt.Errorf("amount: %q exceeds MAX_MONEY", s)
	}
	v := whole*COIN + frac
	if v > MaxMoney {
		return 0, fmt.Errorf("amount: %q exceeds MAX_MONEY", s)
	}
	if neg {
		v = -v
	}
	return Amount(v), nil
}
