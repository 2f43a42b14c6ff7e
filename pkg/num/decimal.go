package num

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Decimal renders the value as a human-readable decimal, dividing by 10^18.
func (z *Uint) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(z.BigInt(), -ScaleDecimals)
}

// DecimalString is Decimal().String(), e.g. "0.6" for 6*10^17.
func (z *Uint) DecimalString() string {
	return z.Decimal().String()
}

// UintFromDecimal scales d by 10^18 and truncates any digits beyond that.
func UintFromDecimal(d decimal.Decimal) (*Uint, error) {
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: negative value %s", ErrInvalidNumber, d.String())
	}
	return UintFromBig(d.Shift(ScaleDecimals).Truncate(0).BigInt())
}

// ParseFixed parses a decimal string such as "0.6" or "12" into its
// 10^18-scaled integer form.
func ParseFixed(s string) (*Uint, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidNumber, s, err)
	}
	return UintFromDecimal(d)
}

// MustFixed is ParseFixed for constants and tests.
func MustFixed(s string) *Uint {
	u, err := ParseFixed(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Fix returns n * d * 10^18, so Fix(12, "0.6") is 7.2 * 10^18.
func Fix(n uint64, d string) *Uint {
	dd, err := decimal.NewFromString(d)
	if err != nil {
		panic(err)
	}
	u, err := UintFromDecimal(dd.Mul(decimal.NewFromInt(int64(n))))
	if err != nil {
		panic(err)
	}
	return u
}
