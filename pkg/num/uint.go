package num

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	ErrDivisionByZero     = errors.New("division by zero")
	ErrInvalidNumber      = errors.New("invalid number")
)

// ScaleDecimals is the number of decimal places every fixed-point quantity carries.
const ScaleDecimals = 18

var scale = NewUint(1_000_000_000_000_000_000)

// Scale returns 10^18, the platform-wide fixed-point denominator.
func Scale() *Uint { return scale.Clone() }

// Uint is an unsigned 256-bit integer used for every cash amount, share
// amount, price (in ticks) and fee in the core.
//
// Values are treated as immutable by the package-level arithmetic helpers:
// Add, Sub, Mul, Div and MulDiv always allocate their result.
type Uint struct {
	u uint256.Int
}

// NewUint creates a new Uint with the value of the uint64 passed.
func NewUint(val uint64) *Uint {
	return &Uint{*uint256.NewInt(val)}
}

// Zero returns a fresh zero value.
func Zero() *Uint { return &Uint{} }

// UintFromBig converts a big.Int, failing on negative or >256-bit values.
func UintFromBig(b *big.Int) (*Uint, error) {
	if b == nil {
		return Zero(), nil
	}
	if b.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative value %s", ErrInvalidNumber, b.String())
	}
	u, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("%w: %s does not fit in 256 bits", ErrArithmeticOverflow, b.String())
	}
	return &Uint{*u}, nil
}

// UintFromString parses a base-10 integer string.
func UintFromString(s string) (*Uint, error) {
	z := &Uint{}
	if err := z.u.SetFromDecimal(s); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidNumber, s, err)
	}
	return z, nil
}

// MustUint parses a base-10 integer string and panics on failure.
// Intended for constants and tests.
func MustUint(s string) *Uint {
	u, err := UintFromString(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Clone returns an independent copy. Clone of nil is zero.
func (z *Uint) Clone() *Uint {
	if z == nil {
		return Zero()
	}
	return &Uint{z.u}
}

func (z *Uint) IsZero() bool { return z == nil || z.u.IsZero() }

// Cmp returns -1, 0 or +1. A nil receiver or argument compares as zero.
func (z *Uint) Cmp(o *Uint) int {
	return z.orZero().u.Cmp(&o.orZero().u)
}

func (z *Uint) EQ(o *Uint) bool  { return z.Cmp(o) == 0 }
func (z *Uint) LT(o *Uint) bool  { return z.Cmp(o) < 0 }
func (z *Uint) LTE(o *Uint) bool { return z.Cmp(o) <= 0 }
func (z *Uint) GT(o *Uint) bool  { return z.Cmp(o) > 0 }
func (z *Uint) GTE(o *Uint) bool { return z.Cmp(o) >= 0 }

// IsUint64 reports whether the value fits in a uint64.
func (z *Uint) IsUint64() bool { return z.orZero().u.IsUint64() }

// Uint64 returns the low 64 bits.
func (z *Uint) Uint64() uint64 { return z.orZero().u.Uint64() }

func (z *Uint) BigInt() *big.Int { return z.orZero().u.ToBig() }

// String renders the value in base 10.
func (z *Uint) String() string { return z.orZero().u.Dec() }

// Bytes32 returns the big-endian 32-byte representation, used for hashing.
func (z *Uint) Bytes32() [32]byte { return z.orZero().u.Bytes32() }

func (z *Uint) MarshalJSON() ([]byte, error) {
	return []byte(`"` + z.String() + `"`), nil
}

// UnmarshalJSON accepts either a quoted or a bare base-10 integer.
func (z *Uint) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		z.u.Clear()
		return nil
	}
	if err := z.u.SetFromDecimal(s); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidNumber, s, err)
	}
	return nil
}

func (z *Uint) MarshalText() ([]byte, error) { return []byte(z.String()), nil }

func (z *Uint) UnmarshalText(data []byte) error {
	if err := z.u.SetFromDecimal(string(data)); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidNumber, string(data), err)
	}
	return nil
}

func (z *Uint) orZero() *Uint {
	if z == nil {
		return &Uint{}
	}
	return z
}

// Min returns the smallest of the two numbers.
func Min(a, b *Uint) *Uint {
	if a.LT(b) {
		return a.Clone()
	}
	return b.Clone()
}

// Max returns the largest of the two numbers.
func Max(a, b *Uint) *Uint {
	if a.GT(b) {
		return a.Clone()
	}
	return b.Clone()
}

// Add returns a + b.
func Add(a, b *Uint) (*Uint, error) {
	z := &Uint{}
	if _, overflow := z.u.AddOverflow(&a.orZero().u, &b.orZero().u); overflow {
		return nil, fmt.Errorf("%w: %s + %s", ErrArithmeticOverflow, a, b)
	}
	return z, nil
}

// Sum adds all values, failing on the first overflow.
func Sum(vals ...*Uint) (*Uint, error) {
	total := Zero()
	for _, v := range vals {
		var err error
		if total, err = Add(total, v); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// Sub returns a - b. Underflow is reported as ErrArithmeticOverflow.
func Sub(a, b *Uint) (*Uint, error) {
	z := &Uint{}
	if _, underflow := z.u.SubOverflow(&a.orZero().u, &b.orZero().u); underflow {
		return nil, fmt.Errorf("%w: %s - %s underflows", ErrArithmeticOverflow, a, b)
	}
	return z, nil
}

// Mul returns a * b.
func Mul(a, b *Uint) (*Uint, error) {
	z := &Uint{}
	if _, overflow := z.u.MulOverflow(&a.orZero().u, &b.orZero().u); overflow {
		return nil, fmt.Errorf("%w: %s * %s", ErrArithmeticOverflow, a, b)
	}
	return z, nil
}

// Div returns a / b truncated toward zero.
func Div(a, b *Uint) (*Uint, error) {
	if b.IsZero() {
		return nil, fmt.Errorf("%w: %s / 0", ErrDivisionByZero, a)
	}
	z := &Uint{}
	z.u.Div(&a.orZero().u, &b.u)
	return z, nil
}

// MulDiv returns a * b / d truncated toward zero. The product is kept in a
// 512-bit intermediate so only a quotient wider than 256 bits fails.
func MulDiv(a, b, d *Uint) (*Uint, error) {
	if d.IsZero() {
		return nil, fmt.Errorf("%w: %s * %s / 0", ErrDivisionByZero, a, b)
	}
	z := &Uint{}
	if _, overflow := z.u.MulDivOverflow(&a.orZero().u, &b.orZero().u, &d.u); overflow {
		return nil, fmt.Errorf("%w: %s * %s / %s", ErrArithmeticOverflow, a, b, d)
	}
	return z, nil
}

// MulFixed returns a * b / 10^18.
func MulFixed(a, b *Uint) (*Uint, error) { return MulDiv(a, b, scale) }

// DivFixed returns a * 10^18 / b.
func DivFixed(a, b *Uint) (*Uint, error) { return MulDiv(a, scale, b) }
