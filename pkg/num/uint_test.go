package num

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulDivTruncates(t *testing.T) {
	tests := []struct {
		name    string
		a, b, d string
		want    string
	}{
		{"exact", "12", "600000000000000000", "1000000000000000000", "7"},
		{"truncates toward zero", "10", "1", "3", "3"},
		{"fee split", "121200000000000000", "600000000000000000", "1000000000000000000", "72720000000000000"},
		{"wide intermediate", "40000000000000000000", "1000000000000000000000000", "1000000000000000000", "40000000000000000000000000"},
		{"zero operand", "0", "123", "7", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MulDiv(MustUint(tt.a), MustUint(tt.b), MustUint(tt.d))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestMulDivOverflowAndZeroDivisor(t *testing.T) {
	maxU := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	m, err := UintFromBig(maxU)
	require.NoError(t, err)

	_, err = MulDiv(m, NewUint(2), NewUint(1))
	assert.ErrorIs(t, err, ErrArithmeticOverflow)

	// product exceeds 256 bits but the quotient fits
	got, err := MulDiv(m, NewUint(4), NewUint(8))
	require.NoError(t, err)
	want := new(big.Int).Div(new(big.Int).Mul(maxU, big.NewInt(4)), big.NewInt(8))
	assert.Equal(t, want.String(), got.String())

	_, err = MulDiv(NewUint(1), NewUint(1), Zero())
	assert.ErrorIs(t, err, ErrDivisionByZero)

	_, err = Div(NewUint(1), nil)
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestCheckedArithmetic(t *testing.T) {
	maxU, err := UintFromBig(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)))
	require.NoError(t, err)

	_, err = Add(maxU, NewUint(1))
	assert.ErrorIs(t, err, ErrArithmeticOverflow)

	_, err = Sub(NewUint(1), NewUint(2))
	assert.ErrorIs(t, err, ErrArithmeticOverflow)

	_, err = Mul(maxU, NewUint(2))
	assert.ErrorIs(t, err, ErrArithmeticOverflow)

	sum, err := Sum(NewUint(1), NewUint(2), NewUint(3))
	require.NoError(t, err)
	assert.Equal(t, uint64(6), sum.Uint64())

	q, err := Div(NewUint(7), NewUint(2))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), q.Uint64())
}

func TestArithmeticDoesNotAliasOperands(t *testing.T) {
	a := NewUint(5)
	b := NewUint(3)
	s, err := Sub(a, b)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), s.Uint64())
	assert.Equal(t, uint64(5), a.Uint64())

	m := Min(a, b)
	m2, _ := Add(m, NewUint(1))
	assert.Equal(t, uint64(3), b.Uint64())
	assert.Equal(t, uint64(4), m2.Uint64())
}

func TestNilIsZero(t *testing.T) {
	var n *Uint
	assert.True(t, n.IsZero())
	assert.Equal(t, "0", n.String())
	assert.True(t, n.LT(NewUint(1)))
	assert.True(t, n.EQ(Zero()))
}

func TestFixedParsing(t *testing.T) {
	assert.Equal(t, "600000000000000000", MustFixed("0.6").String())
	assert.Equal(t, "12000000000000000000", MustFixed("12").String())
	assert.Equal(t, "7200000000000000000", Fix(12, "0.6").String())
	assert.Equal(t, "121200000000000000", Fix(12, "0.0101").String())
	assert.Equal(t, "0.6", MustFixed("0.6").DecimalString())

	_, err := ParseFixed("-1")
	assert.ErrorIs(t, err, ErrInvalidNumber)
	_, err = ParseFixed("abc")
	assert.ErrorIs(t, err, ErrInvalidNumber)

	// digits beyond 18 decimals are truncated
	assert.Equal(t, "1", MustFixed("0.0000000000000000019").String())

	p, err := MulFixed(MustFixed("0.6"), MustFixed("12"))
	require.NoError(t, err)
	assert.Equal(t, MustFixed("7.2").String(), p.String())
}

func TestJSONRoundTripAsString(t *testing.T) {
	type wrapper struct {
		Amount *Uint `json:"amount"`
	}
	out, err := json.Marshal(wrapper{Amount: MustUint("40000000000000000000")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"40000000000000000000"}`, string(out))

	var in wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"amount":"123"}`), &in))
	assert.Equal(t, uint64(123), in.Amount.Uint64())
	require.NoError(t, json.Unmarshal([]byte(`{"amount":456}`), &in))
	assert.Equal(t, uint64(456), in.Amount.Uint64())
	assert.Error(t, json.Unmarshal([]byte(`{"amount":"x1"}`), &in))
}
