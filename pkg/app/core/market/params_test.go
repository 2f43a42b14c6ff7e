package market

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/predictcore/pkg/num"
)

func TestParamsTemplates(t *testing.T) {
	creator := common.HexToAddress("0xc0de")

	tests := []struct {
		name     string
		kind     Kind
		outcomes uint8
		ticks    *num.Uint
		wantOut  uint8
		wantTick string
	}{
		{"binary", Binary, 0, nil, 2, "10000"},
		{"default kind", "", 0, nil, 2, "10000"},
		{"categorical", Categorical, 5, nil, 5, "10000"},
		{"scalar", Scalar, 0, num.NewUint(40000), 2, "40000"},
		{"scalar without range", "SCALAR", 0, nil, 2, "10000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParamsFor(tt.kind, tt.name, creator, tt.outcomes, tt.ticks)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOut, p.NumOutcomes)
			assert.Equal(t, tt.wantTick, p.NumTicks.String())
			assert.Equal(t, "100", p.CreatorFeeDivisor.String())
			assert.Equal(t, "10000", p.ReportingFeeDivisor.String())

			m, err := NewMarket(common.HexToAddress("0xabc"), p)
			require.NoError(t, err)
			assert.Equal(t, creator, m.Creator)
		})
	}

	_, err := ParamsFor("perpetual", "x", creator, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidMarket)
}

func TestParamsTemplatesDoNotShareState(t *testing.T) {
	p := ScalarParams("x", common.Address{}, DefaultNumTicks)
	p = p.WithFees(0, 0)
	assert.True(t, p.CreatorFeeDivisor.IsZero())
	assert.Equal(t, "100", DefaultCreatorFeeDivisor.String())
	assert.Equal(t, "10000", DefaultNumTicks.String())
}
