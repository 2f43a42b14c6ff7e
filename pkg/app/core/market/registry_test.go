package market

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/predictcore/pkg/num"
)

var yesNo = common.HexToAddress("0x00000000000000000000000000000000000000b1")

func binaryParams() Params {
	return Params{
		Description:         "will it rain",
		Creator:             common.HexToAddress("0xc0"),
		NumOutcomes:         2,
		NumTicks:            num.NewUint(10000),
		CreatorFeeDivisor:   num.NewUint(100),
		ReportingFeeDivisor: num.NewUint(10000),
	}
}

func TestNewMarketValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Params)
		addr   common.Address
		ok     bool
	}{
		{"valid binary", func(p *Params) {}, yesNo, true},
		{"valid categorical", func(p *Params) { p.NumOutcomes = 8 }, yesNo, true},
		{"zero address", func(p *Params) {}, common.Address{}, false},
		{"one outcome", func(p *Params) { p.NumOutcomes = 1 }, yesNo, false},
		{"too many outcomes", func(p *Params) { p.NumOutcomes = MaxOutcomes + 1 }, yesNo, false},
		{"numTicks one", func(p *Params) { p.NumTicks = num.NewUint(1) }, yesNo, false},
		{"no fees", func(p *Params) { p.CreatorFeeDivisor, p.ReportingFeeDivisor = nil, nil }, yesNo, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := binaryParams()
			tt.mutate(&p)
			m, err := NewMarket(tt.addr, p)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, Trading, m.Status)
			} else {
				assert.ErrorIs(t, err, ErrInvalidMarket)
			}
		})
	}
}

func TestMarketPriceAndOutcomeBounds(t *testing.T) {
	m, err := NewMarket(yesNo, binaryParams())
	require.NoError(t, err)

	assert.False(t, m.ValidPrice(num.Zero()))
	assert.True(t, m.ValidPrice(num.NewUint(1)))
	assert.True(t, m.ValidPrice(num.NewUint(9999)))
	assert.False(t, m.ValidPrice(num.NewUint(10000)))

	assert.True(t, m.ValidOutcome(1))
	assert.False(t, m.ValidOutcome(2))
	assert.Equal(t, []uint8{0}, m.OtherOutcomes(1))
	assert.Equal(t, []uint8{0, 1}, m.Outcomes())
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	m, err := NewMarket(yesNo, binaryParams())
	require.NoError(t, err)

	require.NoError(t, r.Register(m))
	assert.ErrorIs(t, r.Register(m), ErrMarketExists)
	assert.Equal(t, 1, r.Count())
	assert.True(t, r.Exists(yesNo))

	got, err := r.Get(yesNo)
	require.NoError(t, err)
	assert.Equal(t, "will it rain", got.Description)

	// the registry hands out copies
	got.NumTicks = num.NewUint(5)
	again, _ := r.Get(yesNo)
	assert.Equal(t, uint64(10000), again.NumTicks.Uint64())

	_, err = r.Get(common.HexToAddress("0xdead"))
	assert.ErrorIs(t, err, ErrMarketNotFound)
	assert.Len(t, r.ListTrading(), 1)
}

func TestRegistryFinalize(t *testing.T) {
	r := NewRegistry()
	m, err := NewMarket(yesNo, binaryParams())
	require.NoError(t, err)
	require.NoError(t, r.Register(m))
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	err = r.Finalize(yesNo, []*num.Uint{num.NewUint(1), num.NewUint(1)}, at)
	assert.ErrorIs(t, err, ErrInvalidPayout)
	err = r.Finalize(yesNo, []*num.Uint{num.NewUint(10000)}, at)
	assert.ErrorIs(t, err, ErrInvalidPayout)

	require.NoError(t, r.Finalize(yesNo, []*num.Uint{num.Zero(), num.NewUint(10000)}, at))
	got, _ := r.Get(yesNo)
	assert.True(t, got.IsFinalized())
	assert.Equal(t, at, got.FinalizedAt)
	assert.Equal(t, uint64(10000), got.PayoutNumerator(1).Uint64())
	assert.True(t, got.PayoutNumerator(0).IsZero())
	assert.Empty(t, r.ListTrading())

	err = r.Finalize(yesNo, []*num.Uint{num.NewUint(10000), num.Zero()}, at)
	assert.ErrorIs(t, err, ErrInvalidStatusChange)
	assert.ErrorIs(t, r.Finalize(common.HexToAddress("0xdead"), nil, at), ErrMarketNotFound)
}

func TestMarketJSON(t *testing.T) {
	m, err := NewMarket(yesNo, binaryParams())
	require.NoError(t, err)
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"numTicks":"10000"`)
	assert.Contains(t, string(data), `"status":"Trading"`)

	var back Market
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, m.Address, back.Address)
	assert.True(t, m.NumTicks.EQ(back.NumTicks))
}
