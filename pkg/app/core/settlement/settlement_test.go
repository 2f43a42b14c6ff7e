package settlement

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/predictcore/pkg/app/core/market"
	"github.com/uhyunpark/predictcore/pkg/app/core/orderbook"
	"github.com/uhyunpark/predictcore/pkg/num"
)

func attoMarket(t *testing.T) *market.Market {
	t.Helper()
	m, err := market.NewMarket(common.HexToAddress("0xaa"), market.Params{
		NumOutcomes:         2,
		NumTicks:            num.Scale(),
		CreatorFeeDivisor:   num.NewUint(100),
		ReportingFeeDivisor: num.NewUint(10000),
	})
	require.NoError(t, err)
	return m
}

func TestPlanFillLegs(t *testing.T) {
	ticks := num.NewUint(10000)
	price := num.NewUint(6000)

	tests := []struct {
		name        string
		amount      uint64
		makerShares uint64
		takerShares uint64
		want        map[LegKind]uint64
	}{
		{"cash vs cash", 10, 0, 0, map[LegKind]uint64{LegCashToCash: 10}},
		{"shares vs shares", 10, 10, 10, map[LegKind]uint64{LegShareConversion: 10}},
		{"maker shares, taker cash", 10, 10, 0, map[LegKind]uint64{LegMakerSharesForCash: 10}},
		{"maker cash, taker shares", 10, 0, 10, map[LegKind]uint64{LegMakerCashForShares: 10}},
		{"mixed", 10, 4, 7, map[LegKind]uint64{LegShareConversion: 4, LegMakerCashForShares: 3, LegCashToCash: 3}},
		{"shares beyond amount", 5, 9, 2, map[LegKind]uint64{LegShareConversion: 2, LegMakerSharesForCash: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := PlanFill(FillInput{
				Amount:      num.NewUint(tt.amount),
				Price:       price,
				NumTicks:    ticks,
				MakerSide:   orderbook.Ask,
				MakerShares: num.NewUint(tt.makerShares),
				TakerShares: num.NewUint(tt.takerShares),
			})
			require.NoError(t, err)

			got := map[LegKind]uint64{}
			total := uint64(0)
			for _, l := range plan.Legs {
				got[l.Kind] = l.Amount.Uint64()
				total += l.Amount.Uint64()
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.amount, total)
			assert.Equal(t, uint64(4000), plan.MakerUnitCost.Uint64())
			assert.Equal(t, uint64(6000), plan.TakerUnitCost.Uint64())
		})
	}
}

func TestPlanFillRejects(t *testing.T) {
	ticks := num.NewUint(10000)
	_, err := PlanFill(FillInput{Amount: num.Zero(), Price: num.NewUint(1), NumTicks: ticks, MakerSide: orderbook.Bid})
	assert.ErrorIs(t, err, ErrInvalidFill)
	_, err = PlanFill(FillInput{Amount: num.NewUint(1), Price: ticks, NumTicks: ticks, MakerSide: orderbook.Bid})
	assert.ErrorIs(t, err, ErrInvalidPrice)
	_, err = PlanFill(FillInput{Amount: num.NewUint(1), Price: num.NewUint(1), NumTicks: ticks})
	assert.ErrorIs(t, err, ErrInvalidFill)
}

func TestOnlyConversionBearsFees(t *testing.T) {
	assert.True(t, LegShareConversion.FeeBearing())
	assert.False(t, LegMakerSharesForCash.FeeBearing())
	assert.False(t, LegMakerCashForShares.FeeBearing())
	assert.False(t, LegCashToCash.FeeBearing())
}

func TestSplitConversionMatchesSharesForSharesFill(t *testing.T) {
	m := attoMarket(t)
	amount := num.NewUint(12)
	gross, err := CompleteSetCost(m.NumTicks, amount)
	require.NoError(t, err)

	fees := MarketFees(m, gross)
	total, _ := fees.Total()
	assert.Equal(t, num.MustFixed("0.1212"), total)

	ask, bid, err := SplitConversion(amount, num.MustFixed("0.6"), m.NumTicks, fees)
	require.NoError(t, err)
	assert.Equal(t, num.MustFixed("7.12728"), ask)
	assert.Equal(t, num.MustFixed("4.75152"), bid)

	sum, _ := num.Sum(ask, bid, total)
	assert.Equal(t, gross, sum)
}

func TestSplitConversionHasNoDust(t *testing.T) {
	ticks := num.NewUint(10000)
	fees := ComputeFees(num.NewUint(7*10000), num.NewUint(3), num.NewUint(7))
	a, b, err := SplitConversion(num.NewUint(7), num.NewUint(3333), ticks, fees)
	require.NoError(t, err)
	total, _ := fees.Total()
	sum, _ := num.Sum(a, b, total)
	assert.Equal(t, uint64(70000), sum.Uint64())
}

func TestEscrowCash(t *testing.T) {
	ticks := num.NewUint(10000)
	bid, err := EscrowCash(orderbook.Bid, num.NewUint(6000), ticks, num.NewUint(3))
	require.NoError(t, err)
	assert.Equal(t, uint64(18000), bid.Uint64())
	ask, err := EscrowCash(orderbook.Ask, num.NewUint(6000), ticks, num.NewUint(3))
	require.NoError(t, err)
	assert.Equal(t, uint64(12000), ask.Uint64())
	_, err = EscrowCash(orderbook.Ask, num.Zero(), ticks, num.NewUint(3))
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestComputeFeesZeroDivisorMeansNoFee(t *testing.T) {
	f := ComputeFees(num.NewUint(1000), nil, num.NewUint(10))
	assert.True(t, f.Creator.IsZero())
	assert.Equal(t, uint64(100), f.Reporting.Uint64())
}

func TestCompleteSetSale(t *testing.T) {
	m := attoMarket(t)
	net, fees, err := CompleteSetSale(m, num.NewUint(12))
	require.NoError(t, err)
	assert.Equal(t, num.MustFixed("11.8788"), net)
	assert.Equal(t, num.MustFixed("0.12"), fees.Creator)
	assert.Equal(t, num.MustFixed("0.0012"), fees.Reporting)
}

func TestDivideUpWinnings(t *testing.T) {
	m := attoMarket(t)
	m.Status = market.Finalized
	m.PayoutNumerators = []*num.Uint{num.Zero(), num.Scale()}

	w, err := DivideUpWinnings(m, 1, num.NewUint(1))
	require.NoError(t, err)
	assert.Equal(t, num.Scale(), w.Proceeds)
	assert.Equal(t, num.MustFixed("0.9899"), w.ShareholderShare)
	assert.Equal(t, num.MustFixed("0.01"), w.CreatorShare)
	assert.Equal(t, num.MustFixed("0.0001"), w.ReporterShare)

	lose, err := DivideUpWinnings(m, 0, num.NewUint(5))
	require.NoError(t, err)
	assert.True(t, lose.Proceeds.IsZero())
	assert.True(t, lose.ShareholderShare.IsZero())

	_, err = DivideUpWinnings(m, 2, num.NewUint(1))
	assert.Error(t, err)
}

func TestScalarHelpers(t *testing.T) {
	ticks := num.Fix(40, "1")
	m, err := market.NewMarket(common.HexToAddress("0xab"), market.Params{
		NumOutcomes:         2,
		NumTicks:            ticks,
		CreatorFeeDivisor:   num.NewUint(100),
		ReportingFeeDivisor: num.NewUint(10000),
	})
	require.NoError(t, err)
	m.Status = market.Finalized
	m.PayoutNumerators = []*num.Uint{num.Zero(), ticks}

	proceeds, err := CalculateProceeds(m, 1, num.NewUint(7))
	require.NoError(t, err)
	assert.Equal(t, num.Fix(280, "1"), proceeds)
	assert.Equal(t, num.Fix(280, "0.01"), CalculateCreatorFee(m, proceeds))
	assert.Equal(t, num.Fix(280, "0.0001"), CalculateReportingFee(m, proceeds))
}

func TestFrozenShareValues(t *testing.T) {
	m, err := market.NewMarket(common.HexToAddress("0xac"), market.Params{
		NumOutcomes: 3,
		NumTicks:    num.NewUint(10000),
	})
	require.NoError(t, err)

	uints := func(vals []*num.Uint) []uint64 {
		out := make([]uint64, len(vals))
		for i, v := range vals {
			out[i] = v.Uint64()
		}
		return out
	}

	vals, err := FrozenShareValues(m, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3333, 3333, 3334}, uints(vals))

	vals, err = FrozenShareValues(m, []*num.Uint{nil, num.NewUint(2000), nil})
	require.NoError(t, err)
	assert.Equal(t, []uint64{3846, 2307, 3847}, uints(vals))

	_, err = FrozenShareValues(m, make([]*num.Uint, 4))
	assert.Error(t, err)

	m.Status = market.Finalized
	m.PayoutNumerators = []*num.Uint{num.Zero(), num.NewUint(10000), num.Zero()}
	vals, err = FrozenShareValues(m, []*num.Uint{nil, num.NewUint(2000), nil})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 10000, 0}, uints(vals))
}
