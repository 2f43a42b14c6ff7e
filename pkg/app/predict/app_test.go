package predict

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/predictcore/params"
	"github.com/uhyunpark/predictcore/pkg/app/core/account"
	"github.com/uhyunpark/predictcore/pkg/app/core/market"
	"github.com/uhyunpark/predictcore/pkg/app/core/orderbook"
	"github.com/uhyunpark/predictcore/pkg/app/core/trading"
	"github.com/uhyunpark/predictcore/pkg/num"
	"github.com/uhyunpark/predictcore/pkg/util"
)

var (
	alice   = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob     = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	creator = common.HexToAddress("0x000000000000000000000000000000000000c0de")
	mkt     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func testConfig(t *testing.T) params.Config {
	t.Helper()
	cfg := params.Default()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Storage.Sync = false
	cfg.Exchange.ClaimWaitingPeriod = params.Duration{Duration: time.Hour}
	cfg.Markets = []params.MarketSeed{{
		Address:     mkt.Hex(),
		Kind:        "binary",
		Description: "rain tomorrow",
		Creator:     creator.Hex(),
	}}
	return cfg
}

func openApp(t *testing.T, cfg params.Config, opts ...trading.Option) *App {
	t.Helper()
	a, err := NewApp(cfg, nil, opts...)
	require.NoError(t, err)
	return a
}

func order(side orderbook.Side, who common.Address, amount, price uint64) trading.CreateOrderRequest {
	return trading.CreateOrderRequest{
		Sender:  who,
		Side:    side,
		Amount:  num.NewUint(amount),
		Price:   num.NewUint(price),
		Market:  mkt,
		Outcome: 1,
	}
}

func TestAppSeedsMarkets(t *testing.T) {
	a := openApp(t, testConfig(t))
	defer a.Close()

	m, err := a.Markets.Get(mkt)
	require.NoError(t, err)
	assert.Equal(t, "rain tomorrow", m.Description)
	assert.Equal(t, creator, m.Creator)
	assert.Equal(t, uint8(2), m.NumOutcomes)
	assert.Equal(t, "10000", m.NumTicks.String())

	_, err = a.CreateMarket(mkt, market.BinaryParams("again", creator))
	assert.ErrorIs(t, err, market.ErrMarketExists)
}

func TestAppRestoresStateAcrossRestart(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	a := openApp(t, cfg)

	require.NoError(t, a.Ledger.Deposit(alice, num.NewUint(1_000_000)))
	require.NoError(t, a.Ledger.Deposit(bob, num.NewUint(1_000_000)))

	ask, err := a.Exchange.CreateOrder(ctx, order(orderbook.Ask, alice, 10, 6000))
	require.NoError(t, err)
	bid1, err := a.Exchange.CreateOrder(ctx, order(orderbook.Bid, bob, 5, 4000))
	require.NoError(t, err)
	bid2, err := a.Exchange.CreateOrder(ctx, order(orderbook.Bid, alice, 5, 4000))
	require.NoError(t, err)

	res, err := a.Exchange.Trade(ctx, trading.TradeRequest{
		Sender: bob, Side: orderbook.Bid, Amount: num.NewUint(4), LimitPrice: num.NewUint(6000),
		Market: mkt, Outcome: 1,
	})
	require.NoError(t, err)
	require.Len(t, res.Fills, 1)
	assert.Equal(t, uint64(1), res.Fills[0].Seq)
	assert.Equal(t, common.Hash{}, res.OrderID)

	hash := a.StateHash()
	aliceCash := a.Ledger.BalanceOf(account.Cash(), alice)
	require.NoError(t, a.Close())

	b := openApp(t, cfg)
	defer b.Close()

	assert.Equal(t, hash, b.StateHash())
	assert.Equal(t, aliceCash.String(), b.Ledger.BalanceOf(account.Cash(), alice).String())
	assert.Equal(t, 1, b.Markets.Count())

	// last traded prices price the escape hatch after a restart
	require.NotNil(t, b.Exchange.LastPrice(mkt, 1))
	assert.Equal(t, uint64(6000), b.Exchange.LastPrice(mkt, 1).Uint64())
	assert.Equal(t, uint64(4000), b.Exchange.LastPrice(mkt, 0).Uint64())

	o, err := b.Exchange.Order(ask)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), o.Amount.Uint64())

	// time priority survives the restart
	assert.Equal(t, bid1, b.Exchange.BestOrderID(mkt, 1, orderbook.Bid))
	assert.Equal(t, bid2, b.Exchange.WorseOrderID(bid1))

	res, err = b.Exchange.Trade(ctx, trading.TradeRequest{
		Sender: bob, Side: orderbook.Bid, Amount: num.NewUint(1), LimitPrice: num.NewUint(6000),
		Market: mkt, Outcome: 1,
	})
	require.NoError(t, err)
	require.Len(t, res.Fills, 1)
	assert.Equal(t, uint64(2), res.Fills[0].Seq)

	fills, err := b.Journal.LoadRecentFills(mkt, 1, 10)
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.Equal(t, uint64(2), fills[0].Seq)
}

func TestAppFinalizeAndClaimAcrossRestart(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	clock := util.NewManualClock(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))

	a := openApp(t, cfg, trading.WithClock(clock))
	require.NoError(t, a.Ledger.Deposit(alice, num.NewUint(100000)))
	require.NoError(t, a.Exchange.BuyCompleteSets(ctx, alice, mkt, num.NewUint(10), nil))

	m, err := a.FinalizeMarket(mkt, []*num.Uint{num.Zero(), num.NewUint(10000)})
	require.NoError(t, err)
	assert.True(t, m.IsFinalized())
	require.NoError(t, a.Close())

	b := openApp(t, cfg, trading.WithClock(clock))
	defer b.Close()

	m, err = b.Markets.Get(mkt)
	require.NoError(t, err)
	require.True(t, m.IsFinalized())
	assert.Equal(t, "10000", m.PayoutNumerator(1).String())

	_, err = b.Exchange.ClaimProceeds(ctx, alice, mkt)
	assert.ErrorIs(t, err, trading.ErrWaitingPeriodNotOver)

	clock.Advance(2 * time.Hour)
	c, err := b.Exchange.ClaimProceeds(ctx, alice, mkt)
	require.NoError(t, err)
	assert.Equal(t, "98990", c.Payout.String())

	claims, err := b.Journal.LoadClaims(mkt, alice)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, "98990", claims[0].Payout.String())
}

func TestStateHashTracksBook(t *testing.T) {
	ctx := context.Background()
	a := openApp(t, testConfig(t))
	defer a.Close()
	require.NoError(t, a.Ledger.Deposit(alice, num.NewUint(100000)))

	before := a.StateHash()
	assert.Equal(t, before, a.StateHash())

	id, err := a.Exchange.CreateOrder(ctx, order(orderbook.Bid, alice, 10, 5000))
	require.NoError(t, err)
	assert.NotEqual(t, before, a.StateHash())

	require.NoError(t, a.Exchange.CancelOrder(ctx, alice, id))
	assert.Equal(t, before, a.StateHash())
}

func TestSeedParams(t *testing.T) {
	p, err := SeedParams(params.MarketSeed{
		Address:           mkt.Hex(),
		Kind:              "scalar",
		NumTicks:          "40000",
		CreatorFeeDivisor: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, "40000", p.NumTicks.String())
	assert.Equal(t, "50", p.CreatorFeeDivisor.String())
	assert.Equal(t, market.DefaultReportingFeeDivisor.String(), p.ReportingFeeDivisor.String())

	_, err = SeedParams(params.MarketSeed{Address: mkt.Hex(), Kind: "scalar", NumTicks: "-1"})
	assert.Error(t, err)
}
