package predict

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/predictcore/params"
	"github.com/uhyunpark/predictcore/pkg/app/core/account"
	"github.com/uhyunpark/predictcore/pkg/app/core/orderbook"
	"github.com/uhyunpark/predictcore/pkg/num"
)

func TestSimulatorKeepsBookAndEscrowConsistent(t *testing.T) {
	a := openApp(t, testConfig(t))
	defer a.Close()

	sim := NewSimulator(a, params.Simulator{Traders: 4, Seed: 7}, nil)
	ctx := context.Background()
	for i := 0; i < 400; i++ {
		require.NoError(t, sim.Step(ctx))
	}

	st := sim.Stats()
	assert.Positive(t, st.Trades)
	assert.Positive(t, st.Fills)
	require.NoError(t, a.Book.Validate())

	// no cash created or destroyed
	funding, err := num.Mul(SimulatorFunding, num.NewUint(uint64(len(sim.Traders()))))
	require.NoError(t, err)
	assert.Equal(t, funding.String(), a.Ledger.TotalSupply(account.Cash()).String())

	// the market holds exactly its order escrow plus numTicks per complete set
	m, err := a.Markets.Get(mkt)
	require.NoError(t, err)
	escrow := num.Zero()
	for _, o := range m.Outcomes() {
		for _, side := range []orderbook.Side{orderbook.Bid, orderbook.Ask} {
			for _, ord := range a.Book.Orders(orderbook.BucketKey{Market: mkt, Outcome: o, Side: side}) {
				escrow, err = num.Add(escrow, ord.CashEscrowed)
				require.NoError(t, err)
			}
		}
	}
	sets := a.Ledger.TotalSupply(account.Share(mkt, 0))
	assert.Equal(t, sets.String(), a.Ledger.TotalSupply(account.Share(mkt, 1)).String())
	setCash, err := num.Mul(sets, m.NumTicks)
	require.NoError(t, err)
	want, err := num.Add(escrow, setCash)
	require.NoError(t, err)
	assert.Equal(t, want.String(), a.Ledger.BalanceOf(account.Cash(), mkt).String())
}

func TestSimulatorWithoutMarketsIsIdle(t *testing.T) {
	cfg := testConfig(t)
	cfg.Markets = nil
	a := openApp(t, cfg)
	defer a.Close()

	sim := NewSimulator(a, params.Simulator{Traders: 2, Seed: 1}, nil)
	require.NoError(t, sim.Step(context.Background()))
	assert.Equal(t, SimStats{}, sim.Stats())
}

func TestStartSimulator(t *testing.T) {
	a := openApp(t, testConfig(t))
	defer a.Close()

	sim, stop := StartSimulator(context.Background(), a, params.Simulator{
		Enabled:  true,
		Interval: params.Duration{Duration: time.Millisecond},
		Traders:  3,
		Seed:     3,
	}, nil)
	require.Eventually(t, func() bool { return sim.Stats().Trades > 5 }, 5*time.Second, 5*time.Millisecond)
	stop()
}
