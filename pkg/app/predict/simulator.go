package predict

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/predictcore/params"
	"github.com/uhyunpark/predictcore/pkg/app/core/account"
	"github.com/uhyunpark/predictcore/pkg/app/core/market"
	"github.com/uhyunpark/predictcore/pkg/app/core/orderbook"
	"github.com/uhyunpark/predictcore/pkg/app/core/trading"
	"github.com/uhyunpark/predictcore/pkg/num"
)

// SimulatorFunding is the cash each simulated trader starts with.
var SimulatorFunding = num.MustUint("1000000000000000")

// unlimited share allowance granted to the exchange
var unlimited = num.MustUint("115792089237316195423570985008687907853269984665640564039457584007913129639935")

// SimStats counts what the simulator did. Rejections are expected: traders
// run out of shares, cancel orders that were just filled, and so on.
type SimStats struct {
	Trades       int
	Fills        int
	Cancels      int
	CompleteSets int
	Rejected     int
}

// Simulator drives random traders against the exchange of a devnet node.
type Simulator struct {
	app     *App
	log     *zap.Logger
	rng     *rand.Rand
	traders []common.Address

	mu       sync.Mutex
	stats    SimStats
	approved map[common.Address]bool // markets the traders have approved
	funded   bool
}

func NewSimulator(app *App, cfg params.Simulator, log *zap.Logger) *Simulator {
	if log == nil {
		log = zap.NewNop()
	}
	traders := make([]common.Address, cfg.Traders)
	for i := range traders {
		traders[i] = common.BytesToAddress([]byte(fmt.Sprintf("trader_%d", i+1)))
	}
	return &Simulator{
		app:      app,
		log:      log.Named("simulator"),
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		traders:  traders,
		approved: make(map[common.Address]bool),
	}
}

func (s *Simulator) Traders() []common.Address { return s.traders }

func (s *Simulator) Stats() SimStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Simulator) count(fn func(*SimStats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}

// prepare funds every trader once and approves the exchange for the shares
// of m.
func (s *Simulator) prepare(m *market.Market) error {
	if !s.funded {
		for _, t := range s.traders {
			if err := s.app.Ledger.Deposit(t, SimulatorFunding); err != nil {
				return fmt.Errorf("failed to fund %s: %w", t.Hex(), err)
			}
		}
		s.funded = true
	}
	if s.approved[m.Address] {
		return nil
	}
	spender := s.app.Exchange.Config().Address
	for _, t := range s.traders {
		for _, o := range m.Outcomes() {
			if err := s.app.Ledger.Approve(account.Share(m.Address, o), t, spender, unlimited); err != nil {
				return err
			}
		}
	}
	s.approved[m.Address] = true
	return nil
}

// Step performs one random action: 80% trades, 10% cancels, 10% complete
// set purchases. Exchange rejections are counted, not returned.
func (s *Simulator) Step(ctx context.Context) error {
	markets := s.app.Markets.ListTrading()
	if len(markets) == 0 {
		return nil
	}
	m := markets[s.rng.Intn(len(markets))]
	if err := s.prepare(m); err != nil {
		return err
	}
	trader := s.traders[s.rng.Intn(len(s.traders))]

	r := s.rng.Intn(100)
	switch {
	case r < 80:
		s.trade(ctx, m, trader)
	case r < 90:
		s.cancel(ctx, m, trader)
	default:
		amount := num.NewUint(uint64(s.rng.Intn(10) + 1))
		if err := s.app.Exchange.BuyCompleteSets(ctx, trader, m.Address, amount, nil); err != nil {
			s.rejected("buy_complete_sets", err)
			return nil
		}
		s.count(func(st *SimStats) { st.CompleteSets++ })
	}
	return nil
}

func (s *Simulator) trade(ctx context.Context, m *market.Market, trader common.Address) {
	// prices cluster between 40% and 60% of the range so the book crosses
	price, err := num.MulDiv(m.NumTicks, num.NewUint(uint64(40+s.rng.Intn(21))), num.NewUint(100))
	if err != nil {
		s.rejected("trade", err)
		return
	}
	if price.IsZero() {
		price = num.NewUint(1)
	}
	side := orderbook.Bid
	if s.rng.Intn(2) == 1 {
		side = orderbook.Ask
	}

	res, err := s.app.Exchange.Trade(ctx, trading.TradeRequest{
		Sender:     trader,
		Side:       side,
		Amount:     num.NewUint(uint64(s.rng.Intn(100) + 1)),
		LimitPrice: price,
		Market:     m.Address,
		Outcome:    uint8(s.rng.Intn(int(m.NumOutcomes))),
	})
	if err != nil {
		s.rejected("trade", err)
		return
	}
	s.count(func(st *SimStats) {
		st.Trades++
		st.Fills += len(res.Fills)
	})
}

func (s *Simulator) cancel(ctx context.Context, m *market.Market, trader common.Address) {
	orders := s.app.Book.OrdersByOwner(m.Address, trader)
	if len(orders) == 0 {
		return
	}
	o := orders[s.rng.Intn(len(orders))]
	if err := s.app.Exchange.CancelOrder(ctx, trader, o.ID); err != nil {
		s.rejected("cancel", err)
		return
	}
	s.count(func(st *SimStats) { st.Cancels++ })
}

func (s *Simulator) rejected(op string, err error) {
	s.count(func(st *SimStats) { st.Rejected++ })
	s.log.Debug("sim_rejected", zap.String("op", op), zap.Error(err))
}

// StartSimulator runs Step every cfg.Interval in a background goroutine.
// The returned stop function blocks until the goroutine has exited, so the
// app can be closed right after it.
func StartSimulator(ctx context.Context, app *App, cfg params.Simulator, log *zap.Logger) (*Simulator, func()) {
	sim := NewSimulator(app, cfg, log)
	simCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(cfg.Interval.Duration)
		defer ticker.Stop()

		start := time.Now()
		lastReport := start
		sim.log.Info("simulator_started", zap.Int("traders", len(sim.traders)), zap.Duration("interval", cfg.Interval.Duration))

		for {
			select {
			case <-simCtx.Done():
				st := sim.Stats()
				sim.log.Info("simulator_stopped",
					zap.Int("trades", st.Trades),
					zap.Int("fills", st.Fills),
					zap.Duration("elapsed", time.Since(start).Round(time.Second)))
				return

			case <-ticker.C:
				if err := sim.Step(simCtx); err != nil {
					sim.log.Error("simulator_step_failed", zap.Error(err))
					return
				}
				if time.Since(lastReport) >= 10*time.Second {
					lastReport = time.Now()
					st := sim.Stats()
					sim.log.Info("simulator_stats",
						zap.Int("trades", st.Trades),
						zap.Int("fills", st.Fills),
						zap.Int("cancels", st.Cancels),
						zap.Int("complete_sets", st.CompleteSets),
						zap.Int("rejected", st.Rejected),
						zap.Int("resting", app.Book.Len()))
				}
			}
		}
	}()

	return sim, func() {
		cancel()
		<-done
	}
}
