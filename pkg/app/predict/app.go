// Package predict assembles a prediction-market node: ledger, journal,
// market registry, order book and exchange, restored from disk at boot.
package predict

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/predictcore/params"
	"github.com/uhyunpark/predictcore/pkg/app/core/account"
	"github.com/uhyunpark/predictcore/pkg/app/core/control"
	"github.com/uhyunpark/predictcore/pkg/app/core/market"
	"github.com/uhyunpark/predictcore/pkg/app/core/orderbook"
	"github.com/uhyunpark/predictcore/pkg/app/core/trading"
	"github.com/uhyunpark/predictcore/pkg/metrics"
	"github.com/uhyunpark/predictcore/pkg/num"
	"github.com/uhyunpark/predictcore/pkg/storage"
)

type App struct {
	cfg params.Config
	log *zap.Logger

	Markets  *market.Registry
	Ledger   *account.Ledger
	Book     *orderbook.Book
	Control  *control.Controller
	Exchange *trading.Exchange
	Journal  *storage.PebbleStore
	Metrics  *metrics.Metrics
}

// NewApp opens the stores under cfg.Storage.DataDir, rebuilds the book from
// the journal and registers any configured markets that do not exist yet.
// opts are passed through to the exchange.
func NewApp(cfg params.Config, log *zap.Logger, opts ...trading.Option) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	store, err := account.NewStore(filepath.Join(cfg.Storage.DataDir, "ledger"), cfg.Storage.Sync)
	if err != nil {
		return nil, err
	}
	ledger, err := account.NewLedger(store)
	if err != nil {
		store.Close()
		return nil, err
	}
	journal, err := storage.NewPebbleStore(filepath.Join(cfg.Storage.DataDir, "journal"), cfg.Storage.Sync)
	if err != nil {
		ledger.Close()
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		log:     log.Named("app"),
		Markets: market.NewRegistry(),
		Ledger:  ledger,
		Book:    orderbook.NewBook(),
		Control: control.NewController(log),
		Journal: journal,
		Metrics: metrics.New(),
	}
	opts = append([]trading.Option{trading.WithJournal(journal), trading.WithMetrics(a.Metrics)}, opts...)
	a.Exchange = trading.NewExchange(ExchangeConfig(cfg.Exchange), a.Markets, ledger, a.Book, a.Control, log, opts...)

	if err := a.restore(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.seedMarkets(cfg.Markets); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// ExchangeConfig converts the validated config section.
func ExchangeConfig(c params.Exchange) trading.Config {
	return trading.Config{
		Address:               common.HexToAddress(c.Address),
		ReportingFeeRecipient: common.HexToAddress(c.ReportingFeeRecipient),
		MaxFillsPerTrade:      c.MaxFillsPerTrade,
		ClaimWaitingPeriod:    c.ClaimWaitingPeriod.Duration,
	}
}

func (a *App) restore() error {
	markets, err := a.Journal.LoadMarkets()
	if err != nil {
		return fmt.Errorf("failed to load markets: %w", err)
	}
	orders := 0
	for _, m := range markets {
		if err := a.Markets.Register(m); err != nil {
			return fmt.Errorf("failed to register market %s: %w", m.Address.Hex(), err)
		}
		open, err := a.Journal.LoadOpenOrders(m.Address)
		if err != nil {
			return fmt.Errorf("failed to load orders of %s: %w", m.Address.Hex(), err)
		}
		for _, o := range open {
			if err := a.Exchange.Restore(o); err != nil {
				return fmt.Errorf("failed to restore order %s: %w", o.ID.Hex(), err)
			}
		}
		orders += len(open)

		seq, err := a.Journal.LastFillSeq(m.Address)
		if err != nil {
			return fmt.Errorf("failed to load fill seq of %s: %w", m.Address.Hex(), err)
		}
		a.Exchange.RestoreFillSeq(m.Address, seq)

		var latest []*trading.Fill
		for _, oc := range m.Outcomes() {
			fills, err := a.Journal.LoadRecentFills(m.Address, oc, 1)
			if err != nil {
				return fmt.Errorf("failed to load fills of %s: %w", m.Address.Hex(), err)
			}
			latest = append(latest, fills...)
		}
		a.Exchange.RestoreLastPrices(latest)
	}
	if err := a.Book.Validate(); err != nil {
		return fmt.Errorf("restored book is inconsistent: %w", err)
	}
	a.Metrics.SetResting(a.Book.Len())
	a.log.Info("state_restored", zap.Int("markets", len(markets)), zap.Int("orders", orders))
	return nil
}

func (a *App) seedMarkets(seeds []params.MarketSeed) error {
	for _, s := range seeds {
		addr := common.HexToAddress(s.Address)
		if a.Markets.Exists(addr) {
			continue
		}
		p, err := SeedParams(s)
		if err != nil {
			return err
		}
		if _, err := a.CreateMarket(addr, p); err != nil {
			return err
		}
	}
	return nil
}

// SeedParams turns a configured market into template parameters. Zero fee
// divisors keep the template defaults.
func SeedParams(s params.MarketSeed) (market.Params, error) {
	var ticks *num.Uint
	if s.NumTicks != "" {
		v, err := num.UintFromString(s.NumTicks)
		if err != nil {
			return market.Params{}, fmt.Errorf("market %s: bad num_ticks: %w", s.Address, err)
		}
		ticks = v
	}
	p, err := market.ParamsFor(market.Kind(s.Kind), s.Description, common.HexToAddress(s.Creator), s.Outcomes, ticks)
	if err != nil {
		return market.Params{}, fmt.Errorf("market %s: %w", s.Address, err)
	}
	if s.CreatorFeeDivisor != 0 {
		p.CreatorFeeDivisor = num.NewUint(s.CreatorFeeDivisor)
	}
	if s.ReportingFeeDivisor != 0 {
		p.ReportingFeeDivisor = num.NewUint(s.ReportingFeeDivisor)
	}
	return p, nil
}

// CreateMarket registers and journals a new trading market.
func (a *App) CreateMarket(addr common.Address, p market.Params) (*market.Market, error) {
	m, err := market.NewMarket(addr, p)
	if err != nil {
		return nil, err
	}
	if err := a.Markets.Register(m); err != nil {
		return nil, err
	}
	if err := a.Journal.SaveMarket(m); err != nil {
		return nil, err
	}
	a.log.Info("market_created",
		zap.String("market", addr.Hex()),
		zap.String("description", m.Description),
		zap.Uint8("outcomes", m.NumOutcomes),
		zap.String("num_ticks", m.NumTicks.String()))
	return m.Clone(), nil
}

// FinalizeMarket resolves a market and journals the payout.
func (a *App) FinalizeMarket(addr common.Address, numerators []*num.Uint) (*market.Market, error) {
	if err := a.Exchange.FinalizeMarket(addr, numerators); err != nil {
		return nil, err
	}
	m, err := a.Markets.Get(addr)
	if err != nil {
		return nil, err
	}
	if err := a.Journal.SaveMarket(m); err != nil {
		return nil, err
	}
	return m, nil
}

// StateHash is a deterministic digest of every market, its resting price
// levels and the token supplies. Two nodes that applied the same calls agree
// on it.
//
// Hashed, in order:
//  1. For each market by address: address, status, payout numerators
//  2. For each outcome: bid levels best first, ask levels best first, then
//     the outcome's share supply
//  3. The cash supply
func (a *App) StateHash() [32]byte {
	h := sha256.New()
	var buf [8]byte

	for _, m := range a.Markets.List() {
		h.Write(m.Address.Bytes())
		h.Write([]byte{byte(m.Status)})
		for _, n := range m.PayoutNumerators {
			b := n.Bytes32()
			h.Write(b[:])
		}

		for _, o := range m.Outcomes() {
			for _, side := range []orderbook.Side{orderbook.Bid, orderbook.Ask} {
				h.Write([]byte{o, byte(side)})
				for _, lvl := range a.Book.Levels(orderbook.BucketKey{Market: m.Address, Outcome: o, Side: side}) {
					p := lvl.Price.Bytes32()
					h.Write(p[:])
					q := lvl.Amount.Bytes32()
					h.Write(q[:])
					binary.BigEndian.PutUint64(buf[:], uint64(lvl.Orders))
					h.Write(buf[:])
				}
			}
			s := a.Ledger.TotalSupply(account.Share(m.Address, o)).Bytes32()
			h.Write(s[:])
		}
	}

	c := a.Ledger.TotalSupply(account.Cash()).Bytes32()
	h.Write(c[:])

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Close flushes and closes both stores.
func (a *App) Close() error {
	jerr := a.Journal.Close()
	lerr := a.Ledger.Close()
	if jerr != nil {
		return jerr
	}
	return lerr
}
