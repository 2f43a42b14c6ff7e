package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/predictcore/pkg/app/core/account"
	"github.com/uhyunpark/predictcore/pkg/app/core/settlement"
	"github.com/uhyunpark/predictcore/pkg/num"
)

// FinalizeMarket records the resolved payout of a market, starting the
// claim waiting period.
func (e *Exchange) FinalizeMarket(mkt common.Address, numerators []*num.Uint) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	if err := e.markets.Finalize(mkt, numerators, now); err != nil {
		return e.reject("finalize_market", err)
	}
	vals := make([]string, len(numerators))
	for i, n := range numerators {
		vals[i] = n.String()
	}
	e.log.Info("market_finalized", zap.String("market", mkt.Hex()), zap.Strings("payout", vals), zap.Time("at", now))
	return nil
}

// ClaimProceeds redeems every outcome balance the sender holds in a
// finalized market. Balances are burned and the proceeds are divided between
// the sender, the market creator and the reporting fee recipient. Holding
// nothing yields an empty claim.
func (e *Exchange) ClaimProceeds(ctx context.Context, sender, mkt common.Address) (*Claim, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.metrics.ObserveOp("claim_proceeds", start)

	if err := e.control.AssertNotStopped(); err != nil {
		return nil, e.reject("claim_proceeds", err)
	}
	m, err := e.markets.Get(mkt)
	if err != nil {
		return nil, e.reject("claim_proceeds", err)
	}
	if !m.IsFinalized() {
		return nil, e.reject("claim_proceeds", fmt.Errorf("%w: %s", ErrMarketNotFinalized, mkt.Hex()))
	}
	now := e.clock.Now()
	if unlock := m.FinalizedAt.Add(e.cfg.ClaimWaitingPeriod); !now.After(unlock) {
		return nil, e.reject("claim_proceeds", fmt.Errorf("%w: claimable after %s", ErrWaitingPeriodNotOver, unlock.Format(time.RFC3339)))
	}

	tx := e.begin()
	c := &Claim{
		Market:       mkt,
		Owner:        sender,
		Payout:       num.Zero(),
		CreatorFee:   num.Zero(),
		ReportingFee: num.Zero(),
		ClaimedAt:    tx.now,
	}
	if err := e.redeem(tx, c); err != nil {
		e.discard(tx)
		return nil, e.reject("claim_proceeds", err)
	}
	if len(c.Winnings) == 0 {
		e.discard(tx)
		return c, nil
	}
	if err := e.payOut(tx, m, sender, c.Payout); err != nil {
		e.discard(tx)
		return nil, e.reject("claim_proceeds", err)
	}
	fees := settlement.Fees{Creator: c.CreatorFee, Reporting: c.ReportingFee}
	if err := e.payFees(tx, m, fees); err != nil {
		e.discard(tx)
		return nil, e.reject("claim_proceeds", err)
	}
	tx.claims = append(tx.claims, c)
	if err := e.commit(ctx, tx); err != nil {
		return nil, e.reject("claim_proceeds", err)
	}

	e.log.Info("proceeds_claimed",
		zap.String("owner", sender.Hex()),
		zap.String("market", mkt.Hex()),
		zap.Stringer("payout", c.Payout),
		zap.Stringer("creator_fee", c.CreatorFee),
		zap.Stringer("reporting_fee", c.ReportingFee),
	)
	return c, nil
}

// redeem burns each non-zero outcome balance of the claimant and totals the
// divided winnings into c.
func (e *Exchange) redeem(tx *txn, c *Claim) error {
	m, err := e.markets.Get(c.Market)
	if err != nil {
		return err
	}
	for _, oc := range m.Outcomes() {
		tok := account.Share(m.Address, oc)
		bal := tx.batch.Balance(tok, c.Owner)
		if bal.IsZero() {
			continue
		}
		w, err := settlement.DivideUpWinnings(m, oc, bal)
		if err != nil {
			return err
		}
		if err := tx.batch.Burn(tok, c.Owner, bal); err != nil {
			return err
		}
		c.Winnings = append(c.Winnings, w)
		if c.Payout, err = num.Add(c.Payout, w.ShareholderShare); err != nil {
			return err
		}
		if c.CreatorFee, err = num.Add(c.CreatorFee, w.CreatorShare); err != nil {
			return err
		}
		if c.ReportingFee, err = num.Add(c.ReportingFee, w.ReporterShare); err != nil {
			return err
		}
	}
	return nil
}
