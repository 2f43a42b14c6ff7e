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

// BuyCompleteSets pays amount*numTicks cash into the market and mints amount
// shares of every outcome to the sender. No fee is charged.
func (e *Exchange) BuyCompleteSets(ctx context.Context, sender, mkt common.Address, amount, payment *num.Uint) error {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.metrics.ObserveOp("buy_complete_sets", start)

	if err := e.control.AssertNotStopped(); err != nil {
		return e.reject("buy_complete_sets", err)
	}
	if amount.IsZero() {
		return e.reject("buy_complete_sets", ErrZeroAmount)
	}
	m, err := e.tradingMarket(mkt)
	if err != nil {
		return e.reject("buy_complete_sets", err)
	}
	cost, err := settlement.CompleteSetCost(m.NumTicks, amount)
	if err != nil {
		return e.reject("buy_complete_sets", err)
	}

	tx := e.begin()
	if err := e.pullCash(tx, newPayment(payment), sender, m.Address, cost); err != nil {
		e.discard(tx)
		return e.reject("buy_complete_sets", err)
	}
	for _, oc := range m.Outcomes() {
		if err := tx.batch.Mint(account.Share(m.Address, oc), sender, amount); err != nil {
			e.discard(tx)
			return e.reject("buy_complete_sets", err)
		}
	}
	if err := e.commit(ctx, tx); err != nil {
		return e.reject("buy_complete_sets", err)
	}

	e.log.Info("complete_sets_bought",
		zap.String("sender", sender.Hex()),
		zap.String("market", mkt.Hex()),
		zap.Stringer("amount", amount),
		zap.Stringer("cost", cost),
	)
	return nil
}

// SellCompleteSets burns amount shares of every outcome from the sender and
// pays amount*numTicks less market fees. It returns the net payout.
func (e *Exchange) SellCompleteSets(ctx context.Context, sender, mkt common.Address, amount *num.Uint) (*num.Uint, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.metrics.ObserveOp("sell_complete_sets", start)

	if err := e.control.AssertNotStopped(); err != nil {
		return nil, e.reject("sell_complete_sets", err)
	}
	if amount.IsZero() {
		return nil, e.reject("sell_complete_sets", ErrZeroAmount)
	}
	m, err := e.markets.Get(mkt)
	if err != nil {
		return nil, e.reject("sell_complete_sets", err)
	}
	net, fees, err := settlement.CompleteSetSale(m, amount)
	if err != nil {
		return nil, e.reject("sell_complete_sets", err)
	}

	tx := e.begin()
	for _, oc := range m.Outcomes() {
		if err := tx.batch.Burn(account.Share(m.Address, oc), sender, amount); err != nil {
			e.discard(tx)
			return nil, e.reject("sell_complete_sets", fmt.Errorf("%w: %w", ErrInsufficientShares, err))
		}
	}
	if err := e.payOut(tx, m, sender, net); err != nil {
		e.discard(tx)
		return nil, e.reject("sell_complete_sets", err)
	}
	if err := e.payFees(tx, m, fees); err != nil {
		e.discard(tx)
		return nil, e.reject("sell_complete_sets", err)
	}
	if err := e.commit(ctx, tx); err != nil {
		return nil, e.reject("sell_complete_sets", err)
	}
	e.metrics.Fees(fees.Creator.Decimal().InexactFloat64(), fees.Reporting.Decimal().InexactFloat64())

	e.log.Info("complete_sets_sold",
		zap.String("sender", sender.Hex()),
		zap.String("market", mkt.Hex()),
		zap.Stringer("amount", amount),
		zap.Stringer("payout", net),
		zap.Stringer("creator_fee", fees.Creator),
		zap.Stringer("reporting_fee", fees.Reporting),
	)
	return net, nil
}
