package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/predictcore/pkg/app/core/account"
	"github.com/uhyunpark/predictcore/pkg/app/core/market"
	"github.com/uhyunpark/predictcore/pkg/app/core/orderbook"
)

// CancelOrder removes the sender's order and refunds its remaining escrow.
func (e *Exchange) CancelOrder(ctx context.Context, sender common.Address, id common.Hash) error {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.metrics.ObserveOp("cancel_order", start)

	if err := e.control.AssertNotStopped(); err != nil {
		return e.reject("cancel_order", err)
	}
	o, err := e.Order(id)
	if err != nil {
		return e.reject("cancel_order", err)
	}
	if o.Owner != sender {
		return e.reject("cancel_order", fmt.Errorf("%w: %s owned by %s", ErrNotOwner, id.Hex(), o.Owner.Hex()))
	}
	m, err := e.markets.Get(o.Market)
	if err != nil {
		return e.reject("cancel_order", err)
	}

	tx := e.begin()
	if err := e.refundEscrow(tx, m, o); err != nil {
		e.discard(tx)
		return e.reject("cancel_order", err)
	}
	tx.remove(o, OrderCancelled)
	if err := e.commit(ctx, tx); err != nil {
		return e.reject("cancel_order", err)
	}

	e.log.Info("order_cancelled",
		zap.String("order", id.Hex()),
		zap.String("owner", sender.Hex()),
		zap.Stringer("cash_refunded", o.CashEscrowed),
		zap.Stringer("shares_refunded", o.SharesEscrowed),
	)
	return nil
}

// refundEscrow stages the return of an order's escrowed cash and shares from
// the market to the owner.
func (e *Exchange) refundEscrow(tx *txn, m *market.Market, o *orderbook.Order) error {
	if err := tx.batch.Transfer(account.Cash(), m.Address, o.Owner, o.CashEscrowed); err != nil {
		return fmt.Errorf("refund cash of %s: %w", o.ID.Hex(), err)
	}
	for _, oc := range escrowOutcomes(m, o.Side, o.Outcome) {
		if err := tx.batch.Transfer(account.Share(m.Address, oc), m.Address, o.Owner, o.SharesEscrowed); err != nil {
			return fmt.Errorf("refund shares of %s: %w", o.ID.Hex(), err)
		}
	}
	return nil
}
