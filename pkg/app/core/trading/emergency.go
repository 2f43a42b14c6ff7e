package trading

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/predictcore/pkg/app/core/account"
	"github.com/uhyunpark/predictcore/pkg/app/core/market"
	"github.com/uhyunpark/predictcore/pkg/app/core/settlement"
	"github.com/uhyunpark/predictcore/pkg/num"
)

// ClaimSharesInEmergency is only available while trading is stopped. It
// cancels every order the sender rests in mkt and refunds the escrow,
// bypassing matching. Then it burns every outcome balance the sender holds
// and pays each share its frozen value out of the market's cash.
func (e *Exchange) ClaimSharesInEmergency(ctx context.Context, sender, mkt common.Address) (*EmergencyClaim, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.metrics.ObserveOp("emergency_claim", start)

	if err := e.control.AssertStopped(); err != nil {
		return nil, e.reject("emergency_claim", err)
	}
	m, err := e.markets.Get(mkt)
	if err != nil {
		return nil, e.reject("emergency_claim", err)
	}
	values, err := settlement.FrozenShareValues(m, e.lastPrice[mkt])
	if err != nil {
		return nil, e.reject("emergency_claim", err)
	}

	res := &EmergencyClaim{
		Market:         mkt,
		Owner:          sender,
		CashRefunded:   num.Zero(),
		SharesRefunded: num.Zero(),
		Proceeds:       num.Zero(),
	}
	tx := e.begin()
	for _, o := range e.book.OrdersByOwner(mkt, sender) {
		if err := e.refundEscrow(tx, m, o); err != nil {
			e.discard(tx)
			return nil, e.reject("emergency_claim", err)
		}
		tx.remove(o, OrderCancelled)
		res.Orders = append(res.Orders, o.ID)
		if res.CashRefunded, err = num.Add(res.CashRefunded, o.CashEscrowed); err != nil {
			e.discard(tx)
			return nil, e.reject("emergency_claim", err)
		}
		if res.SharesRefunded, err = num.Add(res.SharesRefunded, o.SharesEscrowed); err != nil {
			e.discard(tx)
			return nil, e.reject("emergency_claim", err)
		}
	}
	if err := e.liquidate(tx, m, sender, values, res); err != nil {
		e.discard(tx)
		return nil, e.reject("emergency_claim", err)
	}
	if len(res.Orders) == 0 && len(res.Liquidated) == 0 {
		e.discard(tx)
		return res, nil
	}
	if err := e.commit(ctx, tx); err != nil {
		return nil, e.reject("emergency_claim", err)
	}

	e.log.Warn("emergency_claim",
		zap.String("owner", sender.Hex()),
		zap.String("market", mkt.Hex()),
		zap.Int("orders", len(res.Orders)),
		zap.Stringer("cash_refunded", res.CashRefunded),
		zap.Stringer("shares_refunded", res.SharesRefunded),
		zap.Stringer("proceeds", res.Proceeds),
	)
	return res, nil
}

// liquidate burns the owner's staged balance of every outcome and pays
// balance * values[outcome] from the market.
func (e *Exchange) liquidate(tx *txn, m *market.Market, owner common.Address, values []*num.Uint, res *EmergencyClaim) error {
	for _, oc := range m.Outcomes() {
		tok := account.Share(m.Address, oc)
		bal := tx.batch.Balance(tok, owner)
		if bal.IsZero() {
			continue
		}
		proceeds, err := num.Mul(bal, values[oc])
		if err != nil {
			return err
		}
		if err := tx.batch.Burn(tok, owner, bal); err != nil {
			return err
		}
		if err := e.payOut(tx, m, owner, proceeds); err != nil {
			return err
		}
		res.Liquidated = append(res.Liquidated, Liquidation{
			Outcome:  oc,
			Amount:   bal,
			Value:    values[oc].Clone(),
			Proceeds: proceeds,
		})
		if res.Proceeds, err = num.Add(res.Proceeds, proceeds); err != nil {
			return err
		}
	}
	return nil
}
