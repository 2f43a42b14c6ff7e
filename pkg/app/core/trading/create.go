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
	"github.com/uhyunpark/predictcore/pkg/app/core/settlement"
	"github.com/uhyunpark/predictcore/pkg/num"
)

// CreateOrder escrows the order's collateral and rests it on the book
// without matching. Shares covered by the sender's allowance to the exchange
// are escrowed first; the rest is paid in cash, up to req.Payment.
func (e *Exchange) CreateOrder(ctx context.Context, req CreateOrderRequest) (common.Hash, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.metrics.ObserveOp("create_order", start)

	m, err := e.validateOrder(req.Side, req.Amount, req.Price, req.Market, req.Outcome)
	if err != nil {
		return common.Hash{}, e.reject("create_order", err)
	}
	if err := e.checkBudget(ctx); err != nil {
		return common.Hash{}, e.reject("create_order", err)
	}

	tx := e.begin()
	o, err := e.placeOrder(tx, m, orderTerms{
		owner:        req.Sender,
		side:         req.Side,
		outcome:      req.Outcome,
		amount:       req.Amount,
		price:        req.Price,
		tradeGroupID: req.TradeGroupID,
		hints:        hints(req.BetterOrderID, req.WorseOrderID),
	}, newPayment(req.Payment))
	if err != nil {
		e.discard(tx)
		return common.Hash{}, e.reject("create_order", err)
	}
	if err := e.commit(ctx, tx); err != nil {
		return common.Hash{}, e.reject("create_order", err)
	}
	e.logCreated(o)
	return o.ID, nil
}

// validateOrder runs the checks shared by every order-placing call, in the
// order callers observe them.
func (e *Exchange) validateOrder(side orderbook.Side, amount, price *num.Uint, mkt common.Address, outcome uint8) (*market.Market, error) {
	if err := e.control.AssertNotStopped(); err != nil {
		return nil, err
	}
	if !side.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSide, side)
	}
	if amount.IsZero() {
		return nil, ErrZeroAmount
	}
	m, err := e.tradingMarket(mkt)
	if err != nil {
		return nil, err
	}
	if !m.ValidOutcome(outcome) {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidOutcome, outcome, m.NumOutcomes)
	}
	if !m.ValidPrice(price) {
		return nil, fmt.Errorf("%w: %s not in (0, %s)", ErrInvalidPrice, price, m.NumTicks)
	}
	return m, nil
}

type orderTerms struct {
	owner        common.Address
	side         orderbook.Side
	outcome      uint8
	amount       *num.Uint
	price        *num.Uint
	tradeGroupID string
	hints        []common.Hash
}

func hints(better, worse common.Hash) []common.Hash {
	var hs []common.Hash
	for _, h := range []common.Hash{better, worse} {
		if h != (common.Hash{}) {
			hs = append(hs, h)
		}
	}
	return hs
}

// placeOrder stages the escrow and insertion of a new order.
func (e *Exchange) placeOrder(tx *txn, m *market.Market, t orderTerms, pay *payment) (*orderbook.Order, error) {
	outcomes := escrowOutcomes(m, t.side, t.outcome)
	shares := e.sharesAvailable(tx, t.owner, m, outcomes, t.amount)
	for _, oc := range outcomes {
		if err := tx.batch.TransferFrom(account.Share(m.Address, oc), e.cfg.Address, t.owner, m.Address, shares); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInsufficientShares, err)
		}
	}

	rest, err := num.Sub(t.amount, shares)
	if err != nil {
		return nil, err
	}
	cash := num.Zero()
	if !rest.IsZero() {
		if cash, err = settlement.EscrowCash(t.side, t.price, m.NumTicks, rest); err != nil {
			return nil, err
		}
		if err := e.pullCash(tx, pay, t.owner, m.Address, cash); err != nil {
			return nil, err
		}
	}

	o := &orderbook.Order{
		Side:           t.side,
		Market:         m.Address,
		Outcome:        t.outcome,
		Owner:          t.owner,
		Amount:         t.amount.Clone(),
		Price:          t.price.Clone(),
		CashEscrowed:   cash,
		SharesEscrowed: shares,
		TradeGroupID:   t.tradeGroupID,
		CreatedAt:      tx.now,
	}
	o.ID = e.orderID(o)
	tx.add(o, t.hints...)
	return o, nil
}

func (e *Exchange) logCreated(o *orderbook.Order) {
	e.log.Info("order_created",
		zap.String("order", o.ID.Hex()),
		zap.String("owner", o.Owner.Hex()),
		zap.String("market", o.Market.Hex()),
		zap.Uint8("outcome", o.Outcome),
		zap.Stringer("side", o.Side),
		zap.Stringer("amount", o.Amount),
		zap.Stringer("price", o.Price),
		zap.Stringer("cash_escrowed", o.CashEscrowed),
		zap.Stringer("shares_escrowed", o.SharesEscrowed),
	)
}
