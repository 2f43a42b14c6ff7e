package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/predictcore/pkg/app/core/market"
	"github.com/uhyunpark/predictcore/pkg/app/core/orderbook"
	"github.com/uhyunpark/predictcore/pkg/num"
)

// Trade matches req against the best opposing orders that cross
// req.LimitPrice, each at its own price, and rests whatever is left as a new
// order on req.Side.
func (e *Exchange) Trade(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	return e.trade(ctx, "trade", req, true)
}

// Buy is Trade on the bid side.
func (e *Exchange) Buy(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	req.Side = orderbook.Bid
	return e.trade(ctx, "trade", req, true)
}

// Sell is Trade on the ask side.
func (e *Exchange) Sell(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	req.Side = orderbook.Ask
	return e.trade(ctx, "trade", req, true)
}

// FillBestOrder matches like Trade but never rests the remainder.
func (e *Exchange) FillBestOrder(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	return e.trade(ctx, "fill_best_order", req, false)
}

func (e *Exchange) trade(ctx context.Context, op string, req TradeRequest, rest bool) (*TradeResult, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.metrics.ObserveOp(op, start)

	m, err := e.validateOrder(req.Side, req.Amount, req.LimitPrice, req.Market, req.Outcome)
	if err != nil {
		return nil, e.reject(op, err)
	}
	if err := e.checkBudget(ctx); err != nil {
		return nil, e.reject(op, err)
	}

	tx := e.begin()
	pay := newPayment(req.Payment)
	res, capped, err := e.match(ctx, tx, m, req, pay)
	if err != nil {
		e.discard(tx)
		return nil, e.reject(op, err)
	}
	// a remainder resting at the limit would cross the orders left unmatched
	if capped && rest {
		e.discard(tx)
		return nil, e.reject(op, fmt.Errorf("%w: %d fills reached with crossing orders left", ErrBudgetExhausted, e.cfg.MaxFillsPerTrade))
	}

	var resting *orderbook.Order
	if rest && !res.AmountRemaining.IsZero() {
		resting, err = e.placeOrder(tx, m, orderTerms{
			owner:        req.Sender,
			side:         req.Side,
			outcome:      req.Outcome,
			amount:       res.AmountRemaining,
			price:        req.LimitPrice,
			tradeGroupID: req.TradeGroupID,
			hints:        hints(req.BetterOrderID, req.WorseOrderID),
		}, pay)
		if err != nil {
			e.discard(tx)
			return nil, e.reject(op, err)
		}
		res.OrderID = resting.ID
	}

	if err := e.commit(ctx, tx); err != nil {
		return nil, e.reject(op, err)
	}
	for _, f := range res.Fills {
		e.logFill(f)
	}
	if resting != nil {
		e.logCreated(resting)
	}
	e.log.Debug("trade_done",
		zap.String("sender", req.Sender.Hex()),
		zap.Stringer("side", req.Side),
		zap.Stringer("filled", res.AmountFilled),
		zap.Stringer("remaining", res.AmountRemaining),
		zap.Int("fills", len(res.Fills)),
	)
	return res, nil
}

// match walks the opposite bucket from its best order while prices cross,
// staging one fill per resting order. A partial fill of a resting order
// exhausts the request and ends the walk. capped reports that the walk
// stopped at MaxFillsPerTrade while a crossing order was still waiting.
func (e *Exchange) match(ctx context.Context, tx *txn, m *market.Market, req TradeRequest, pay *payment) (res *TradeResult, capped bool, err error) {
	res = &TradeResult{AmountFilled: num.Zero(), AmountRemaining: req.Amount.Clone()}
	key := orderbook.BucketKey{Market: m.Address, Outcome: req.Outcome, Side: req.Side.Opposite()}

	for id := e.book.BestOrderID(key); id != (common.Hash{}) && !res.AmountRemaining.IsZero(); {
		maker, ok := e.pending(tx, id)
		if !ok || !maker.Crosses(req.LimitPrice) {
			break
		}
		if e.cfg.MaxFillsPerTrade > 0 && len(res.Fills) >= e.cfg.MaxFillsPerTrade {
			return res, true, nil
		}
		if err := e.checkBudget(ctx); err != nil {
			return nil, false, err
		}
		next := e.book.WorseOrderID(id)

		amount := num.Min(res.AmountRemaining, maker.Amount)
		f, err := e.settleFill(tx, m, maker, req.Sender, amount, pay, req.TradeGroupID)
		if err != nil {
			return nil, false, err
		}
		res.Fills = append(res.Fills, f)
		if res.AmountFilled, err = num.Add(res.AmountFilled, amount); err != nil {
			return nil, false, err
		}
		if res.AmountRemaining, err = num.Sub(res.AmountRemaining, amount); err != nil {
			return nil, false, err
		}
		id = next
	}
	return res, false, nil
}
