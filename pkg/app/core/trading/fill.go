package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uhyunpark/predictcore/pkg/app/core/account"
	"github.com/uhyunpark/predictcore/pkg/app/core/market"
	"github.com/uhyunpark/predictcore/pkg/app/core/orderbook"
	"github.com/uhyunpark/predictcore/pkg/app/core/settlement"
	"github.com/uhyunpark/predictcore/pkg/num"
)

// FillOrder takes up to req.Amount from one resting order at its price.
// It returns the fill and how much of req.Amount was left over.
func (e *Exchange) FillOrder(ctx context.Context, req FillOrderRequest) (*Fill, *num.Uint, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.metrics.ObserveOp("fill_order", start)

	if err := e.control.AssertNotStopped(); err != nil {
		return nil, nil, e.reject("fill_order", err)
	}
	if req.Amount.IsZero() {
		return nil, nil, e.reject("fill_order", ErrZeroAmount)
	}
	maker, err := e.Order(req.OrderID)
	if err != nil {
		return nil, nil, e.reject("fill_order", err)
	}
	m, err := e.tradingMarket(maker.Market)
	if err != nil {
		return nil, nil, e.reject("fill_order", err)
	}
	if err := e.checkBudget(ctx); err != nil {
		return nil, nil, e.reject("fill_order", err)
	}

	amount := num.Min(req.Amount, maker.Amount)
	remaining, err := num.Sub(req.Amount, amount)
	if err != nil {
		return nil, nil, e.reject("fill_order", err)
	}

	tx := e.begin()
	f, err := e.settleFill(tx, m, maker, req.Sender, amount, newPayment(req.Payment), req.TradeGroupID)
	if err != nil {
		e.discard(tx)
		return nil, nil, e.reject("fill_order", err)
	}
	if err := e.commit(ctx, tx); err != nil {
		return nil, nil, e.reject("fill_order", err)
	}
	e.logFill(f)
	return f, remaining, nil
}

// settleFill stages amount shares of a fill between the resting maker order
// and taker at the maker's price, and the resulting change to the maker.
func (e *Exchange) settleFill(tx *txn, m *market.Market, maker *orderbook.Order, taker common.Address, amount *num.Uint, pay *payment, tradeGroupID string) (*Fill, error) {
	takerSide := maker.Side.Opposite()
	makerOutcomes := escrowOutcomes(m, maker.Side, maker.Outcome)
	takerOutcomes := escrowOutcomes(m, takerSide, maker.Outcome)

	plan, err := settlement.PlanFill(settlement.FillInput{
		Amount:      amount,
		Price:       maker.Price,
		NumTicks:    m.NumTicks,
		MakerSide:   maker.Side,
		MakerShares: maker.SharesEscrowed,
		TakerShares: e.sharesAvailable(tx, taker, m, takerOutcomes, amount),
	})
	if err != nil {
		return nil, err
	}

	bidParty, askParty := maker.Owner, taker
	if maker.Side == orderbook.Ask {
		bidParty, askParty = taker, maker.Owner
	}

	f := &Fill{
		ID:           uuid.NewString(),
		OrderID:      maker.ID,
		Market:       m.Address,
		Outcome:      maker.Outcome,
		MakerSide:    maker.Side,
		Maker:        maker.Owner,
		Taker:        taker,
		Price:        maker.Price.Clone(),
		Amount:       amount.Clone(),
		MakerShares:  plan.MakerShares(),
		TakerShares:  plan.TakerShares(),
		MakerCash:    num.Zero(),
		TakerCash:    num.Zero(),
		MakerPayout:  num.Zero(),
		TakerPayout:  num.Zero(),
		CreatorFee:   num.Zero(),
		ReportingFee: num.Zero(),
		Legs:         plan.Legs,
		TradeGroupID: tradeGroupID,
		Timestamp:    tx.now,
	}

	for _, leg := range plan.Legs {
		s := leg.Amount
		makerCash, err := num.Mul(s, plan.MakerUnitCost)
		if err != nil {
			return nil, err
		}
		takerCash, err := num.Mul(s, plan.TakerUnitCost)
		if err != nil {
			return nil, err
		}

		switch leg.Kind {
		case settlement.LegShareConversion:
			if err := e.pullShares(tx, m, takerOutcomes, taker, m.Address, s); err != nil {
				return nil, err
			}
			for _, oc := range m.Outcomes() {
				if err := tx.batch.Burn(account.Share(m.Address, oc), m.Address, s); err != nil {
					return nil, fmt.Errorf("destroy complete sets: %w", err)
				}
			}
			gross, err := settlement.CompleteSetCost(m.NumTicks, s)
			if err != nil {
				return nil, err
			}
			fees := settlement.MarketFees(m, gross)
			askGets, bidGets, err := settlement.SplitConversion(s, maker.Price, m.NumTicks, fees)
			if err != nil {
				return nil, err
			}
			if err := e.payOut(tx, m, askParty, askGets); err != nil {
				return nil, err
			}
			if err := e.payOut(tx, m, bidParty, bidGets); err != nil {
				return nil, err
			}
			if err := e.payFees(tx, m, fees); err != nil {
				return nil, err
			}
			makerGets, takerGets := bidGets, askGets
			if maker.Side == orderbook.Ask {
				makerGets, takerGets = askGets, bidGets
			}
			if f.MakerPayout, err = num.Add(f.MakerPayout, makerGets); err != nil {
				return nil, err
			}
			if f.TakerPayout, err = num.Add(f.TakerPayout, takerGets); err != nil {
				return nil, err
			}
			if f.CreatorFee, err = num.Add(f.CreatorFee, fees.Creator); err != nil {
				return nil, err
			}
			if f.ReportingFee, err = num.Add(f.ReportingFee, fees.Reporting); err != nil {
				return nil, err
			}

		case settlement.LegMakerSharesForCash:
			for _, oc := range makerOutcomes {
				if err := tx.batch.Transfer(account.Share(m.Address, oc), m.Address, taker, s); err != nil {
					return nil, fmt.Errorf("release maker shares: %w", err)
				}
			}
			if err := e.pullCash(tx, pay, taker, maker.Owner, takerCash); err != nil {
				return nil, err
			}
			if f.TakerCash, err = num.Add(f.TakerCash, takerCash); err != nil {
				return nil, err
			}

		case settlement.LegMakerCashForShares:
			if err := e.pullShares(tx, m, takerOutcomes, taker, maker.Owner, s); err != nil {
				return nil, err
			}
			if err := tx.batch.Transfer(account.Cash(), m.Address, taker, makerCash); err != nil {
				return nil, fmt.Errorf("release maker cash: %w", err)
			}
			if f.MakerCash, err = num.Add(f.MakerCash, makerCash); err != nil {
				return nil, err
			}

		case settlement.LegCashToCash:
			if err := e.pullCash(tx, pay, taker, m.Address, takerCash); err != nil {
				return nil, err
			}
			if err := tx.batch.Mint(account.Share(m.Address, maker.Outcome), bidParty, s); err != nil {
				return nil, err
			}
			for _, oc := range m.OtherOutcomes(maker.Outcome) {
				if err := tx.batch.Mint(account.Share(m.Address, oc), askParty, s); err != nil {
					return nil, err
				}
			}
			if f.MakerCash, err = num.Add(f.MakerCash, makerCash); err != nil {
				return nil, err
			}
			if f.TakerCash, err = num.Add(f.TakerCash, takerCash); err != nil {
				return nil, err
			}
		}
	}

	if err := e.consumeMaker(tx, maker, amount, f); err != nil {
		return nil, err
	}
	tx.fills = append(tx.fills, f)
	return f, nil
}

// consumeMaker stages the maker order's reduced size and escrow, removing it
// once nothing is left.
func (e *Exchange) consumeMaker(tx *txn, maker *orderbook.Order, amount *num.Uint, f *Fill) error {
	left, err := num.Sub(maker.Amount, amount)
	if err != nil {
		return fmt.Errorf("fill %s exceeds order %s: %w", amount, maker.ID.Hex(), err)
	}
	shares, err := num.Sub(maker.SharesEscrowed, f.MakerShares)
	if err != nil {
		return fmt.Errorf("order %s share escrow: %w", maker.ID.Hex(), err)
	}
	cash, err := num.Sub(maker.CashEscrowed, f.MakerCash)
	if err != nil {
		return fmt.Errorf("order %s cash escrow: %w", maker.ID.Hex(), err)
	}
	maker.Amount, maker.SharesEscrowed, maker.CashEscrowed = left, shares, cash
	if left.IsZero() {
		tx.remove(maker, OrderFilled)
		return nil
	}
	tx.update(maker)
	return nil
}

// pullShares moves amount of each outcome from owner through its allowance
// to the exchange.
func (e *Exchange) pullShares(tx *txn, m *market.Market, outcomes []uint8, from, to common.Address, amount *num.Uint) error {
	for _, oc := range outcomes {
		if err := tx.batch.TransferFrom(account.Share(m.Address, oc), e.cfg.Address, from, to, amount); err != nil {
			return fmt.Errorf("%w: %w", ErrInsufficientShares, err)
		}
	}
	return nil
}

// payOut pays cash held by the market.
func (e *Exchange) payOut(tx *txn, m *market.Market, to common.Address, amount *num.Uint) error {
	if err := tx.batch.Transfer(account.Cash(), m.Address, to, amount); err != nil {
		return fmt.Errorf("market %s payout: %w", m.Address.Hex(), err)
	}
	return nil
}

func (e *Exchange) payFees(tx *txn, m *market.Market, fees settlement.Fees) error {
	if err := e.payOut(tx, m, m.Creator, fees.Creator); err != nil {
		return err
	}
	return e.payOut(tx, m, e.cfg.ReportingFeeRecipient, fees.Reporting)
}

func (e *Exchange) logFill(f *Fill) {
	legs := make([]string, 0, len(f.Legs))
	for _, l := range f.Legs {
		legs = append(legs, l.Kind.String())
	}
	e.log.Info("order_filled",
		zap.String("fill", f.ID),
		zap.String("order", f.OrderID.Hex()),
		zap.String("maker", f.Maker.Hex()),
		zap.String("taker", f.Taker.Hex()),
		zap.Stringer("price", f.Price),
		zap.Stringer("amount", f.Amount),
		zap.Strings("legs", legs),
		zap.Uint64("seq", f.Seq),
	)
}
