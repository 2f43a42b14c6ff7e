package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/predictcore/pkg/app/core/account"
	"github.com/uhyunpark/predictcore/pkg/app/core/orderbook"
)

type bookOpKind uint8

const (
	opAdd bookOpKind = iota + 1
	opUpdate
	opRemove
)

type bookOp struct {
	kind  bookOpKind
	order *orderbook.Order
	hints []common.Hash
	event OrderEventType
}

// txn is the unit of work of one public call: ledger changes in a batch,
// book changes and records in order. Nothing leaves the txn before commit.
type txn struct {
	batch  *account.Batch
	now    time.Time
	ops    []bookOp
	fills  []*Fill
	claims []*Claim
}

func (e *Exchange) begin() *txn {
	return &txn{batch: e.ledger.NewBatch(), now: e.clock.Now()}
}

func (tx *txn) add(o *orderbook.Order, hints ...common.Hash) {
	tx.ops = append(tx.ops, bookOp{kind: opAdd, order: o.Clone(), hints: hints, event: OrderCreated})
}

func (tx *txn) update(o *orderbook.Order) {
	tx.ops = append(tx.ops, bookOp{kind: opUpdate, order: o.Clone(), event: OrderUpdated})
}

func (tx *txn) remove(o *orderbook.Order, ev OrderEventType) {
	tx.ops = append(tx.ops, bookOp{kind: opRemove, order: o.Clone(), event: ev})
}

// pending returns the staged state of an order touched earlier in the txn,
// or the book's copy.
func (e *Exchange) pending(tx *txn, id common.Hash) (*orderbook.Order, bool) {
	for i := len(tx.ops) - 1; i >= 0; i-- {
		op := tx.ops[i]
		if op.order.ID != id {
			continue
		}
		if op.kind == opRemove {
			return nil, false
		}
		return op.order.Clone(), true
	}
	return e.book.Get(id)
}

func (e *Exchange) discard(tx *txn) {
	tx.batch.Discard()
	tx.ops = nil
	tx.fills = nil
	tx.claims = nil
}

// commit applies the txn. A done ctx aborts with ErrBudgetExhausted and
// nothing applied. After the ledger commit succeeds the call is final:
// journal and listener problems are logged only.
func (e *Exchange) commit(ctx context.Context, tx *txn) error {
	if err := e.checkBudget(ctx); err != nil {
		e.discard(tx)
		return err
	}
	for _, op := range tx.ops {
		if op.kind == opAdd && e.book.Contains(op.order.ID) {
			e.discard(tx)
			return fmt.Errorf("%w: %s", orderbook.ErrOrderExists, op.order.ID.Hex())
		}
	}
	if err := tx.batch.Commit(); err != nil {
		e.discard(tx)
		return err
	}

	for _, op := range tx.ops {
		var err error
		switch op.kind {
		case opAdd:
			err = e.book.Add(op.order, op.hints...)
		case opUpdate:
			err = e.book.Update(op.order.ID, op.order.Amount, op.order.CashEscrowed, op.order.SharesEscrowed)
		case opRemove:
			e.book.Remove(op.order.ID)
		}
		if err != nil {
			e.log.Error("book_apply_failed", zap.String("order", op.order.ID.Hex()), zap.Error(err))
		}
	}
	for _, f := range tx.fills {
		e.fillSeq[f.Market]++
		f.Seq = e.fillSeq[f.Market]
		e.recordPrice(f)
	}

	e.persist(tx)
	e.publish(tx)
	return nil
}

func (e *Exchange) persist(tx *txn) {
	if e.journal == nil {
		return
	}
	for _, op := range tx.ops {
		var err error
		if op.kind == opRemove {
			err = e.journal.DeleteOrder(op.order.Market, op.order.ID)
		} else {
			err = e.journal.SaveOrder(op.order)
		}
		if err != nil {
			e.log.Error("journal_order_failed", zap.String("order", op.order.ID.Hex()), zap.Error(err))
		}
	}
	for _, f := range tx.fills {
		if err := e.journal.SaveFill(f); err != nil {
			e.log.Error("journal_fill_failed", zap.String("fill", f.ID), zap.Error(err))
		}
	}
	for _, c := range tx.claims {
		if err := e.journal.SaveClaim(c); err != nil {
			e.log.Error("journal_claim_failed", zap.String("owner", c.Owner.Hex()), zap.Error(err))
		}
	}
}

func (e *Exchange) publish(tx *txn) {
	for _, op := range tx.ops {
		ev := OrderEvent{Type: op.event, Order: op.order}
		switch op.event {
		case OrderCreated:
			e.metrics.OrderCreated(op.order.Side.String())
		case OrderCancelled:
			e.metrics.OrderCancelled()
		}
		for _, l := range e.listeners {
			l.OnOrderEvent(ev)
		}
	}
	for _, f := range tx.fills {
		legs := make([]string, 0, len(f.Legs))
		for _, l := range f.Legs {
			legs = append(legs, l.Kind.String())
		}
		e.metrics.Fill(legs...)
		e.metrics.Fees(f.CreatorFee.Decimal().InexactFloat64(), f.ReportingFee.Decimal().InexactFloat64())
		for _, l := range e.listeners {
			l.OnFill(f)
		}
	}
	for range tx.claims {
		e.metrics.Claim()
	}
	e.metrics.SetResting(e.book.Len())
}
