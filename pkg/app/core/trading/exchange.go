// Package trading is the exchange: it escrows, matches, settles and redeems
// orders against the order book and the token ledger.
//
// Every mutating call runs to completion under one mutex. A call stages its
// ledger changes in an account.Batch and its book changes in a list, and
// applies both only once every step has succeeded, so a failed call leaves no
// trace.
package trading

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"

	"github.com/uhyunpark/predictcore/pkg/app/core/account"
	"github.com/uhyunpark/predictcore/pkg/app/core/control"
	"github.com/uhyunpark/predictcore/pkg/app/core/market"
	"github.com/uhyunpark/predictcore/pkg/app/core/orderbook"
	"github.com/uhyunpark/predictcore/pkg/metrics"
	"github.com/uhyunpark/predictcore/pkg/num"
	"github.com/uhyunpark/predictcore/pkg/util"
)

// Config holds the exchange parameters.
type Config struct {
	// Address is the spender that share allowances must be granted to.
	Address common.Address
	// ReportingFeeRecipient receives reporting fees.
	ReportingFeeRecipient common.Address
	// MaxFillsPerTrade caps how many resting orders one Trade may consume.
	// Zero means no cap. Trade fails with ErrBudgetExhausted when the cap
	// stops it before the crossing orders run out; FillBestOrder just stops.
	MaxFillsPerTrade int
	// ClaimWaitingPeriod must pass after finalization before proceeds can be
	// claimed.
	ClaimWaitingPeriod time.Duration
}

func DefaultConfig() Config {
	return Config{
		Address:               common.HexToAddress("0x00000000000000000000000000000000000e0e0e"),
		ReportingFeeRecipient: common.HexToAddress("0x0000000000000000000000000000000000000fee"),
		MaxFillsPerTrade:      100,
		ClaimWaitingPeriod:    72 * time.Hour,
	}
}

// Journal persists committed state. Failures are logged and never undo a
// commit.
type Journal interface {
	SaveOrder(o *orderbook.Order) error
	DeleteOrder(market common.Address, id common.Hash) error
	SaveFill(f *Fill) error
	SaveClaim(c *Claim) error
}

// Listener is notified after every commit, under the exchange lock.
// Implementations must not call back into the exchange.
type Listener interface {
	OnFill(f *Fill)
	OnOrderEvent(ev OrderEvent)
}

type Option func(*Exchange)

func WithJournal(j Journal) Option          { return func(e *Exchange) { e.journal = j } }
func WithMetrics(m *metrics.Metrics) Option { return func(e *Exchange) { e.metrics = m } }
func WithListener(l Listener) Option        { return func(e *Exchange) { e.listeners = append(e.listeners, l) } }
func WithClock(c util.Clock) Option         { return func(e *Exchange) { e.clock = c } }

// Exchange is the single serializer for all trading state transitions.
type Exchange struct {
	mu sync.Mutex

	cfg     Config
	markets *market.Registry
	ledger  *account.Ledger
	book    *orderbook.Book
	control *control.Controller
	clock   util.Clock
	log     *zap.Logger

	journal   Journal
	metrics   *metrics.Metrics
	listeners []Listener

	nonce   uint64
	fillSeq map[common.Address]uint64

	// lastPrice holds the latest traded price per outcome; nil until traded.
	lastPrice map[common.Address][]*num.Uint
}

// NewExchange wires the exchange to its collaborators.
func NewExchange(cfg Config, markets *market.Registry, ledger *account.Ledger, book *orderbook.Book, ctrl *control.Controller, log *zap.Logger, opts ...Option) *Exchange {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Exchange{
		cfg:     cfg,
		markets: markets,
		ledger:  ledger,
		book:    book,
		control: ctrl,
		clock:   util.RealClock{},
		log:     log.Named("exchange"),
		fillSeq: make(map[common.Address]uint64),

		lastPrice: make(map[common.Address][]*num.Uint),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Exchange) Config() Config { return e.cfg }

// Book returns the order book for read access.
func (e *Exchange) Book() *orderbook.Book { return e.book }

func (e *Exchange) Markets() *market.Registry { return e.markets }

func (e *Exchange) Ledger() *account.Ledger { return e.ledger }

func (e *Exchange) Control() *control.Controller { return e.control }

// Order returns a copy of a live order.
func (e *Exchange) Order(id common.Hash) (*orderbook.Order, error) {
	if id == (common.Hash{}) {
		return nil, fmt.Errorf("%w: zero id", ErrOrderNotFound)
	}
	o, ok := e.book.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id.Hex())
	}
	return o, nil
}

// BestOrderID returns the best order of a bucket, or the zero hash.
func (e *Exchange) BestOrderID(mkt common.Address, outcome uint8, side orderbook.Side) common.Hash {
	return e.book.BestOrderID(orderbook.BucketKey{Market: mkt, Outcome: outcome, Side: side})
}

// WorseOrderID returns the next order after id away from the best price.
func (e *Exchange) WorseOrderID(id common.Hash) common.Hash { return e.book.WorseOrderID(id) }

// Restore puts a previously persisted order back on the book without
// touching the ledger, whose escrow balances were persisted separately.
// Orders must be restored in creation order to keep time priority.
func (e *Exchange) Restore(o *orderbook.Order) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.book.Add(o); err != nil {
		return err
	}
	e.nonce++
	return nil
}

// RestoreFillSeq sets the next fill sequence number for a market.
func (e *Exchange) RestoreFillSeq(mkt common.Address, seq uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if seq > e.fillSeq[mkt] {
		e.fillSeq[mkt] = seq
	}
}

// RestoreLastPrices replays persisted fills, oldest seq first, so that the
// frozen share values of a stopped market survive a restart.
func (e *Exchange) RestoreLastPrices(fills []*Fill) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sort.Slice(fills, func(i, j int) bool { return fills[i].Seq < fills[j].Seq })
	for _, f := range fills {
		e.recordPrice(f)
	}
}

// LastPrice returns the latest traded price of an outcome, nil if it never
// traded.
func (e *Exchange) LastPrice(mkt common.Address, outcome uint8) *num.Uint {
	e.mu.Lock()
	defer e.mu.Unlock()
	last := e.lastPrice[mkt]
	if int(outcome) >= len(last) || last[outcome] == nil {
		return nil
	}
	return last[outcome].Clone()
}

// recordPrice keeps the latest price of the fill's outcome. In a binary
// market it also prices the other outcome at the complement.
func (e *Exchange) recordPrice(f *Fill) {
	m, err := e.markets.Get(f.Market)
	if err != nil || !m.ValidOutcome(f.Outcome) {
		return
	}
	last := e.lastPrice[f.Market]
	if len(last) != int(m.NumOutcomes) {
		last = make([]*num.Uint, m.NumOutcomes)
		e.lastPrice[f.Market] = last
	}
	last[f.Outcome] = f.Price.Clone()
	if m.NumOutcomes == 2 {
		if other, err := num.Sub(m.NumTicks, f.Price); err == nil {
			last[1-f.Outcome] = other
		}
	}
}

func (e *Exchange) tradingMarket(addr common.Address) (*market.Market, error) {
	m, err := e.markets.Get(addr)
	if err != nil {
		return nil, err
	}
	if m.Status != market.Trading {
		return nil, fmt.Errorf("%w: %s is %s", ErrMarketNotTrading, addr.Hex(), m.Status)
	}
	return m, nil
}

// orderID derives a deterministic id from the order terms and a nonce,
// skipping any id already resting on the book. Staged adds are not checked:
// a call places at most one order, and commit rejects a duplicate add.
func (e *Exchange) orderID(o *orderbook.Order) common.Hash {
	for {
		id := e.hashOrder(o)
		if !e.book.Contains(id) {
			return id
		}
	}
}

func (e *Exchange) hashOrder(o *orderbook.Order) common.Hash {
	e.nonce++
	h := sha3.NewLegacyKeccak256()
	h.Write(o.Owner.Bytes())
	h.Write(o.Market.Bytes())
	h.Write([]byte{o.Outcome, byte(o.Side)})
	price, amount := o.Price.Bytes32(), o.Amount.Bytes32()
	h.Write(price[:])
	h.Write(amount[:])
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], e.nonce)
	binary.BigEndian.PutUint64(buf[8:], uint64(o.CreatedAt.UnixNano()))
	h.Write(buf[:])
	var id common.Hash
	h.Sum(id[:0])
	return id
}

// escrowOutcomes returns the share tokens an order on side can escrow:
// every other outcome for a bid, the outcome itself for an ask.
func escrowOutcomes(m *market.Market, side orderbook.Side, outcome uint8) []uint8 {
	if side == orderbook.Bid {
		return m.OtherOutcomes(outcome)
	}
	return []uint8{outcome}
}

// sharesAvailable is the number of full share sets owner can supply across
// outcomes through its allowance to the exchange, capped at limit.
func (e *Exchange) sharesAvailable(tx *txn, owner common.Address, m *market.Market, outcomes []uint8, limit *num.Uint) *num.Uint {
	avail := limit.Clone()
	for _, o := range outcomes {
		tok := account.Share(m.Address, o)
		have := num.Min(tx.batch.Balance(tok, owner), tx.batch.Allowance(tok, owner, e.cfg.Address))
		avail = num.Min(avail, have)
	}
	return avail
}

// pullCash moves cash from a party, charging its payment cap.
func (e *Exchange) pullCash(tx *txn, pay *payment, from, to common.Address, amount *num.Uint) error {
	if amount.IsZero() {
		return nil
	}
	if err := pay.spend(amount); err != nil {
		return err
	}
	if err := tx.batch.Transfer(account.Cash(), from, to, amount); err != nil {
		return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
	}
	return nil
}

// payment tracks how much cash a caller allowed a call to pull.
type payment struct {
	left *num.Uint // nil means uncapped
}

func newPayment(limit *num.Uint) *payment {
	if limit == nil {
		return &payment{}
	}
	return &payment{left: limit.Clone()}
}

func (p *payment) spend(amount *num.Uint) error {
	if p.left == nil {
		return nil
	}
	left, err := num.Sub(p.left, amount)
	if err != nil {
		return fmt.Errorf("%w: payment %s short of %s", ErrInsufficientFunds, p.left, amount)
	}
	p.left = left
	return nil
}

// remaining returns the unspent cap, nil when uncapped.
func (p *payment) remaining() *num.Uint {
	if p.left == nil {
		return nil
	}
	return p.left.Clone()
}

func (e *Exchange) checkBudget(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBudgetExhausted, err)
	}
	return nil
}

func (e *Exchange) reject(op string, err error) error {
	e.metrics.Rejected(op)
	e.log.Debug("rejected", zap.String("op", op), zap.Error(err))
	return err
}
