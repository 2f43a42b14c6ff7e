package orderbook

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/predictcore/pkg/num"
)

var ErrOrderExists = errors.New("order already in book")

// BucketKey addresses one sorted list: a (market, outcome, side) triple.
type BucketKey struct {
	Market  common.Address
	Outcome uint8
	Side    Side
}

func (k BucketKey) String() string {
	return fmt.Sprintf("%s/%d/%s", k.Market.Hex(), k.Outcome, k.Side)
}

// PriceLevel aggregates resting size at one price.
type PriceLevel struct {
	Price  *num.Uint `json:"price"`
	Amount *num.Uint `json:"amount"`
	Orders int       `json:"orders"`
}

// Book owns one SortedList per bucket plus the order records.
// Lists are created on first use.
//
// BID lists keep the best (highest) price at the head and ASK lists keep the
// best (lowest) price at the tail; in both, the earliest order at the best
// price is served first.
type Book struct {
	mu     sync.RWMutex
	lists  map[BucketKey]*SortedList
	orders map[common.Hash]*Order
}

func NewBook() *Book {
	return &Book{
		lists:  make(map[BucketKey]*SortedList),
		orders: make(map[common.Hash]*Order),
	}
}

func (b *Book) list(key BucketKey) *SortedList {
	l, ok := b.lists[key]
	if !ok {
		l = NewSortedList(key.Side == Bid)
		b.lists[key] = l
	}
	return l
}

// Add inserts a copy of o into its bucket using the optional neighbor hints.
func (b *Book) Add(o *Order, hints ...common.Hash) error {
	if !o.Side.Valid() {
		return fmt.Errorf("add order %s: invalid side %d", o.ID.Hex(), o.Side)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.orders[o.ID]; exists {
		return fmt.Errorf("%w: %s", ErrOrderExists, o.ID.Hex())
	}
	if err := b.list(o.Key()).Insert(o.ID, o.Price, hints...); err != nil {
		return fmt.Errorf("add order %s: %w", o.ID.Hex(), err)
	}
	cp := o.Clone()
	cp.BetterOrderID, cp.WorseOrderID = common.Hash{}, common.Hash{}
	b.orders[o.ID] = cp
	return nil
}

// Remove deletes the order and returns its last state.
func (b *Book) Remove(id common.Hash) (*Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[id]
	if !ok {
		return nil, false
	}
	if l, ok := b.lists[o.Key()]; ok {
		l.Remove(id)
	}
	delete(b.orders, id)
	return o, true
}

// Update replaces the remaining amount and escrow of a resting order.
// Price and position in the list are unchanged.
func (b *Book) Update(id common.Hash, amount, cashEscrowed, sharesEscrowed *num.Uint) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[id]
	if !ok {
		return fmt.Errorf("update order %s: %w", id.Hex(), ErrNotFound)
	}
	o.Amount = amount.Clone()
	o.CashEscrowed = cashEscrowed.Clone()
	o.SharesEscrowed = sharesEscrowed.Clone()
	return nil
}

// Get returns a copy of the order with its better/worse neighbors filled in.
func (b *Book) Get(id common.Hash) (*Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.getLocked(id)
}

func (b *Book) getLocked(id common.Hash) (*Order, bool) {
	o, ok := b.orders[id]
	if !ok {
		return nil, false
	}
	cp := o.Clone()
	if l, ok := b.lists[o.Key()]; ok {
		cp.BetterOrderID = b.betterLocked(l, o.Side, id)
		cp.WorseOrderID = b.worseLocked(l, o.Side, id)
	}
	return cp, true
}

func (b *Book) betterLocked(l *SortedList, side Side, id common.Hash) common.Hash {
	var h common.Hash
	if side == Bid {
		h, _ = l.TryNext(id)
	} else {
		h, _ = l.TryPrev(id)
	}
	return h
}

func (b *Book) worseLocked(l *SortedList, side Side, id common.Hash) common.Hash {
	var h common.Hash
	if side == Bid {
		h, _ = l.TryPrev(id)
	} else {
		h, _ = l.TryNext(id)
	}
	return h
}

// Contains reports whether id is a live order.
func (b *Book) Contains(id common.Hash) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.orders[id]
	return ok
}

// BestOrderID returns the best order of the bucket, or the zero hash.
func (b *Book) BestOrderID(key BucketKey) common.Hash {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bestLocked(key)
}

func (b *Book) bestLocked(key BucketKey) common.Hash {
	l, ok := b.lists[key]
	if !ok || l.IsEmpty() {
		return common.Hash{}
	}
	var h common.Hash
	if key.Side == Bid {
		h, _ = l.Head()
	} else {
		h, _ = l.Tail()
	}
	return h
}

// WorstOrderID returns the worst-priced order of the bucket, or the zero hash.
func (b *Book) WorstOrderID(key BucketKey) common.Hash {
	b.mu.RLock()
	defer b.mu.RUnlock()
	l, ok := b.lists[key]
	if !ok || l.IsEmpty() {
		return common.Hash{}
	}
	var h common.Hash
	if key.Side == Bid {
		h, _ = l.Tail()
	} else {
		h, _ = l.Head()
	}
	return h
}

// BestOrder returns a copy of the best order in the bucket.
func (b *Book) BestOrder(key BucketKey) (*Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id := b.bestLocked(key)
	if id == (common.Hash{}) {
		return nil, false
	}
	return b.getLocked(id)
}

// WorseOrderID returns the next order after id moving away from the best
// price, or the zero hash.
func (b *Book) WorseOrderID(id common.Hash) common.Hash {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.orders[id]
	if !ok {
		return common.Hash{}
	}
	return b.worseLocked(b.lists[o.Key()], o.Side, id)
}

// BetterOrderID returns the neighbor of id toward the best price, or the zero hash.
func (b *Book) BetterOrderID(id common.Hash) common.Hash {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.orders[id]
	if !ok {
		return common.Hash{}
	}
	return b.betterLocked(b.lists[o.Key()], o.Side, id)
}

// Count returns the number of live orders in the bucket.
func (b *Book) Count(key BucketKey) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if l, ok := b.lists[key]; ok {
		return l.Count()
	}
	return 0
}

// Len returns the number of live orders across all buckets.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.orders)
}

// Orders returns copies of the bucket's orders, best first.
func (b *Book) Orders(key BucketKey) []*Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	l, ok := b.lists[key]
	if !ok {
		return nil
	}
	out := make([]*Order, 0, l.Count())
	collect := func(id common.Hash, _ *num.Uint) bool {
		if o, ok := b.getLocked(id); ok {
			out = append(out, o)
		}
		return true
	}
	if key.Side == Bid {
		l.Descending(collect)
	} else {
		l.Ascending(collect)
	}
	return out
}

// OrdersByOwner returns the owner's live orders in a market, sorted by
// creation time.
func (b *Book) OrdersByOwner(market, owner common.Address) []*Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*Order
	for id, o := range b.orders {
		if o.Market == market && o.Owner == owner {
			cp, _ := b.getLocked(id)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.Hex() < out[j].ID.Hex()
	})
	return out
}

// Levels aggregates the bucket into price levels, best first.
func (b *Book) Levels(key BucketKey) []PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()

	l, ok := b.lists[key]
	if !ok {
		return nil
	}
	var levels []PriceLevel
	collect := func(id common.Hash, price *num.Uint) bool {
		o := b.orders[id]
		if n := len(levels); n > 0 && levels[n-1].Price.EQ(price) {
			sum, err := num.Add(levels[n-1].Amount, o.Amount)
			if err == nil {
				levels[n-1].Amount = sum
			}
			levels[n-1].Orders++
			return true
		}
		levels = append(levels, PriceLevel{Price: price.Clone(), Amount: o.Amount.Clone(), Orders: 1})
		return true
	}
	if key.Side == Bid {
		l.Descending(collect)
	} else {
		l.Ascending(collect)
	}
	return levels
}

// Validate checks every list and that the order index matches the lists.
func (b *Book) Validate() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for key, l := range b.lists {
		if err := l.Validate(); err != nil {
			return fmt.Errorf("bucket %s: %w", key, err)
		}
		total += l.Count()
	}
	if total != len(b.orders) {
		return fmt.Errorf("book holds %d orders but lists hold %d", len(b.orders), total)
	}
	for id, o := range b.orders {
		if o.Amount.IsZero() {
			return fmt.Errorf("order %s rests with zero amount", id.Hex())
		}
		if !b.lists[o.Key()].Contains(id) {
			return fmt.Errorf("order %s missing from bucket %s", id.Hex(), o.Key())
		}
	}
	return nil
}
