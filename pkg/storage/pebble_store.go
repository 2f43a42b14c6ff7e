// Package storage journals markets, resting orders, fills and claims to
// Pebble so that a restarted node can rebuild its book.
package storage

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/predictcore/pkg/app/core/market"
	"github.com/uhyunpark/predictcore/pkg/app/core/orderbook"
	"github.com/uhyunpark/predictcore/pkg/app/core/trading"
)

// orderRecord keeps the insertion rank of an order next to it so that
// reloading preserves time priority.
type orderRecord struct {
	Rank  uint64           `json:"rank"`
	Order *orderbook.Order `json:"order"`
}

type PebbleStore struct {
	db   *pebble.DB
	sync bool

	mu   sync.Mutex
	rank uint64
}

// NewPebbleStore opens or creates the journal at path.
func NewPebbleStore(path string, sync bool) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal at %s: %w", path, err)
	}
	s := &PebbleStore{db: db, sync: sync}
	if err := s.scan([]byte(prefixOrder), func(v []byte) error {
		var r orderRecord
		if err := decode(v, &r); err != nil {
			return err
		}
		if r.Rank > s.rank {
			s.rank = r.Rank
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to scan orders: %w", err)
	}
	return s, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

func (s *PebbleStore) writeOpts() *pebble.WriteOptions {
	if s.sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

func (s *PebbleStore) get(key []byte, v any) (bool, error) {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer closer.Close()
	if err := decode(val, v); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PebbleStore) scan(prefix []byte, fn func(value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// ============================================================================
// Markets
// ============================================================================

func (s *PebbleStore) SaveMarket(m *market.Market) error {
	data, err := encode(m)
	if err != nil {
		return fmt.Errorf("failed to marshal market: %w", err)
	}
	if err := s.db.Set(marketKey(m.Address), data, s.writeOpts()); err != nil {
		return fmt.Errorf("failed to save market: %w", err)
	}
	return nil
}

// LoadMarkets returns every saved market in address order.
func (s *PebbleStore) LoadMarkets() ([]*market.Market, error) {
	var out []*market.Market
	err := s.scan([]byte(prefixMarket), func(v []byte) error {
		var m market.Market
		if err := decode(v, &m); err != nil {
			return fmt.Errorf("failed to unmarshal market: %w", err)
		}
		out = append(out, &m)
		return nil
	})
	return out, err
}

// ============================================================================
// Orders
// ============================================================================

// SaveOrder writes the order, keeping its rank if it was saved before.
func (s *PebbleStore) SaveOrder(o *orderbook.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := orderKey(o.Market, o.ID)
	var prev orderRecord
	found, err := s.get(key, &prev)
	if err != nil {
		return fmt.Errorf("failed to read order: %w", err)
	}
	rank := prev.Rank
	if !found {
		s.rank++
		rank = s.rank
	}

	data, err := encode(orderRecord{Rank: rank, Order: o})
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}
	if err := s.db.Set(key, data, s.writeOpts()); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

func (s *PebbleStore) DeleteOrder(m common.Address, id common.Hash) error {
	if err := s.db.Delete(orderKey(m, id), s.writeOpts()); err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	return nil
}

// LoadOpenOrders returns a market's resting orders in the order they were
// first saved.
func (s *PebbleStore) LoadOpenOrders(m common.Address) ([]*orderbook.Order, error) {
	var recs []orderRecord
	if err := s.scan(orderPrefix(m), func(v []byte) error {
		var r orderRecord
		if err := decode(v, &r); err != nil {
			return fmt.Errorf("failed to unmarshal order: %w", err)
		}
		recs = append(recs, r)
		return nil
	}); err != nil {
		return nil, err
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Rank < recs[j].Rank })

	out := make([]*orderbook.Order, len(recs))
	for i, r := range recs {
		out[i] = r.Order
	}
	return out, nil
}

// ============================================================================
// Fills
// ============================================================================

// SaveFill writes the fill and advances the market's last fill seq.
func (s *PebbleStore) SaveFill(f *trading.Fill) error {
	data, err := encode(f)
	if err != nil {
		return fmt.Errorf("failed to marshal fill: %w", err)
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(fillKey(f.Market, f.Outcome, f.Seq, f.ID), data, nil); err != nil {
		return err
	}
	if err := b.Set(fillSeqKey(f.Market), seqBytes(f.Seq), nil); err != nil {
		return err
	}
	if err := b.Commit(s.writeOpts()); err != nil {
		return fmt.Errorf("failed to save fill: %w", err)
	}
	return nil
}

// LoadRecentFills returns up to limit fills of one outcome, newest first.
func (s *PebbleStore) LoadRecentFills(m common.Address, outcome uint8, limit int) ([]*trading.Fill, error) {
	prefix := fillPrefix(m, outcome)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var fills []*trading.Fill
	for iter.Last(); iter.Valid() && len(fills) < limit; iter.Prev() {
		var f trading.Fill
		if err := decode(iter.Value(), &f); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fill: %w", err)
		}
		fills = append(fills, &f)
	}
	return fills, iter.Error()
}

// LastFillSeq returns the highest fill seq saved for a market.
func (s *PebbleStore) LastFillSeq(m common.Address) (uint64, error) {
	val, closer, err := s.db.Get(fillSeqKey(m))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	return seqFromBytes(val), nil
}

// ============================================================================
// Claims
// ============================================================================

func (s *PebbleStore) SaveClaim(c *trading.Claim) error {
	data, err := encode(c)
	if err != nil {
		return fmt.Errorf("failed to marshal claim: %w", err)
	}
	if err := s.db.Set(claimKey(c.Market, c.Owner, c.ClaimedAt.UnixNano()), data, s.writeOpts()); err != nil {
		return fmt.Errorf("failed to save claim: %w", err)
	}
	return nil
}

// LoadClaims returns an owner's claims on a market, oldest first.
func (s *PebbleStore) LoadClaims(m, owner common.Address) ([]*trading.Claim, error) {
	var out []*trading.Claim
	err := s.scan(claimPrefix(m, owner), func(v []byte) error {
		var c trading.Claim
		if err := decode(v, &c); err != nil {
			return fmt.Errorf("failed to unmarshal claim: %w", err)
		}
		out = append(out, &c)
		return nil
	})
	return out, err
}

var _ trading.Journal = (*PebbleStore)(nil)
