package market

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/predictcore/pkg/num"
)

// Registry manages multiple markets in a thread-safe manner
// Supports registration, lookup, and finalization for all markets
type Registry struct {
	mu      sync.RWMutex
	markets map[common.Address]*Market
}

// NewRegistry creates an empty market registry
func NewRegistry() *Registry {
	return &Registry{
		markets: make(map[common.Address]*Market),
	}
}

// Register adds a new market to the registry
// Returns error if market with same address already exists
func (r *Registry) Register(m *Market) error {
	if m == nil {
		return fmt.Errorf("cannot register nil market")
	}
	if err := m.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.markets[m.Address]; exists {
		return fmt.Errorf("%w: %s", ErrMarketExists, m.Address.Hex())
	}

	r.markets[m.Address] = m.Clone()
	return nil
}

// Get returns a copy of the market at addr
func (r *Registry) Get(addr common.Address) (*Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, exists := r.markets[addr]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrMarketNotFound, addr.Hex())
	}
	return m.Clone(), nil
}

// List returns copies of all registered markets ordered by address
func (r *Registry) List() []*Market {
	r.mu.RLock()
	defer r.mu.RUnlock()

	markets := make([]*Market, 0, len(r.markets))
	for _, m := range r.markets {
		markets = append(markets, m.Clone())
	}
	sort.Slice(markets, func(i, j int) bool {
		return markets[i].Address.Hex() < markets[j].Address.Hex()
	})
	return markets
}

// ListTrading returns only markets still accepting orders
func (r *Registry) ListTrading() []*Market {
	var out []*Market
	for _, m := range r.List() {
		if m.Status == Trading {
			out = append(out, m)
		}
	}
	return out
}

// Finalize records the payout numerators and moves the market to Finalized.
// Numerators must have one entry per outcome and sum to NumTicks.
func (r *Registry) Finalize(addr common.Address, numerators []*num.Uint, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, exists := r.markets[addr]
	if !exists {
		return fmt.Errorf("%w: %s", ErrMarketNotFound, addr.Hex())
	}
	if err := validateStatusTransition(m.Status, Finalized); err != nil {
		return err
	}
	if err := m.checkPayout(numerators); err != nil {
		return err
	}

	m.PayoutNumerators = make([]*num.Uint, len(numerators))
	for i, p := range numerators {
		m.PayoutNumerators[i] = p.Clone()
	}
	m.FinalizedAt = at
	m.Status = Finalized
	return nil
}

// validateStatusTransition checks if status change is valid
func validateStatusTransition(from, to Status) error {
	// Trading → Finalized: allowed (resolution)
	// Finalized → *: not allowed (terminal state)
	if from == Finalized {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidStatusChange, from)
	}
	if from == to {
		return fmt.Errorf("%w: already %s", ErrInvalidStatusChange, from)
	}
	return nil
}

// Count returns the total number of registered markets
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.markets)
}

// Exists checks if a market is registered
func (r *Registry) Exists(addr common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.markets[addr]
	return exists
}
