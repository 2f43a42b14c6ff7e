package account

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/predictcore/pkg/num"
)

// Ledger holds cash and share balances, spending allowances and token
// supplies in a thread-safe manner.
// Uses in-memory maps + optional Pebble persistence for durability.
//
// Direct mutations (Deposit, Withdraw, Approve) apply immediately. Trading
// paths stage their changes in a Batch and commit them all at once.
type Ledger struct {
	mu         sync.RWMutex
	balances   map[balKey]*num.Uint
	allowances map[allowKey]*num.Uint
	supply     map[Token]*num.Uint
	store      *Store // nil for a purely in-memory ledger
}

// NewLedger creates a ledger. A non-nil store is loaded into memory and
// receives every committed change.
func NewLedger(store *Store) (*Ledger, error) {
	l := &Ledger{
		balances:   make(map[balKey]*num.Uint),
		allowances: make(map[allowKey]*num.Uint),
		supply:     make(map[Token]*num.Uint),
		store:      store,
	}
	if store == nil {
		return l, nil
	}
	if err := store.LoadInto(l); err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	return l, nil
}

// Close closes the underlying Pebble database, if any
func (l *Ledger) Close() error {
	if l.store == nil {
		return nil
	}
	return l.store.Close()
}

// BalanceOf returns holder's balance of tok.
func (l *Ledger) BalanceOf(tok Token, holder common.Address) *num.Uint {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[balKey{tok, holder}].Clone()
}

// Allowance returns how much of owner's tok spender may move.
func (l *Ledger) Allowance(tok Token, owner, spender common.Address) *num.Uint {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allowances[allowKey{tok, owner, spender}].Clone()
}

// TotalSupply returns the outstanding amount of tok.
func (l *Ledger) TotalSupply(tok Token) *num.Uint {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.supply[tok].Clone()
}

// Holdings returns every non-zero balance of holder, cash first.
func (l *Ledger) Holdings(holder common.Address) []Holding {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Holding
	for k, v := range l.balances {
		if k.holder == holder && !v.IsZero() {
			out = append(out, Holding{Token: k.token, Balance: v.Clone()})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Token, out[j].Token
		if a.IsShare != b.IsShare {
			return !a.IsShare
		}
		if a.Market != b.Market {
			return a.Market.Hex() < b.Market.Hex()
		}
		return a.Outcome < b.Outcome
	})
	return out
}

// Approve sets the allowance spender has over owner's tok.
func (l *Ledger) Approve(tok Token, owner, spender common.Address, amount *num.Uint) error {
	b := l.NewBatch()
	b.Approve(tok, owner, spender, amount)
	return b.Commit()
}

// Deposit credits cash to holder (from the bridge or a faucet).
func (l *Ledger) Deposit(holder common.Address, amount *num.Uint) error {
	if amount.IsZero() {
		return fmt.Errorf("deposit: %w", ErrInvalidAmount)
	}
	b := l.NewBatch()
	if err := b.Mint(Cash(), holder, amount); err != nil {
		return err
	}
	return b.Commit()
}

// Withdraw removes cash from holder.
// Returns error if insufficient balance
func (l *Ledger) Withdraw(holder common.Address, amount *num.Uint) error {
	if amount.IsZero() {
		return fmt.Errorf("withdraw: %w", ErrInvalidAmount)
	}
	b := l.NewBatch()
	if err := b.Burn(Cash(), holder, amount); err != nil {
		return err
	}
	return b.Commit()
}
