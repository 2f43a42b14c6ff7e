package account

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/predictcore/pkg/num"
)

type delta struct {
	add *num.Uint
	sub *num.Uint
}

// Batch stages ledger changes on top of the committed state. Reads through a
// batch see its own staged changes. Nothing is visible to other readers until
// Commit, and Discard drops everything.
//
// Balances are tracked as deltas so that concurrent deposits landing between
// staging and commit are preserved. Commit re-checks that no balance goes
// negative. Allowances are staged as absolute values.
//
// A Batch is not safe for concurrent use.
type Batch struct {
	l      *Ledger
	bals   map[balKey]*delta
	allows map[allowKey]*num.Uint
	supply map[Token]*delta
	closed bool
}

// NewBatch starts an empty batch against the ledger.
func (l *Ledger) NewBatch() *Batch {
	return &Batch{
		l:      l,
		bals:   make(map[balKey]*delta),
		allows: make(map[allowKey]*num.Uint),
		supply: make(map[Token]*delta),
	}
}

func apply(base *num.Uint, d *delta) (*num.Uint, error) {
	if d == nil {
		return base.Clone(), nil
	}
	v, err := num.Add(base, d.add)
	if err != nil {
		return nil, err
	}
	return num.Sub(v, d.sub)
}

func (b *Batch) deltaFor(m map[balKey]*delta, k balKey) *delta {
	d, ok := m[k]
	if !ok {
		d = &delta{add: num.Zero(), sub: num.Zero()}
		m[k] = d
	}
	return d
}

func (b *Batch) supplyDelta(tok Token) *delta {
	d, ok := b.supply[tok]
	if !ok {
		d = &delta{add: num.Zero(), sub: num.Zero()}
		b.supply[tok] = d
	}
	return d
}

// Balance returns holder's balance including staged changes.
func (b *Batch) Balance(tok Token, holder common.Address) *num.Uint {
	base := b.l.BalanceOf(tok, holder)
	v, err := apply(base, b.bals[balKey{tok, holder}])
	if err != nil {
		return num.Zero()
	}
	return v
}

// Allowance returns the allowance including staged changes.
func (b *Batch) Allowance(tok Token, owner, spender common.Address) *num.Uint {
	if v, ok := b.allows[allowKey{tok, owner, spender}]; ok {
		return v.Clone()
	}
	return b.l.Allowance(tok, owner, spender)
}

// Approve stages a new allowance value.
func (b *Batch) Approve(tok Token, owner, spender common.Address, amount *num.Uint) {
	b.allows[allowKey{tok, owner, spender}] = amount.Clone()
}

func (b *Batch) credit(tok Token, to common.Address, amount *num.Uint) error {
	d := b.deltaFor(b.bals, balKey{tok, to})
	sum, err := num.Add(d.add, amount)
	if err != nil {
		return fmt.Errorf("credit %s to %s: %w", tok, to.Hex(), err)
	}
	d.add = sum
	return nil
}

func (b *Batch) debit(tok Token, from common.Address, amount *num.Uint) error {
	if have := b.Balance(tok, from); have.LT(amount) {
		return fmt.Errorf("%w: %s of %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), tok, have, amount)
	}
	d := b.deltaFor(b.bals, balKey{tok, from})
	sum, err := num.Add(d.sub, amount)
	if err != nil {
		return fmt.Errorf("debit %s from %s: %w", tok, from.Hex(), err)
	}
	d.sub = sum
	return nil
}

// Transfer moves amount of tok from one holder to another.
// A zero amount is a no-op.
func (b *Batch) Transfer(tok Token, from, to common.Address, amount *num.Uint) error {
	if b.closed {
		return ErrBatchClosed
	}
	if amount.IsZero() {
		return nil
	}
	if err := b.debit(tok, from, amount); err != nil {
		return err
	}
	return b.credit(tok, to, amount)
}

// TransferFrom moves amount of from's tok on behalf of spender, consuming
// allowance.
func (b *Batch) TransferFrom(tok Token, spender, from, to common.Address, amount *num.Uint) error {
	if b.closed {
		return ErrBatchClosed
	}
	if amount.IsZero() {
		return nil
	}
	allowance := b.Allowance(tok, from, spender)
	left, err := num.Sub(allowance, amount)
	if err != nil {
		return fmt.Errorf("%w: %s allows %s of %s, needs %s", ErrInsufficientAllowance, from.Hex(), allowance, tok, amount)
	}
	if err := b.Transfer(tok, from, to, amount); err != nil {
		return err
	}
	b.Approve(tok, from, spender, left)
	return nil
}

// Mint creates amount of tok for to.
func (b *Batch) Mint(tok Token, to common.Address, amount *num.Uint) error {
	if b.closed {
		return ErrBatchClosed
	}
	if amount.IsZero() {
		return nil
	}
	d := b.supplyDelta(tok)
	sum, err := num.Add(d.add, amount)
	if err != nil {
		return fmt.Errorf("mint %s: %w", tok, err)
	}
	d.add = sum
	return b.credit(tok, to, amount)
}

// Burn destroys amount of from's tok.
func (b *Batch) Burn(tok Token, from common.Address, amount *num.Uint) error {
	if b.closed {
		return ErrBatchClosed
	}
	if amount.IsZero() {
		return nil
	}
	if err := b.debit(tok, from, amount); err != nil {
		return err
	}
	d := b.supplyDelta(tok)
	sum, err := num.Add(d.sub, amount)
	if err != nil {
		return fmt.Errorf("burn %s: %w", tok, err)
	}
	d.sub = sum
	return nil
}

// Commit applies every staged change atomically. On error nothing is
// applied and the batch stays open so the caller can Discard it.
func (b *Batch) Commit() error {
	if b.closed {
		return ErrBatchClosed
	}
	l := b.l
	l.mu.Lock()
	defer l.mu.Unlock()

	bals := make(map[balKey]*num.Uint, len(b.bals))
	for k, d := range b.bals {
		v, err := apply(l.balances[k], d)
		if err != nil {
			return fmt.Errorf("%w: %s of %s would go negative", ErrInsufficientBalance, k.holder.Hex(), k.token)
		}
		bals[k] = v
	}
	supply := make(map[Token]*num.Uint, len(b.supply))
	for tok, d := range b.supply {
		v, err := apply(l.supply[tok], d)
		if err != nil {
			return fmt.Errorf("supply of %s: %w", tok, err)
		}
		supply[tok] = v
	}

	if l.store != nil {
		if err := l.store.WriteChanges(bals, b.allows, supply); err != nil {
			return fmt.Errorf("failed to persist ledger batch: %w", err)
		}
	}

	for k, v := range bals {
		if v.IsZero() {
			delete(l.balances, k)
		} else {
			l.balances[k] = v
		}
	}
	for k, v := range b.allows {
		if v.IsZero() {
			delete(l.allowances, k)
		} else {
			l.allowances[k] = v.Clone()
		}
	}
	for tok, v := range supply {
		l.supply[tok] = v
	}
	b.closed = true
	return nil
}

// Discard drops the staged changes.
func (b *Batch) Discard() {
	b.closed = true
	b.bals = nil
	b.allows = nil
	b.supply = nil
}

// Empty reports whether nothing has been staged.
func (b *Batch) Empty() bool {
	return len(b.bals) == 0 && len(b.allows) == 0 && len(b.supply) == 0
}
