package account

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/predictcore/pkg/num"
)

// Store provides Pebble-based persistence for ledger balances, allowances
// and supplies.
// Thread-safe: all writes go through Ledger's mutex
type Store struct {
	db   *pebble.DB
	sync bool
}

type balanceRecord struct {
	Token  Token          `json:"token"`
	Holder common.Address `json:"holder"`
	Amount *num.Uint      `json:"amount"`
}

type allowanceRecord struct {
	Token   Token          `json:"token"`
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Amount  *num.Uint      `json:"amount"`
}

type supplyRecord struct {
	Token  Token     `json:"token"`
	Amount *num.Uint `json:"amount"`
}

// NewStore opens a Pebble database at the given path. With sync set, every
// committed batch is fsynced before it becomes visible.
func NewStore(dbPath string, sync bool) (*Store, error) {
	opts := &pebble.Options{
		// Performance tuning
		Cache:                       pebble.NewCache(64 << 20), // 64MB cache
		MemTableSize:                32 << 20,                  // 32MB memtable
		MaxConcurrentCompactions:    func() int { return 2 },
		L0CompactionThreshold:       2,
		L0StopWritesThreshold:       12,
		LBaseMaxBytes:               64 << 20, // 64MB
		MaxOpenFiles:                1000,
		BytesPerSync:                512 << 10, // 512KB
		DisableAutomaticCompactions: false,
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}

	return &Store{db: db, sync: sync}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) writeOpts() *pebble.WriteOptions {
	if s.sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

// LoadInto reads every persisted record into the ledger maps.
// Called once before the ledger is shared.
func (s *Store) LoadInto(l *Ledger) error {
	if err := s.scan([]byte(prefixBalance), func(v []byte) error {
		var r balanceRecord
		if err := json.Unmarshal(v, &r); err != nil {
			return fmt.Errorf("failed to unmarshal balance: %w", err)
		}
		l.balances[balKey{r.Token, r.Holder}] = r.Amount
		return nil
	}); err != nil {
		return err
	}
	if err := s.scan([]byte(prefixAllowance), func(v []byte) error {
		var r allowanceRecord
		if err := json.Unmarshal(v, &r); err != nil {
			return fmt.Errorf("failed to unmarshal allowance: %w", err)
		}
		l.allowances[allowKey{r.Token, r.Owner, r.Spender}] = r.Amount
		return nil
	}); err != nil {
		return err
	}
	return s.scan([]byte(prefixSupply), func(v []byte) error {
		var r supplyRecord
		if err := json.Unmarshal(v, &r); err != nil {
			return fmt.Errorf("failed to unmarshal supply: %w", err)
		}
		l.supply[r.Token] = r.Amount
		return nil
	})
}

func (s *Store) scan(prefix []byte, fn func(value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// WriteChanges persists final values for every touched key in one batch.
// Zero values delete their key.
func (s *Store) WriteChanges(bals map[balKey]*num.Uint, allows map[allowKey]*num.Uint, supply map[Token]*num.Uint) error {
	bw := s.NewBatch()
	defer bw.Close()

	for k, v := range bals {
		if err := bw.SaveBalance(k.token, k.holder, v); err != nil {
			return err
		}
	}
	for k, v := range allows {
		if err := bw.SaveAllowance(k.token, k.owner, k.spender, v); err != nil {
			return err
		}
	}
	for tok, v := range supply {
		if err := bw.SaveSupply(tok, v); err != nil {
			return err
		}
	}
	return bw.Commit()
}

// BatchWrite provides atomic batch writes for multiple operations
type BatchWrite struct {
	batch *pebble.Batch
	store *Store
}

// NewBatch creates a new batch writer
func (s *Store) NewBatch() *BatchWrite {
	return &BatchWrite{
		batch: s.db.NewBatch(),
		store: s,
	}
}

func (bw *BatchWrite) put(key []byte, zero bool, record any) error {
	if zero {
		return bw.batch.Delete(key, nil)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return bw.batch.Set(key, data, nil)
}

// SaveBalance adds a balance save to the batch
func (bw *BatchWrite) SaveBalance(tok Token, holder common.Address, amount *num.Uint) error {
	return bw.put(balanceKey(tok, holder), amount.IsZero(), balanceRecord{tok, holder, amount})
}

// SaveAllowance adds an allowance save to the batch
func (bw *BatchWrite) SaveAllowance(tok Token, owner, spender common.Address, amount *num.Uint) error {
	return bw.put(allowanceKey(tok, owner, spender), amount.IsZero(), allowanceRecord{tok, owner, spender, amount})
}

// SaveSupply adds a supply save to the batch
func (bw *BatchWrite) SaveSupply(tok Token, amount *num.Uint) error {
	return bw.put(supplyKey(tok), amount.IsZero(), supplyRecord{tok, amount})
}

// Commit writes the batch to Pebble atomically
func (bw *BatchWrite) Commit() error {
	return bw.batch.Commit(bw.store.writeOpts())
}

// Close closes the batch without committing
func (bw *BatchWrite) Close() error {
	return bw.batch.Close()
}
