package account

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema for the ledger snapshot
// Design principles:
// 1. Prefix-based for range scans (load everything of one kind at startup)
// 2. Token first so one market's balances sort together
// 3. Values are self-describing JSON records, keys are only for placement

// Key prefixes
const (
	prefixBalance   = "bal:" // Token balances
	prefixAllowance = "alw:" // Spending allowances
	prefixSupply    = "sup:" // Token supplies
)

// balanceKey returns the key for a balance
// Format: "bal:{token}:{holder}"
// Example: "bal:0x00aa...:1:0x742d35cc..." or "bal:cash:0x742d35cc..."
func balanceKey(tok Token, holder common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, tok, holder.Hex()))
}

// allowanceKey returns the key for an allowance
// Format: "alw:{token}:{owner}:{spender}"
func allowanceKey(tok Token, owner, spender common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixAllowance, tok, owner.Hex(), spender.Hex()))
}

// supplyKey returns the key for a token supply
// Format: "sup:{token}"
func supplyKey(tok Token) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixSupply, tok))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
// Example: prefix "bal:" -> upper bound "bal;" (next byte after ':')
// This ensures the iterator stops at the right boundary
func keyUpperBound(prefix []byte) []byte {
	// Create a copy and increment the last byte
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
