package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Key schema:
//
//   mkt:<market>                            → Market
//   ord:<market>:<orderID>                  → orderRecord
//   fill:<market>:<outcome>:<seq>:<fillID>  → Fill
//   fseq:<market>                           → last fill seq (8 bytes)
//   claim:<market>:<owner>:<unixNano>       → Claim
//
// Sequence numbers and timestamps are zero-padded so that keys sort in
// numeric order.
const (
	prefixMarket  = "mkt:"
	prefixOrder   = "ord:"
	prefixFill    = "fill:"
	prefixFillSeq = "fseq:"
	prefixClaim   = "claim:"
)

// Format: "mkt:{market}"
func marketKey(m common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixMarket, m.Hex()))
}

// Format: "ord:{market}:{orderID}"
func orderKey(m common.Address, id common.Hash) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixOrder, m.Hex(), id.Hex()))
}

// Format: "ord:{market}:"
func orderPrefix(m common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixOrder, m.Hex()))
}

// Format: "fill:{market}:{outcome}:{seq}:{fillID}"
func fillKey(m common.Address, outcome uint8, seq uint64, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%03d:%020d:%s", prefixFill, m.Hex(), outcome, seq, id))
}

// Format: "fill:{market}:{outcome}:"
func fillPrefix(m common.Address, outcome uint8) []byte {
	return []byte(fmt.Sprintf("%s%s:%03d:", prefixFill, m.Hex(), outcome))
}

// Format: "fseq:{market}"
func fillSeqKey(m common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixFillSeq, m.Hex()))
}

// Format: "claim:{market}:{owner}:{unixNano}"
func claimKey(m, owner common.Address, at int64) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%020d", prefixClaim, m.Hex(), owner.Hex(), at))
}

// Format: "claim:{market}:{owner}:"
func claimPrefix(m, owner common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:", prefixClaim, m.Hex(), owner.Hex()))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
