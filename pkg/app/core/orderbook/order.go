package orderbook

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/predictcore/pkg/num"
)

// Side is the direction of an order. The zero value is invalid.
type Side uint8

const (
	Bid Side = iota + 1 // buy the outcome
	Ask                 // sell the outcome
)

func (s Side) Valid() bool { return s == Bid || s == Ask }

// Opposite returns the side a taker of s matches against.
func (s Side) Opposite() Side {
	switch s {
	case Bid:
		return Ask
	case Ask:
		return Bid
	}
	return s
}

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	}
	return fmt.Sprintf("side(%d)", uint8(s))
}

func (s Side) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid side %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "bid", "buy", "long":
		*s = Bid
	case "ask", "sell", "short":
		*s = Ask
	default:
		return fmt.Errorf("invalid side %q", string(b))
	}
	return nil
}

// Order is a resting limit order.
//
// Escrow: BID orders hold `price` cash per share or one share of every other
// outcome; ASK orders hold `numTicks - price` cash per share or one share of
// the order's own outcome. Shares are always consumed before cash, so for a
// live order CashEscrowed == (Amount - SharesEscrowed) * unit cost.
type Order struct {
	ID             common.Hash    `json:"id"`
	Side           Side           `json:"side"`
	Market         common.Address `json:"market"`
	Outcome        uint8          `json:"outcome"`
	Owner          common.Address `json:"owner"`
	Amount         *num.Uint      `json:"amount"`
	Price          *num.Uint      `json:"price"`
	CashEscrowed   *num.Uint      `json:"cashEscrowed"`
	SharesEscrowed *num.Uint      `json:"sharesEscrowed"`
	TradeGroupID   string         `json:"tradeGroupId,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`

	// Populated on reads from the book; zero when the order is at that end.
	BetterOrderID common.Hash `json:"betterOrderId"`
	WorseOrderID  common.Hash `json:"worseOrderId"`
}

// Key returns the bucket the order rests in.
func (o *Order) Key() BucketKey {
	return BucketKey{Market: o.Market, Outcome: o.Outcome, Side: o.Side}
}

// Clone returns a deep copy.
func (o *Order) Clone() *Order {
	cp := *o
	cp.Amount = o.Amount.Clone()
	cp.Price = o.Price.Clone()
	cp.CashEscrowed = o.CashEscrowed.Clone()
	cp.SharesEscrowed = o.SharesEscrowed.Clone()
	return &cp
}

// Crosses reports whether a taker on the opposite side with the given limit
// price can trade against o.
func (o *Order) Crosses(limit *num.Uint) bool {
	if o.Side == Ask {
		return o.Price.LTE(limit)
	}
	return o.Price.GTE(limit)
}
