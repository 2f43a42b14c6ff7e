package trading

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/predictcore/pkg/app/core/orderbook"
	"github.com/uhyunpark/predictcore/pkg/app/core/settlement"
	"github.com/uhyunpark/predictcore/pkg/num"
)

// CreateOrderRequest places a resting order without matching.
//
// Payment caps the cash pulled from the sender's balance; nil means no cap.
// BetterOrderID and WorseOrderID are optional position hints.
type CreateOrderRequest struct {
	Sender        common.Address
	Side          orderbook.Side
	Amount        *num.Uint
	Price         *num.Uint
	Market        common.Address
	Outcome       uint8
	BetterOrderID common.Hash
	WorseOrderID  common.Hash
	TradeGroupID  string
	Payment       *num.Uint
}

// TradeRequest matches against the opposite side and rests any remainder.
// Side is the taker's side: Bid buys the outcome, Ask sells it.
type TradeRequest struct {
	Sender        common.Address
	Side          orderbook.Side
	Amount        *num.Uint
	LimitPrice    *num.Uint
	Market        common.Address
	Outcome       uint8
	BetterOrderID common.Hash
	WorseOrderID  common.Hash
	TradeGroupID  string
	Payment       *num.Uint
}

// TradeResult reports the outcome of Trade and FillBestOrder.
// OrderID is the zero hash when nothing was left resting.
type TradeResult struct {
	OrderID         common.Hash `json:"orderId"`
	Fills           []*Fill     `json:"fills"`
	AmountFilled    *num.Uint   `json:"amountFilled"`
	AmountRemaining *num.Uint   `json:"amountRemaining"`
}

// FillOrderRequest takes up to Amount from one specific resting order.
type FillOrderRequest struct {
	Sender       common.Address
	OrderID      common.Hash
	Amount       *num.Uint
	TradeGroupID string
	Payment      *num.Uint
}

// Fill records one match between a resting order and a taker.
//
// Shares and cash are what each party delivered; payouts are what each
// party received in cash from destroyed complete sets.
type Fill struct {
	ID           string           `json:"id"`
	OrderID      common.Hash      `json:"orderId"`
	Market       common.Address   `json:"market"`
	Outcome      uint8            `json:"outcome"`
	MakerSide    orderbook.Side   `json:"makerSide"`
	Maker        common.Address   `json:"maker"`
	Taker        common.Address   `json:"taker"`
	Price        *num.Uint        `json:"price"`
	Amount       *num.Uint        `json:"amount"`
	MakerShares  *num.Uint        `json:"makerShares"`
	MakerCash    *num.Uint        `json:"makerCash"`
	TakerShares  *num.Uint        `json:"takerShares"`
	TakerCash    *num.Uint        `json:"takerCash"`
	MakerPayout  *num.Uint        `json:"makerPayout"`
	TakerPayout  *num.Uint        `json:"takerPayout"`
	CreatorFee   *num.Uint        `json:"creatorFee"`
	ReportingFee *num.Uint        `json:"reportingFee"`
	Legs         []settlement.Leg `json:"legs"`
	TradeGroupID string           `json:"tradeGroupId,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
	// Seq orders fills within a market; assigned at commit.
	Seq uint64 `json:"seq"`
}

// Claim records a proceeds redemption.
type Claim struct {
	Market       common.Address        `json:"market"`
	Owner        common.Address        `json:"owner"`
	Winnings     []settlement.Winnings `json:"winnings"`
	Payout       *num.Uint             `json:"payout"`
	CreatorFee   *num.Uint             `json:"creatorFee"`
	ReportingFee *num.Uint             `json:"reportingFee"`
	ClaimedAt    time.Time             `json:"claimedAt"`
}

// EmergencyClaim records the escape-hatch exit of a sender from a market:
// its cancelled orders and the outcome balances bought back for cash.
type EmergencyClaim struct {
	Market         common.Address `json:"market"`
	Owner          common.Address `json:"owner"`
	Orders         []common.Hash  `json:"orders"`
	CashRefunded   *num.Uint      `json:"cashRefunded"`
	SharesRefunded *num.Uint      `json:"sharesRefunded"`
	Liquidated     []Liquidation  `json:"liquidated"`
	Proceeds       *num.Uint      `json:"proceeds"`
}

// Liquidation is one outcome balance burned at its frozen share value.
type Liquidation struct {
	Outcome  uint8     `json:"outcome"`
	Amount   *num.Uint `json:"amount"`
	Value    *num.Uint `json:"value"`
	Proceeds *num.Uint `json:"proceeds"`
}

// OrderEventType names a change to a resting order.
type OrderEventType string

const (
	OrderCreated   OrderEventType = "created"
	OrderUpdated   OrderEventType = "updated"
	OrderFilled    OrderEventType = "filled"
	OrderCancelled OrderEventType = "cancelled"
)

// OrderEvent is emitted after commit for every order touched by a call.
type OrderEvent struct {
	Type  OrderEventType   `json:"type"`
	Order *orderbook.Order `json:"order"`
}
