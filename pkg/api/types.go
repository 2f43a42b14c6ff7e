package api

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/predictcore/pkg/app/core/account"
	"github.com/uhyunpark/predictcore/pkg/app/core/orderbook"
	"github.com/uhyunpark/predictcore/pkg/app/core/trading"
	"github.com/uhyunpark/predictcore/pkg/num"
)

// API request and response types. Quantities travel as base-10 strings,
// addresses and ids as 0x-prefixed hex.

// ==============================
// REST Request Types
// ==============================

type CreateOrderRequest struct {
	Sender        common.Address `json:"sender"`
	Side          orderbook.Side `json:"side"` // "bid" or "ask"
	Amount        *num.Uint      `json:"amount"`
	Price         *num.Uint      `json:"price"`
	Market        common.Address `json:"market"`
	Outcome       uint8          `json:"outcome"`
	BetterOrderID common.Hash    `json:"betterOrderId"`
	WorseOrderID  common.Hash    `json:"worseOrderId"`
	TradeGroupID  string         `json:"tradeGroupId"`
	Payment       *num.Uint      `json:"payment"` // optional cap on cash pulled
}

// TradeRequest takes liquidity and rests the remainder, unless FillOnly is
// set, in which case the remainder is dropped.
type TradeRequest struct {
	Sender        common.Address `json:"sender"`
	Side          orderbook.Side `json:"side"`
	Amount        *num.Uint      `json:"amount"`
	LimitPrice    *num.Uint      `json:"limitPrice"`
	Market        common.Address `json:"market"`
	Outcome       uint8          `json:"outcome"`
	BetterOrderID common.Hash    `json:"betterOrderId"`
	WorseOrderID  common.Hash    `json:"worseOrderId"`
	TradeGroupID  string         `json:"tradeGroupId"`
	Payment       *num.Uint      `json:"payment"`
	FillOnly      bool           `json:"fillOnly"`
}

type FillOrderRequest struct {
	Sender       common.Address `json:"sender"`
	OrderID      common.Hash    `json:"orderId"`
	Amount       *num.Uint      `json:"amount"`
	TradeGroupID string         `json:"tradeGroupId"`
	Payment      *num.Uint      `json:"payment"`
}

type CancelOrderRequest struct {
	Sender  common.Address `json:"sender"`
	OrderID common.Hash    `json:"orderId"`
}

type CompleteSetsRequest struct {
	Sender  common.Address `json:"sender"`
	Market  common.Address `json:"market"`
	Amount  *num.Uint      `json:"amount"`
	Payment *num.Uint      `json:"payment"` // buys only
}

// SenderRequest is the body of per-market calls that only need a caller.
type SenderRequest struct {
	Sender common.Address `json:"sender"`
}

// ApproveRequest lets the exchange move Owner's shares of one outcome.
type ApproveRequest struct {
	Owner   common.Address `json:"owner"`
	Market  common.Address `json:"market"`
	Outcome uint8          `json:"outcome"`
	Amount  *num.Uint      `json:"amount"`
}

// Admin requests

type DepositRequest struct {
	Amount *num.Uint `json:"amount"`
}

type CreateMarketRequest struct {
	Address             common.Address `json:"address"`
	Kind                string         `json:"kind"` // binary, categorical or scalar
	Description         string         `json:"description"`
	Creator             common.Address `json:"creator"`
	Outcomes            uint8          `json:"outcomes"`
	NumTicks            *num.Uint      `json:"numTicks"`
	CreatorFeeDivisor   *num.Uint      `json:"creatorFeeDivisor"`
	ReportingFeeDivisor *num.Uint      `json:"reportingFeeDivisor"`
}

type FinalizeMarketRequest struct {
	PayoutNumerators []*num.Uint `json:"payoutNumerators"`
}

// ==============================
// REST Response Types
// ==============================

// OrderbookSnapshot is one outcome's book, best levels first on both sides.
type OrderbookSnapshot struct {
	Market    common.Address         `json:"market"`
	Outcome   uint8                  `json:"outcome"`
	Bids      []orderbook.PriceLevel `json:"bids"` // high to low
	Asks      []orderbook.PriceLevel `json:"asks"` // low to high
	Timestamp int64                  `json:"timestamp"` // Unix milliseconds
}

type AccountInfo struct {
	Address  common.Address    `json:"address"`
	Cash     *num.Uint         `json:"cash"`
	Holdings []account.Holding `json:"holdings"`
}

type CreateOrderResponse struct {
	OrderID common.Hash `json:"orderId"`
}

type FillOrderResponse struct {
	Fill      *trading.Fill `json:"fill"`
	Remaining *num.Uint     `json:"remaining"`
}

type SellCompleteSetsResponse struct {
	Proceeds *num.Uint `json:"proceeds"`
}

type NodeStatus struct {
	Stopped       bool        `json:"stopped"`
	Markets       int         `json:"markets"`
	RestingOrders int         `json:"restingOrders"`
	StateHash     common.Hash `json:"stateHash"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest subscribes to or unsubscribes from channels:
//
//	fills:<market>:<outcome>   every fill in that outcome
//	orders:<market>:<outcome>  every resting-order change in that outcome
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

type WSFill struct {
	Type    string        `json:"type"` // "fill"
	Channel string        `json:"channel"`
	Fill    *trading.Fill `json:"fill"`
}

type WSOrderEvent struct {
	Type    string             `json:"type"` // "order"
	Channel string             `json:"channel"`
	Event   trading.OrderEvent `json:"event"`
}
