package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/uhyunpark/predictcore/pkg/app/core/account"
	"github.com/uhyunpark/predictcore/pkg/app/core/market"
	"github.com/uhyunpark/predictcore/pkg/app/core/orderbook"
	"github.com/uhyunpark/predictcore/pkg/app/core/trading"
)

const (
	defaultFillLimit = 50
	maxFillLimit     = 500
)

// ==============================
// Path and query parsing
// ==============================

func addressVar(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	v := mux.Vars(r)[name]
	if !common.IsHexAddress(v) {
		respondError(w, http.StatusBadRequest, "invalid "+name, v)
		return common.Address{}, false
	}
	return common.HexToAddress(v), true
}

// marketVar resolves the {market} path variable to a registered market.
func (s *Server) marketVar(w http.ResponseWriter, r *http.Request) (*market.Market, bool) {
	addr, ok := addressVar(w, r, "market")
	if !ok {
		return nil, false
	}
	m, err := s.app.Markets.Get(addr)
	if err != nil {
		s.respondErr(w, err)
		return nil, false
	}
	return m, true
}

func outcomeVar(w http.ResponseWriter, r *http.Request, m *market.Market) (uint8, bool) {
	v := mux.Vars(r)["outcome"]
	n, err := strconv.ParseUint(v, 10, 8)
	if err != nil || !m.ValidOutcome(uint8(n)) {
		respondError(w, http.StatusBadRequest, "invalid outcome", v)
		return 0, false
	}
	return uint8(n), true
}

func requireSender(w http.ResponseWriter, field string, addr common.Address) bool {
	if addr == (common.Address{}) {
		respondError(w, http.StatusBadRequest, "missing "+field, "")
		return false
	}
	return true
}

// ==============================
// Market Handlers
// ==============================

func (s *Server) handleGetMarkets(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.app.Markets.List())
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	m, ok := s.marketVar(w, r)
	if !ok {
		return
	}
	respondJSON(w, m)
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	m, ok := s.marketVar(w, r)
	if !ok {
		return
	}
	outcome, ok := outcomeVar(w, r, m)
	if !ok {
		return
	}

	snap := OrderbookSnapshot{
		Market:    m.Address,
		Outcome:   outcome,
		Bids:      s.app.Book.Levels(orderbook.BucketKey{Market: m.Address, Outcome: outcome, Side: orderbook.Bid}),
		Asks:      s.app.Book.Levels(orderbook.BucketKey{Market: m.Address, Outcome: outcome, Side: orderbook.Ask}),
		Timestamp: time.Now().UnixMilli(),
	}
	if snap.Bids == nil {
		snap.Bids = []orderbook.PriceLevel{}
	}
	if snap.Asks == nil {
		snap.Asks = []orderbook.PriceLevel{}
	}
	respondJSON(w, snap)
}

func (s *Server) handleGetFills(w http.ResponseWriter, r *http.Request) {
	m, ok := s.marketVar(w, r)
	if !ok {
		return
	}
	outcome, ok := outcomeVar(w, r, m)
	if !ok {
		return
	}
	limit := defaultFillLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", v)
			return
		}
		limit = min(n, maxFillLimit)
	}

	fills, err := s.app.Journal.LoadRecentFills(m.Address, outcome, limit)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if fills == nil {
		fills = []*trading.Fill{}
	}
	respondJSON(w, fills)
}

func (s *Server) handleClaimProceeds(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(w, r, "market")
	if !ok {
		return
	}
	var req SenderRequest
	if !decodeBody(w, r, &req) || !requireSender(w, "sender", req.Sender) {
		return
	}
	c, err := s.app.Exchange.ClaimProceeds(r.Context(), req.Sender, addr)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, c)
}

func (s *Server) handleGetClaims(w http.ResponseWriter, r *http.Request) {
	m, ok := s.marketVar(w, r)
	if !ok {
		return
	}
	owner, ok := addressVar(w, r, "address")
	if !ok {
		return
	}
	claims, err := s.app.Journal.LoadClaims(m.Address, owner)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if claims == nil {
		claims = []*trading.Claim{}
	}
	respondJSON(w, claims)
}

func (s *Server) handleEmergencyClaim(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(w, r, "market")
	if !ok {
		return
	}
	var req SenderRequest
	if !decodeBody(w, r, &req) || !requireSender(w, "sender", req.Sender) {
		return
	}
	c, err := s.app.Exchange.ClaimSharesInEmergency(r.Context(), req.Sender, addr)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, c)
}

// ==============================
// Order Handlers
// ==============================

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !decodeBody(w, r, &req) || !requireSender(w, "sender", req.Sender) {
		return
	}
	id, err := s.app.Exchange.CreateOrder(r.Context(), trading.CreateOrderRequest{
		Sender:        req.Sender,
		Side:          req.Side,
		Amount:        req.Amount,
		Price:         req.Price,
		Market:        req.Market,
		Outcome:       req.Outcome,
		BetterOrderID: req.BetterOrderID,
		WorseOrderID:  req.WorseOrderID,
		TradeGroupID:  req.TradeGroupID,
		Payment:       req.Payment,
	})
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, CreateOrderResponse{OrderID: id})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if !decodeBody(w, r, &req) || !requireSender(w, "sender", req.Sender) {
		return
	}
	if err := s.app.Exchange.CancelOrder(r.Context(), req.Sender, req.OrderID); err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "cancelled", "orderId": req.OrderID.Hex()})
}

func (s *Server) handleFillOrder(w http.ResponseWriter, r *http.Request) {
	var req FillOrderRequest
	if !decodeBody(w, r, &req) || !requireSender(w, "sender", req.Sender) {
		return
	}
	fill, remaining, err := s.app.Exchange.FillOrder(r.Context(), trading.FillOrderRequest{
		Sender:       req.Sender,
		OrderID:      req.OrderID,
		Amount:       req.Amount,
		TradeGroupID: req.TradeGroupID,
		Payment:      req.Payment,
	})
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, FillOrderResponse{Fill: fill, Remaining: remaining})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	v := mux.Vars(r)["id"]
	var id common.Hash
	if err := id.UnmarshalText([]byte(v)); err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", v)
		return
	}
	o, err := s.app.Exchange.Order(id)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, o)
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if !decodeBody(w, r, &req) || !requireSender(w, "sender", req.Sender) {
		return
	}
	tr := trading.TradeRequest{
		Sender:        req.Sender,
		Side:          req.Side,
		Amount:        req.Amount,
		LimitPrice:    req.LimitPrice,
		Market:        req.Market,
		Outcome:       req.Outcome,
		BetterOrderID: req.BetterOrderID,
		WorseOrderID:  req.WorseOrderID,
		TradeGroupID:  req.TradeGroupID,
		Payment:       req.Payment,
	}

	var (
		res *trading.TradeResult
		err error
	)
	if req.FillOnly {
		res, err = s.app.Exchange.FillBestOrder(r.Context(), tr)
	} else {
		res, err = s.app.Exchange.Trade(r.Context(), tr)
	}
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, res)
}

// ==============================
// Complete Set Handlers
// ==============================

func (s *Server) handleBuyCompleteSets(w http.ResponseWriter, r *http.Request) {
	var req CompleteSetsRequest
	if !decodeBody(w, r, &req) || !requireSender(w, "sender", req.Sender) {
		return
	}
	if err := s.app.Exchange.BuyCompleteSets(r.Context(), req.Sender, req.Market, req.Amount, req.Payment); err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleSellCompleteSets(w http.ResponseWriter, r *http.Request) {
	var req CompleteSetsRequest
	if !decodeBody(w, r, &req) || !requireSender(w, "sender", req.Sender) {
		return
	}
	proceeds, err := s.app.Exchange.SellCompleteSets(r.Context(), req.Sender, req.Market, req.Amount)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, SellCompleteSetsResponse{Proceeds: proceeds})
}

// ==============================
// Account Handlers
// ==============================

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(w, r, "address")
	if !ok {
		return
	}
	holdings := s.app.Ledger.Holdings(addr)
	if holdings == nil {
		holdings = []account.Holding{}
	}
	respondJSON(w, AccountInfo{
		Address:  addr,
		Cash:     s.app.Ledger.BalanceOf(account.Cash(), addr),
		Holdings: holdings,
	})
}

// handleGetAccountOrders lists an owner's resting orders in one market,
// given by the market query parameter.
func (s *Server) handleGetAccountOrders(w http.ResponseWriter, r *http.Request) {
	owner, ok := addressVar(w, r, "address")
	if !ok {
		return
	}
	mv := r.URL.Query().Get("market")
	if !common.IsHexAddress(mv) {
		respondError(w, http.StatusBadRequest, "invalid market", mv)
		return
	}
	orders := s.app.Book.OrdersByOwner(common.HexToAddress(mv), owner)
	if orders == nil {
		orders = []*orderbook.Order{}
	}
	respondJSON(w, orders)
}

// handleApprove sets the allowance the exchange has over the owner's
// shares of one outcome. Orders and trades only take shares up to it.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if !decodeBody(w, r, &req) || !requireSender(w, "owner", req.Owner) {
		return
	}
	m, err := s.app.Markets.Get(req.Market)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if !m.ValidOutcome(req.Outcome) {
		s.respondErr(w, trading.ErrInvalidOutcome)
		return
	}
	if req.Amount == nil {
		respondError(w, http.StatusBadRequest, "missing amount", "")
		return
	}
	spender := s.app.Exchange.Config().Address
	if err := s.app.Ledger.Approve(account.Share(m.Address, req.Outcome), req.Owner, spender, req.Amount); err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "ok", "spender": spender.Hex()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, NodeStatus{
		Stopped:       s.app.Control.Stopped(),
		Markets:       s.app.Markets.Count(),
		RestingOrders: s.app.Book.Len(),
		StateHash:     common.Hash(s.app.StateHash()),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Admin Handlers
// ==============================

func (s *Server) handleCreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := market.ParamsFor(market.Kind(req.Kind), req.Description, req.Creator, req.Outcomes, req.NumTicks)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if req.CreatorFeeDivisor != nil {
		p.CreatorFeeDivisor = req.CreatorFeeDivisor
	}
	if req.ReportingFeeDivisor != nil {
		p.ReportingFeeDivisor = req.ReportingFeeDivisor
	}
	m, err := s.app.CreateMarket(req.Address, p)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(m)
}

func (s *Server) handleFinalizeMarket(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(w, r, "market")
	if !ok {
		return
	}
	var req FinalizeMarketRequest
	if !decodeBody(w, r, &req) {
		return
	}
	m, err := s.app.FinalizeMarket(addr, req.PayoutNumerators)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, m)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(w, r, "address")
	if !ok {
		return
	}
	var req DepositRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.app.Ledger.Deposit(addr, req.Amount); err != nil {
		s.respondErr(w, err)
		return
	}
	s.log.Info("deposit", zap.String("holder", addr.Hex()), zap.Stringer("amount", req.Amount))
	respondJSON(w, AccountInfo{
		Address:  addr,
		Cash:     s.app.Ledger.BalanceOf(account.Cash(), addr),
		Holdings: s.app.Ledger.Holdings(addr),
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.app.Control.Stop()
	respondJSON(w, map[string]bool{"stopped": true})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.app.Control.Resume()
	respondJSON(w, map[string]bool{"stopped": false})
}
