// Package api serves the exchange over REST and WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/predictcore/params"
	"github.com/uhyunpark/predictcore/pkg/app/core/account"
	"github.com/uhyunpark/predictcore/pkg/app/core/market"
	"github.com/uhyunpark/predictcore/pkg/app/core/trading"
	"github.com/uhyunpark/predictcore/pkg/app/predict"
)

// Server handles REST API and WebSocket connections
type Server struct {
	app    *predict.App
	router *mux.Router
	hub    *Hub
	cfg    params.API
	log    *zap.Logger
	srv    *http.Server
}

// NewServer wires routes for app. hub must also be registered as a listener
// on the app's exchange for WebSocket clients to receive events.
func NewServer(app *predict.App, hub *Hub, cfg params.API, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		app:    app,
		router: mux.NewRouter(),
		hub:    hub,
		cfg:    cfg,
		log:    log.Named("api"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.instrument)

	// Markets
	api.HandleFunc("/markets", s.handleGetMarkets).Methods("GET")
	api.HandleFunc("/markets/{market}", s.handleGetMarket).Methods("GET")
	api.HandleFunc("/markets/{market}/outcomes/{outcome}/book", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/markets/{market}/outcomes/{outcome}/fills", s.handleGetFills).Methods("GET")
	api.HandleFunc("/markets/{market}/claim", s.handleClaimProceeds).Methods("POST")
	api.HandleFunc("/markets/{market}/claims/{address}", s.handleGetClaims).Methods("GET")
	api.HandleFunc("/markets/{market}/emergency-claim", s.handleEmergencyClaim).Methods("POST")

	// Orders
	api.HandleFunc("/orders", s.handleCreateOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/fill", s.handleFillOrder).Methods("POST")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/trade", s.handleTrade).Methods("POST")

	// Complete sets
	api.HandleFunc("/complete-sets/buy", s.handleBuyCompleteSets).Methods("POST")
	api.HandleFunc("/complete-sets/sell", s.handleSellCompleteSets).Methods("POST")

	// Accounts
	api.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/accounts/{address}/orders", s.handleGetAccountOrders).Methods("GET")
	api.HandleFunc("/approvals", s.handleApprove).Methods("POST")

	api.HandleFunc("/status", s.handleStatus).Methods("GET")

	if s.cfg.Admin {
		admin := api.PathPrefix("/admin").Subrouter()
		admin.HandleFunc("/markets", s.handleCreateMarket).Methods("POST")
		admin.HandleFunc("/markets/{market}/finalize", s.handleFinalizeMarket).Methods("POST")
		admin.HandleFunc("/accounts/{address}/deposit", s.handleDeposit).Methods("POST")
		admin.HandleFunc("/stop", s.handleStop).Methods("POST")
		admin.HandleFunc("/resume", s.handleResume).Methods("POST")
	}

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.Handle("/metrics", s.app.Metrics.Handler()).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(s.router)
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("server_starting", zap.String("addr", s.cfg.Addr), zap.Bool("admin", s.cfg.Admin))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// ==============================
// Middleware
// ==============================

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument counts requests by route template and status code.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.app.Metrics.APIRequest(route, strconv.Itoa(rec.code))
	})
}

// ==============================
// Helper Functions
// ==============================

const maxBodyBytes = 1 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}

// respondErr maps an exchange error onto an HTTP status and reports its kind
// and the full message, which names the offending operand.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status, kind := classify(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request_failed", zap.Error(err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(status),
		Kind:    kind,
		Message: err.Error(),
	})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, market.ErrMarketExists):
		return http.StatusConflict, "conflict"
	case errors.Is(err, market.ErrInvalidStatusChange):
		return http.StatusConflict, trading.KindState.String()
	case errors.Is(err, market.ErrInvalidMarket), errors.Is(err, market.ErrInvalidPayout),
		errors.Is(err, account.ErrInvalidAmount):
		return http.StatusBadRequest, trading.KindValidation.String()
	}

	kind := trading.KindOf(err)
	switch kind {
	case trading.KindValidation:
		return http.StatusBadRequest, kind.String()
	case trading.KindAuthorization:
		return http.StatusForbidden, kind.String()
	case trading.KindResource, trading.KindArithmetic:
		return http.StatusUnprocessableEntity, kind.String()
	case trading.KindNotFound:
		return http.StatusNotFound, kind.String()
	case trading.KindState:
		return http.StatusConflict, kind.String()
	}
	return http.StatusInternalServerError, kind.String()
}
