package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/predictcore/params"
	"github.com/uhyunpark/predictcore/pkg/app/core/account"
	"github.com/uhyunpark/predictcore/pkg/app/core/trading"
	"github.com/uhyunpark/predictcore/pkg/app/predict"
)

var (
	alice   = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob     = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol   = common.HexToAddress("0x0000000000000000000000000000000000000ca1")
	creator = common.HexToAddress("0x000000000000000000000000000000000000c0de")
	mkt     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

type testEnv struct {
	t   *testing.T
	app *predict.App
	hub *Hub
	ts  *httptest.Server
}

func newTestEnv(t *testing.T, admin bool) *testEnv {
	t.Helper()
	cfg := params.Default()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Storage.Sync = false
	cfg.API.Admin = admin
	cfg.Markets = []params.MarketSeed{{
		Address:     mkt.Hex(),
		Kind:        "binary",
		Description: "rain tomorrow",
		Creator:     creator.Hex(),
	}}

	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	app, err := predict.NewApp(cfg, nil, trading.WithListener(hub))
	require.NoError(t, err)

	srv := NewServer(app, hub, cfg.API, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		app.Close()
	})
	return &testEnv{t: t, app: app, hub: hub, ts: ts}
}

// do sends body as JSON and returns the status and the raw response.
func (e *testEnv) do(method, path string, body any) (int, []byte) {
	e.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rd)
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(e.t, err)
	return resp.StatusCode, raw
}

// call expects status want and decodes the response into out, if non-nil.
func (e *testEnv) call(method, path string, body any, want int, out any) {
	e.t.Helper()
	code, raw := e.do(method, path, body)
	require.Equal(e.t, want, code, "%s %s: %s", method, path, raw)
	if out != nil {
		require.NoError(e.t, json.Unmarshal(raw, out))
	}
}

func (e *testEnv) deposit(who common.Address, amount string) {
	e.t.Helper()
	e.call("POST", "/api/v1/admin/accounts/"+who.Hex()+"/deposit", map[string]string{"amount": amount}, http.StatusOK, nil)
}

func orderBody(who common.Address, side, amount, price string) map[string]any {
	return map[string]any{
		"sender":  who.Hex(),
		"side":    side,
		"amount":  amount,
		"price":   price,
		"market":  mkt.Hex(),
		"outcome": 1,
	}
}

func tradeBody(who common.Address, side, amount, limit string) map[string]any {
	return map[string]any{
		"sender":     who.Hex(),
		"side":       side,
		"amount":     amount,
		"limitPrice": limit,
		"market":     mkt.Hex(),
		"outcome":    1,
	}
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	e := newTestEnv(t, true)
	e.deposit(alice, "1000000")
	e.deposit(bob, "1000000")

	var created CreateOrderResponse
	e.call("POST", "/api/v1/orders", orderBody(alice, "ask", "10", "6000"), http.StatusOK, &created)
	require.NotEqual(t, common.Hash{}, created.OrderID)

	var book struct {
		Bids []struct{ Price, Amount string }
		Asks []struct {
			Price, Amount string
			Orders        int
		}
	}
	e.call("GET", "/api/v1/markets/"+mkt.Hex()+"/outcomes/1/book", nil, http.StatusOK, &book)
	assert.Empty(t, book.Bids)
	require.Len(t, book.Asks, 1)
	assert.Equal(t, "6000", book.Asks[0].Price)
	assert.Equal(t, "10", book.Asks[0].Amount)
	assert.Equal(t, 1, book.Asks[0].Orders)

	var res struct {
		OrderID      common.Hash
		AmountFilled string
		Fills        []struct {
			Price  string
			Amount string
			Legs   []struct{ Kind string }
		}
	}
	e.call("POST", "/api/v1/trade", tradeBody(bob, "bid", "4", "6000"), http.StatusOK, &res)
	require.Len(t, res.Fills, 1)
	assert.Equal(t, "4", res.AmountFilled)
	assert.Equal(t, "6000", res.Fills[0].Price)
	assert.Equal(t, "cash_to_cash", res.Fills[0].Legs[0].Kind)
	assert.Equal(t, common.Hash{}, res.OrderID)

	var fills []map[string]any
	e.call("GET", "/api/v1/markets/"+mkt.Hex()+"/outcomes/1/fills?limit=10", nil, http.StatusOK, &fills)
	assert.Len(t, fills, 1)

	var order struct{ Amount string }
	e.call("GET", "/api/v1/orders/"+created.OrderID.Hex(), nil, http.StatusOK, &order)
	assert.Equal(t, "6", order.Amount)

	var mine []map[string]any
	e.call("GET", "/api/v1/accounts/"+alice.Hex()+"/orders?market="+mkt.Hex(), nil, http.StatusOK, &mine)
	assert.Len(t, mine, 1)

	var errResp ErrorResponse
	cancel := map[string]string{"sender": bob.Hex(), "orderId": created.OrderID.Hex()}
	e.call("POST", "/api/v1/orders/cancel", cancel, http.StatusForbidden, &errResp)
	assert.Equal(t, "authorization", errResp.Kind)

	cancel["sender"] = alice.Hex()
	e.call("POST", "/api/v1/orders/cancel", cancel, http.StatusOK, nil)
	e.call("GET", "/api/v1/orders/"+created.OrderID.Hex(), nil, http.StatusNotFound, &errResp)
	assert.Equal(t, "not_found", errResp.Kind)

	// alice escrowed 10*4000, got 6*4000 back and holds 4 "no" shares
	var acct struct {
		Cash     string
		Holdings []struct {
			Token struct {
				IsShare bool
				Outcome int
			}
			Balance string
		}
	}
	e.call("GET", "/api/v1/accounts/"+alice.Hex(), nil, http.StatusOK, &acct)
	assert.Equal(t, "984000", acct.Cash)
	require.Len(t, acct.Holdings, 2)
	assert.True(t, acct.Holdings[1].Token.IsShare)
	assert.Equal(t, 0, acct.Holdings[1].Token.Outcome)
	assert.Equal(t, "4", acct.Holdings[1].Balance)
}

func TestFillOrderOverHTTP(t *testing.T) {
	e := newTestEnv(t, true)
	e.deposit(alice, "1000000")
	e.deposit(bob, "1000000")

	var created CreateOrderResponse
	e.call("POST", "/api/v1/orders", orderBody(alice, "bid", "5", "3000"), http.StatusOK, &created)

	var filled struct {
		Fill      struct{ Amount string }
		Remaining string
	}
	e.call("POST", "/api/v1/orders/fill", map[string]string{
		"sender": bob.Hex(), "orderId": created.OrderID.Hex(), "amount": "8",
	}, http.StatusOK, &filled)
	assert.Equal(t, "5", filled.Fill.Amount)
	assert.Equal(t, "3", filled.Remaining)

	// fill-only trades drop what the book cannot take
	var res struct {
		OrderID         common.Hash
		AmountRemaining string
	}
	e.call("POST", "/api/v1/orders", orderBody(alice, "bid", "2", "3000"), http.StatusOK, nil)
	body := tradeBody(bob, "ask", "5", "3000")
	body["fillOnly"] = true
	e.call("POST", "/api/v1/trade", body, http.StatusOK, &res)
	assert.Equal(t, common.Hash{}, res.OrderID)
	assert.Equal(t, "3", res.AmountRemaining)
	assert.Zero(t, e.app.Book.Len())
}

func TestErrorMapping(t *testing.T) {
	e := newTestEnv(t, true)
	e.deposit(alice, "1000000")

	unknown := common.HexToAddress("0xdead")
	tests := []struct {
		name   string
		path   string
		body   any
		status int
		kind   string
	}{
		{"zero price", "/api/v1/orders", orderBody(alice, "bid", "1", "0"), http.StatusBadRequest, "validation"},
		{"price at numTicks", "/api/v1/orders", orderBody(alice, "ask", "1", "10000"), http.StatusBadRequest, "validation"},
		{"zero amount", "/api/v1/orders", orderBody(alice, "bid", "0", "5000"), http.StatusBadRequest, "validation"},
		{"no funds", "/api/v1/orders", orderBody(carol, "bid", "1", "5000"), http.StatusUnprocessableEntity, "insufficient_resource"},
		{"unknown market", "/api/v1/trade", map[string]any{
			"sender": alice.Hex(), "side": "bid", "amount": "1", "limitPrice": "5000", "market": unknown.Hex(),
		}, http.StatusNotFound, "not_found"},
		{"unknown order", "/api/v1/orders/cancel", map[string]string{
			"sender": alice.Hex(), "orderId": common.Hash{1}.Hex(),
		}, http.StatusNotFound, "not_found"},
		{"sell sets without shares", "/api/v1/complete-sets/sell", map[string]string{
			"sender": alice.Hex(), "market": mkt.Hex(), "amount": "1",
		}, http.StatusUnprocessableEntity, "insufficient_resource"},
		{"claim before finalization", "/api/v1/markets/" + mkt.Hex() + "/claim", map[string]string{
			"sender": alice.Hex(),
		}, http.StatusConflict, "state"},
		{"emergency claim while running", "/api/v1/markets/" + mkt.Hex() + "/emergency-claim", map[string]string{
			"sender": alice.Hex(),
		}, http.StatusConflict, "state"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp ErrorResponse
			e.call("POST", tt.path, tt.body, tt.status, &resp)
			assert.Equal(t, tt.kind, resp.Kind)
			assert.NotEmpty(t, resp.Message)
		})
	}

	// malformed requests never reach the exchange
	code, _ := e.do("POST", "/api/v1/orders", map[string]any{"sender": alice.Hex(), "bogus": 1})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = e.do("POST", "/api/v1/orders", orderBody(common.Address{}, "bid", "1", "5000"))
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = e.do("POST", "/api/v1/orders", orderBody(alice, "sideways", "1", "5000"))
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = e.do("GET", "/api/v1/markets/"+mkt.Hex()+"/outcomes/2/book", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = e.do("GET", "/api/v1/orders/0x1234", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	assert.Equal(t, "1000000", e.app.Ledger.BalanceOf(account.Cash(), alice).String())
}

func TestCompleteSetsFinalizeAndClaim(t *testing.T) {
	e := newTestEnv(t, true)
	e.deposit(alice, "1000000")

	e.call("POST", "/api/v1/complete-sets/buy", map[string]string{
		"sender": alice.Hex(), "market": mkt.Hex(), "amount": "10",
	}, http.StatusOK, nil)

	var sold SellCompleteSetsResponse
	e.call("POST", "/api/v1/complete-sets/sell", map[string]string{
		"sender": alice.Hex(), "market": mkt.Hex(), "amount": "3",
	}, http.StatusOK, &sold)
	// 30000 less 1% creator and 0.01% reporting fees
	assert.Equal(t, "29697", sold.Proceeds.String())

	var m struct {
		Status           string
		PayoutNumerators []string
	}
	e.call("POST", "/api/v1/admin/markets/"+mkt.Hex()+"/finalize", map[string]any{
		"payoutNumerators": []string{"0", "10000"},
	}, http.StatusOK, &m)
	assert.Equal(t, "Finalized", m.Status)

	var errResp ErrorResponse
	e.call("POST", "/api/v1/admin/markets/"+mkt.Hex()+"/finalize", map[string]any{
		"payoutNumerators": []string{"10000", "0"},
	}, http.StatusConflict, &errResp)

	// trading stops once finalized
	e.call("POST", "/api/v1/orders", orderBody(alice, "bid", "1", "5000"), http.StatusConflict, &errResp)
	assert.Equal(t, "state", errResp.Kind)

	// the default waiting period has not passed
	e.call("POST", "/api/v1/markets/"+mkt.Hex()+"/claim", map[string]string{"sender": alice.Hex()}, http.StatusConflict, &errResp)
	assert.Contains(t, errResp.Message, "waiting period")

	var claims []map[string]any
	e.call("GET", "/api/v1/markets/"+mkt.Hex()+"/claims/"+alice.Hex(), nil, http.StatusOK, &claims)
	assert.Empty(t, claims)
}

func TestAdminMarketsAndStopSwitch(t *testing.T) {
	e := newTestEnv(t, true)
	e.deposit(alice, "1000000")

	other := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	var m struct {
		NumOutcomes int
		NumTicks    string
	}
	e.call("POST", "/api/v1/admin/markets", map[string]any{
		"address": other.Hex(), "kind": "categorical", "outcomes": 4, "description": "who wins",
	}, http.StatusCreated, &m)
	assert.Equal(t, 4, m.NumOutcomes)
	assert.Equal(t, "10000", m.NumTicks)

	var errResp ErrorResponse
	e.call("POST", "/api/v1/admin/markets", map[string]any{"address": other.Hex()}, http.StatusConflict, &errResp)
	e.call("POST", "/api/v1/admin/markets", map[string]any{
		"address": common.HexToAddress("0xcc").Hex(), "kind": "categorical", "outcomes": 1,
	}, http.StatusBadRequest, &errResp)

	var markets []map[string]any
	e.call("GET", "/api/v1/markets", nil, http.StatusOK, &markets)
	assert.Len(t, markets, 2)

	e.call("POST", "/api/v1/admin/stop", nil, http.StatusOK, nil)
	var st NodeStatus
	e.call("GET", "/api/v1/status", nil, http.StatusOK, &st)
	assert.True(t, st.Stopped)
	assert.Equal(t, 2, st.Markets)

	e.call("POST", "/api/v1/orders", orderBody(alice, "bid", "1", "5000"), http.StatusConflict, &errResp)
	assert.Contains(t, errResp.Message, "stopped")

	e.call("POST", "/api/v1/admin/resume", nil, http.StatusOK, nil)
	e.call("POST", "/api/v1/orders", orderBody(alice, "bid", "1", "5000"), http.StatusOK, nil)
	e.call("GET", "/api/v1/status", nil, http.StatusOK, &st)
	assert.Equal(t, 1, st.RestingOrders)
	assert.NotEqual(t, common.Hash{}, st.StateHash)
}

func TestApproveLetsOrdersEscrowShares(t *testing.T) {
	e := newTestEnv(t, true)
	e.deposit(alice, "1000000")
	e.call("POST", "/api/v1/complete-sets/buy", map[string]string{
		"sender": alice.Hex(), "market": mkt.Hex(), "amount": "5",
	}, http.StatusOK, nil)

	e.call("POST", "/api/v1/approvals", map[string]any{
		"owner": alice.Hex(), "market": mkt.Hex(), "outcome": 1, "amount": "5",
	}, http.StatusOK, nil)
	e.call("POST", "/api/v1/approvals", map[string]any{
		"owner": alice.Hex(), "market": mkt.Hex(), "outcome": 3, "amount": "5",
	}, http.StatusBadRequest, nil)

	var created CreateOrderResponse
	e.call("POST", "/api/v1/orders", orderBody(alice, "ask", "5", "7000"), http.StatusOK, &created)
	var order struct{ SharesEscrowed, CashEscrowed string }
	e.call("GET", "/api/v1/orders/"+created.OrderID.Hex(), nil, http.StatusOK, &order)
	assert.Equal(t, "5", order.SharesEscrowed)
	assert.Equal(t, "0", order.CashEscrowed)
}

func TestAdminRoutesDisabled(t *testing.T) {
	e := newTestEnv(t, false)
	code, _ := e.do("POST", "/api/v1/admin/stop", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = e.do("POST", "/api/v1/admin/accounts/"+alice.Hex()+"/deposit", map[string]string{"amount": "1"})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHealthAndMetrics(t *testing.T) {
	e := newTestEnv(t, false)
	e.call("GET", "/health", nil, http.StatusOK, nil)
	e.call("GET", "/api/v1/markets", nil, http.StatusOK, nil)

	code, raw := e.do("GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(raw), `predict_api_requests_total{code="200",route="/api/v1/markets"} 1`)
}

func TestWebSocketStreamsFills(t *testing.T) {
	e := newTestEnv(t, true)
	e.deposit(alice, "1000000")
	e.deposit(bob, "1000000")

	wsURL := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	fillCh := FillChannel(mkt, 1)
	require.NoError(t, conn.WriteJSON(WSSubscribeRequest{Op: "subscribe", Channels: []string{fillCh}}))
	require.Eventually(t, func() bool { return e.hub.Subscribers(fillCh) == 1 }, 2*time.Second, 5*time.Millisecond)

	e.call("POST", "/api/v1/orders", orderBody(alice, "ask", "2", "5500"), http.StatusOK, nil)
	e.call("POST", "/api/v1/trade", tradeBody(bob, "bid", "2", "5500"), http.StatusOK, nil)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type    string
		Channel string
		Fill    struct {
			Maker, Taker common.Address
			Amount       string
			Seq          uint64
		}
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "fill", msg.Type)
	assert.Equal(t, fillCh, msg.Channel)
	assert.Equal(t, alice, msg.Fill.Maker)
	assert.Equal(t, bob, msg.Fill.Taker)
	assert.Equal(t, "2", msg.Fill.Amount)
	assert.Equal(t, uint64(1), msg.Fill.Seq)
}
