package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multiaccount-trade/internal/engine"
	"multiaccount-trade/internal/events"
	"multiaccount-trade/pkg/config"
	exchange "multiaccount-trade/pkg/exchanges/common"
	"multiaccount-trade/pkg/exchanges/sim"
	"multiaccount-trade/pkg/license"
)

const rb = "rb2410.SHFE"

type testEnv struct {
	http   *httptest.Server
	engine *engine.Engine
	token  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	e, err := engine.New(engine.Options{
		Logger:       zerolog.Nop(),
		LoadDir:      filepath.Join(root, "orders"),
		BackupDir:    filepath.Join(root, "backup"),
		JournalPath:  ":memory:",
		JournalFlush: time.Hour,
		NodeID:       "node-1",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	require.NoError(t, e.Start(context.Background(), []config.GatewaySetting{{
		Name:  "G1",
		Class: sim.Class,
		Settings: map[string]string{
			"contracts": rb + ":1:100",
			"positions": rb + ":LONG:5:3",
			"auto_fill": "true",
		},
	}}))
	e.Subscribe([]string{rb})
	e.Sync()

	auth := license.NewManager("test-secret", "node-1")
	token, err := auth.Issue("ops", time.Hour)
	require.NoError(t, err)

	server := NewServer(e, auth, e.Metrics(), zerolog.Nop(), Config{RateLimit: 1000, Burst: 1000})
	httpServer := httptest.NewServer(server.Router)
	t.Cleanup(httpServer.Close)

	return &testEnv{http: httpServer, engine: e, token: token}
}

func (env *testEnv) do(t *testing.T, method, path string, payload any, out any) int {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, env.http.URL+path, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if env.token != "" {
		req.Header.Set("Authorization", "Bearer "+env.token)
	}
	resp, err := env.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type errorBody struct {
	Code     string   `json:"code"`
	Error    string   `json:"error"`
	OrderIDs []string `json:"order_ids"`
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t)
	env.token = ""
	var body map[string]string
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", nil, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t)
	other, err := license.NewManager("test-secret", "node-2").Issue("ops", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		code  string
	}{
		{"missing", "", "MISSING_TOKEN"},
		{"garbage", "not-a-jwt", "INVALID_TOKEN"},
		{"other node", other, "INVALID_TOKEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.token = tt.token
			var body errorBody
			assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/quotes", nil, &body))
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

func TestPlaceOrder(t *testing.T) {
	env := newTestEnv(t)

	var placed struct {
		OrderIDs []string `json:"order_ids"`
	}
	status := env.do(t, http.MethodPost, "/api/orders/open-long",
		gin.H{"symbol": rb, "volume": 2, "gateway": "G1"}, &placed)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, placed.OrderIDs, 1)
	env.engine.Sync()

	var o struct {
		Status    string `json:"status"`
		Price     string `json:"price"`
		Reference string `json:"reference"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/orders/"+placed.OrderIDs[0], nil, &o))
	assert.Equal(t, "FILLED", o.Status)
	assert.Equal(t, "103", o.Price)
	assert.Equal(t, "open-long", o.Reference)

	var active []json.RawMessage
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/orders/active", nil, &active))
	assert.Empty(t, active)

	var journal []struct {
		VTOrderID string `json:"vt_orderid"`
		Status    string `json:"status"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/journal/orders?gateway=G1", nil, &journal))
	require.Len(t, journal, 1)
	assert.Equal(t, placed.OrderIDs[0], journal[0].VTOrderID)
	assert.Equal(t, "FILLED", journal[0].Status)
}

func TestPlaceOrderErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{"bad intent", "/api/orders/buy", gin.H{"symbol": rb, "volume": 1, "gateway": "G1"}, http.StatusBadRequest, "INVALID_INTENT"},
		{"zero volume", "/api/orders/open-long", gin.H{"symbol": rb, "volume": 0, "gateway": "G1"}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"missing gateway", "/api/orders/open-long", gin.H{"symbol": rb, "volume": 1}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"no short position", "/api/orders/close-long", gin.H{"symbol": rb, "volume": 1, "gateway": "G1"}, http.StatusUnprocessableEntity, "ORDER_REJECTED"},
		{"unknown gateway", "/api/orders/open-short", gin.H{"symbol": rb, "volume": 1, "gateway": "G9"}, http.StatusUnprocessableEntity, "ORDER_REJECTED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body errorBody
			assert.Equal(t, tt.status, env.do(t, http.MethodPost, tt.path, tt.body, &body))
			assert.Equal(t, tt.code, body.Code)
			if tt.status == http.StatusUnprocessableEntity {
				assert.Equal(t, []string{""}, body.OrderIDs)
			}
		})
	}
}

func TestCancelUnknownOrderIsAccepted(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusAccepted, env.do(t, http.MethodDelete, "/api/orders/G1.404", nil, nil))
}

func TestSubscribeAndLookups(t *testing.T) {
	env := newTestEnv(t)

	var sub struct {
		Subscribed []string `json:"subscribed"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/subscriptions",
		gin.H{"symbols": []string{rb, "zz9999.DCE"}}, &sub))
	assert.Equal(t, []string{rb}, sub.Subscribed)

	var body errorBody
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/subscriptions", gin.H{"symbols": []string{}}, &body))

	var quote struct {
		BidPrice string `json:"bid_price"`
		AskPrice string `json:"ask_price"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/quotes/"+rb, nil, &quote))
	assert.Equal(t, "99", quote.BidPrice)
	assert.Equal(t, "101", quote.AskPrice)

	var pos struct {
		Volume   float64 `json:"volume"`
		YdVolume float64 `json:"yd_volume"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/positions/G1."+rb+".LONG", nil, &pos))
	assert.Equal(t, 5.0, pos.Volume)
	assert.Equal(t, 3.0, pos.YdVolume)

	notFound := []string{"/api/quotes/zz9999.DCE", "/api/orders/G1.404", "/api/trades/G1.404", "/api/accounts/G9", "/api/contracts/x.DCE"}
	for _, path := range notFound {
		var nf errorBody
		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, path, nil, &nf), path)
		assert.Equal(t, "NOT_FOUND", nf.Code, path)
	}

	var trades []json.RawMessage
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/trades", nil, &trades))
	assert.NotNil(t, trades)
	assert.Empty(t, trades)
}

func TestGatewaysAndStatus(t *testing.T) {
	env := newTestEnv(t)

	var gws struct {
		Gateways []struct {
			Name   string `json:"name"`
			Inited bool   `json:"inited"`
		} `json:"gateways"`
		Classes          []string `json:"classes"`
		SubscribeGateway string   `json:"subscribe_gateway"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/gateways", nil, &gws))
	require.Len(t, gws.Gateways, 1)
	assert.True(t, gws.Gateways[0].Inited)
	assert.Equal(t, []string{sim.Class}, gws.Classes)
	assert.Equal(t, "G1", gws.SubscribeGateway)

	var st engine.SystemStatus
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/system/status", nil, &st))
	assert.Equal(t, "node-1", st.NodeID)
	assert.True(t, st.Journal)

	var metrics struct {
		EventsDispatched uint64 `json:"events_dispatched"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/metrics", nil, &metrics))
	assert.Positive(t, metrics.EventsDispatched)
}

func TestJournalAndDataErrors(t *testing.T) {
	env := newTestEnv(t)

	var body errorBody
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/journal/trades", nil, &body))
	assert.Equal(t, "GATEWAY_REQUIRED", body.Code)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/data/G1/load", nil, &body))
	assert.Equal(t, "NO_FILE", body.Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/data/G1/backup", nil, &body))
	assert.Equal(t, "NO_DATA", body.Code)
}

func TestParseKinds(t *testing.T) {
	tests := []struct {
		raw  string
		want []events.Kind
		ok   bool
	}{
		{"", events.Kinds(), true},
		{"quote", []events.Kind{events.KindQuote}, true},
		{"order, trade", []events.Kind{events.KindOrder, events.KindTrade}, true},
		{"quote,bogus", nil, false},
	}
	for _, tt := range tests {
		got, ok := parseKinds(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestIPLimiters(t *testing.T) {
	l := newIPLimiters(1, 1, time.Hour)
	assert.True(t, l.get("10.0.0.1").Allow())
	assert.False(t, l.get("10.0.0.1").Allow())
	assert.True(t, l.get("10.0.0.2").Allow())
}

func TestWebsocketStreamsLogs(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws?kinds=log"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	env.engine.Subscribe([]string{rb})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg struct {
			Type string     `json:"type"`
			Data events.Log `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "log", msg.Type)
		if msg.Data.Msg == "Subscribe [rb2410.SHFE]" {
			assert.Equal(t, "G1", msg.Data.GatewayName)
			assert.Equal(t, exchange.SeverityInfo, msg.Data.Level)
			return
		}
	}
}

func TestWebsocketRejectsUnknownKind(t *testing.T) {
	env := newTestEnv(t)
	env.token = ""
	var body errorBody
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/ws?kinds=bogus", nil, &body))
	assert.Equal(t, "INVALID_KIND", body.Code)
}
