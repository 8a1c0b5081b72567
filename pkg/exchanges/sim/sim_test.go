package sim

import (
	"context"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exchange "multiaccount-trade/pkg/exchanges/common"
)

type recordingSink struct {
	mu        sync.Mutex
	quotes    []exchange.Quote
	orders    []exchange.Order
	trades    []exchange.Trade
	positions []exchange.Position
	accounts  []exchange.Account
	contracts []exchange.Contract
	logs      []string
}

func (s *recordingSink) OnQuote(q exchange.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes = append(s.quotes, q)
}

func (s *recordingSink) OnOrder(o exchange.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, o)
}

func (s *recordingSink) OnTrade(t exchange.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, t)
}

func (s *recordingSink) OnPosition(p exchange.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = append(s.positions, p)
}

func (s *recordingSink) OnAccount(a exchange.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = append(s.accounts, a)
}

func (s *recordingSink) OnContract(c exchange.Contract) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contracts = append(s.contracts, c)
}

func (s *recordingSink) OnLog(_ string, msg string, _ exchange.Severity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, msg)
}

func (s *recordingSink) lastPosition() exchange.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positions[len(s.positions)-1]
}

func (s *recordingSink) lastOrder() exchange.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[len(s.orders)-1]
}

func connect(t *testing.T, settings map[string]string) (*Gateway, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	gw := New("G1", sink).(*Gateway)
	require.NoError(t, gw.Connect(settings))
	t.Cleanup(func() { _ = gw.Close() })
	return gw, sink
}

func localID(vtOrderID string) string {
	return strings.TrimPrefix(vtOrderID, "G1.")
}

func TestParseSettings(t *testing.T) {
	s, err := ParseSettings("G1", map[string]string{
		"contracts":          "rb2410.SHFE:1:3500, IF2409.CFFEX:0.2",
		"positions":          "rb2410.SHFE:long:10:4",
		"auto_fill":          "true",
		"max_orders_per_sec": "5",
		"tick_interval":      "250ms",
		"balance":            "5000",
	})
	require.NoError(t, err)
	require.Len(t, s.Contracts, 2)
	assert.Equal(t, "rb2410", s.Contracts[0].Symbol)
	assert.True(t, s.Contracts[0].StartPrice.Equal(decimal.NewFromInt(3500)))
	assert.True(t, s.Contracts[1].PriceTick.Equal(decimal.RequireFromString("0.2")))
	assert.True(t, s.Contracts[1].StartPrice.Equal(defaultStartPrice))
	require.Len(t, s.Positions, 1)
	assert.Equal(t, exchange.DirectionLong, s.Positions[0].Direction)
	assert.Equal(t, 4.0, s.Positions[0].YdVolume)
	assert.True(t, s.AutoFill)
	assert.Equal(t, 5.0, s.MaxOrdersPerSec)
	assert.Equal(t, 250*time.Millisecond, s.TickInterval)
	assert.Equal(t, "G1", s.AccountID)

	bad := []map[string]string{
		{"contracts": "rb2410:1"},
		{"contracts": "rb2410.SHFE:zero"},
		{"contracts": "rb2410.SHFE:-1"},
		{"positions": "rb2410.SHFE:UP:1"},
		{"positions": "rb2410.SHFE:LONG:1:2"},
		{"auto_fill": "maybe"},
		{"tick_interval": "soon"},
	}
	for _, m := range bad {
		_, err := ParseSettings("G1", m)
		assert.Error(t, err, m)
	}
}

func TestConnectPublishesState(t *testing.T) {
	gw, sink := connect(t, map[string]string{
		"contracts": "rb2410.SHFE:1:3500",
		"positions": "rb2410.SHFE:SHORT:3:3",
	})

	assert.True(t, gw.ContractsInited())
	require.Len(t, sink.contracts, 1)
	assert.Equal(t, "G1", sink.contracts[0].GatewayName)
	require.Len(t, sink.positions, 1)
	assert.Equal(t, "G1.rb2410.SHFE.SHORT", sink.positions[0].VTPositionID())
	require.Len(t, sink.accounts, 1)
	assert.True(t, sink.accounts[0].Balance.Equal(decimal.NewFromInt(1_000_000)))

	require.NoError(t, gw.Subscribe(exchange.SubscribeRequest{Symbol: "rb2410", Exchange: exchange.ExchangeSHFE}))
	require.Len(t, sink.quotes, 1)
	assert.True(t, sink.quotes[0].AskPrice.Equal(decimal.NewFromInt(3501)))
	assert.True(t, sink.quotes[0].BidPrice.Equal(decimal.NewFromInt(3499)))

	assert.ErrorIs(t, gw.Subscribe(exchange.SubscribeRequest{Symbol: "x", Exchange: exchange.ExchangeSHFE}), ErrUnknownSymbol)
}

func TestNotConnected(t *testing.T) {
	gw := New("G1", &recordingSink{})
	_, err := gw.SendOrder(exchange.OrderRequest{Symbol: "X", Exchange: exchange.ExchangeLocal, Volume: 1})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, gw.CancelOrder(exchange.CancelRequest{OrderID: "1"}), ErrNotConnected)
	assert.False(t, gw.(*Gateway).ContractsInited())
}

func TestSendOrderRejectsInvalidVolume(t *testing.T) {
	gw, sink := connect(t, map[string]string{"contracts": "X.LOCAL:1", "auto_fill": "true"})

	for _, volume := range []float64{0, -2, math.NaN(), math.Inf(1)} {
		_, err := gw.SendOrder(exchange.OrderRequest{
			Symbol: "X", Exchange: exchange.ExchangeLocal, Price: decimal.NewFromInt(103),
			Volume: volume, Direction: exchange.DirectionLong, Offset: exchange.OffsetOpen, Type: exchange.OrderTypeLimit,
		})
		assert.ErrorIs(t, err, ErrInvalidVolume, "volume %v", volume)
	}
	assert.Empty(t, sink.orders)
	assert.Empty(t, sink.trades)
}

func TestAutoFillOpen(t *testing.T) {
	gw, sink := connect(t, map[string]string{"contracts": "X.LOCAL:1", "auto_fill": "true"})

	id, err := gw.SendOrder(exchange.OrderRequest{
		Symbol: "X", Exchange: exchange.ExchangeLocal, Price: decimal.NewFromInt(103),
		Volume: 5, Direction: exchange.DirectionLong, Offset: exchange.OffsetOpen, Type: exchange.OrderTypeLimit,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "G1."))

	require.Len(t, sink.orders, 2)
	assert.Equal(t, exchange.StatusSubmitted, sink.orders[0].Status)
	assert.Equal(t, exchange.StatusFilled, sink.orders[1].Status)
	assert.Equal(t, id, sink.orders[1].VTOrderID())
	require.Len(t, sink.trades, 1)
	assert.Equal(t, 5.0, sink.trades[0].Volume)

	pos := sink.lastPosition()
	assert.Equal(t, 5.0, pos.Volume)
	assert.Zero(t, pos.YdVolume)
	assert.True(t, pos.Price.Equal(decimal.NewFromInt(103)))
}

func TestCloseFreezesAndFills(t *testing.T) {
	gw, sink := connect(t, map[string]string{
		"contracts": "rb2410.SHFE:1",
		"positions": "rb2410.SHFE:LONG:10:4",
	})
	closeOrder := func(offset exchange.Offset, volume float64) string {
		id, err := gw.SendOrder(exchange.OrderRequest{
			Symbol: "rb2410", Exchange: exchange.ExchangeSHFE, Price: decimal.NewFromInt(99),
			Volume: volume, Direction: exchange.DirectionShort, Offset: offset,
		})
		require.NoError(t, err)
		return id
	}

	yd := closeOrder(exchange.OffsetCloseYesterday, 3)
	assert.Equal(t, 3.0, sink.lastPosition().Frozen)
	td := closeOrder(exchange.OffsetCloseToday, 2)
	assert.Equal(t, 5.0, sink.lastPosition().Frozen)

	require.NoError(t, gw.Fill(localID(yd), 3))
	pos := sink.lastPosition()
	assert.Equal(t, 7.0, pos.Volume)
	assert.Equal(t, 1.0, pos.YdVolume)
	assert.Equal(t, 2.0, pos.Frozen)

	require.NoError(t, gw.Fill(localID(td), 1))
	assert.Equal(t, exchange.StatusPartiallyFilled, sink.lastOrder().Status)
	require.NoError(t, gw.CancelOrder(exchange.CancelRequest{OrderID: localID(td)}))
	assert.Equal(t, exchange.StatusCancelled, sink.lastOrder().Status)

	pos = sink.lastPosition()
	assert.Equal(t, 6.0, pos.Volume)
	assert.Equal(t, 1.0, pos.YdVolume)
	assert.Zero(t, pos.Frozen)

	assert.ErrorIs(t, gw.CancelOrder(exchange.CancelRequest{OrderID: localID(td)}), ErrOrderNotActive)
	assert.ErrorIs(t, gw.CancelOrder(exchange.CancelRequest{OrderID: "nope"}), ErrOrderNotFound)
	assert.ErrorIs(t, gw.Fill(localID(yd), 1), ErrOrderNotActive)
}

func TestCloseBeyondAvailableIsRejected(t *testing.T) {
	tests := []struct {
		name   string
		offset exchange.Offset
		volume float64
	}{
		{"total", exchange.OffsetClose, 11},
		{"yesterday", exchange.OffsetCloseYesterday, 5},
		{"today", exchange.OffsetCloseToday, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, sink := connect(t, map[string]string{
				"contracts": "rb2410.SHFE:1",
				"positions": "rb2410.SHFE:LONG:10:4",
			})
			id, err := gw.SendOrder(exchange.OrderRequest{
				Symbol: "rb2410", Exchange: exchange.ExchangeSHFE,
				Volume: tt.volume, Direction: exchange.DirectionShort, Offset: tt.offset,
			})
			require.NoError(t, err)
			assert.NotEmpty(t, id)
			assert.Equal(t, exchange.StatusRejected, sink.lastOrder().Status)
			assert.Zero(t, sink.lastPosition().Frozen)
		})
	}
}

func TestThrottle(t *testing.T) {
	gw, _ := connect(t, map[string]string{"contracts": "X.LOCAL:1", "max_orders_per_sec": "1"})
	req := exchange.OrderRequest{Symbol: "X", Exchange: exchange.ExchangeLocal, Volume: 1, Direction: exchange.DirectionLong, Offset: exchange.OffsetOpen}

	_, err := gw.SendOrder(req)
	require.NoError(t, err)
	_, err = gw.SendOrder(req)
	assert.ErrorIs(t, err, ErrThrottled)
}

func TestSetPriceAndWalk(t *testing.T) {
	gw, sink := connect(t, map[string]string{"contracts": "X.LOCAL:1", "tick_interval": "5ms"})
	require.NoError(t, gw.Subscribe(exchange.SubscribeRequest{Symbol: "X", Exchange: exchange.ExchangeLocal}))
	require.NoError(t, gw.SetPrice("X.LOCAL", decimal.NewFromInt(50)))

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.quotes) >= 4
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, gw.Close())
	require.NoError(t, gw.Close())
	assert.ErrorIs(t, gw.Ping(context.Background()), ErrNotConnected)
}
