package state

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multiaccount-trade/internal/events"
	exchange "multiaccount-trade/pkg/exchanges/common"
)

func TestContractFirstWriteWins(t *testing.T) {
	c := NewCache()
	first := exchange.Contract{Symbol: "rb2410", Exchange: exchange.ExchangeSHFE, PriceTick: decimal.NewFromInt(1)}
	second := first
	second.PriceTick = decimal.NewFromInt(5)

	assert.True(t, c.UpsertContract(first))
	assert.False(t, c.UpsertContract(second))

	got, ok := c.Contract("rb2410.SHFE")
	require.True(t, ok)
	assert.True(t, got.PriceTick.Equal(decimal.NewFromInt(1)))
}

func TestLastWriteWins(t *testing.T) {
	c := NewCache()
	c.UpsertQuote(exchange.Quote{Symbol: "X", Exchange: exchange.ExchangeLocal, BidPrice: decimal.NewFromInt(1)})
	c.UpsertQuote(exchange.Quote{Symbol: "X", Exchange: exchange.ExchangeLocal, BidPrice: decimal.NewFromInt(2)})
	q, ok := c.Quote("X.LOCAL")
	require.True(t, ok)
	assert.True(t, q.BidPrice.Equal(decimal.NewFromInt(2)))
	assert.Len(t, c.Quotes(), 1)

	pos := exchange.Position{GatewayName: "G1", Symbol: "X", Exchange: exchange.ExchangeLocal, Direction: exchange.DirectionLong, Volume: 3}
	c.UpsertPosition(pos)
	pos.Volume = 8
	c.UpsertPosition(pos)
	p, ok := c.Position("G1.X.LOCAL.LONG")
	require.True(t, ok)
	assert.Equal(t, 8.0, p.Volume)

	c.UpsertAccount(exchange.Account{GatewayName: "G1", Balance: decimal.NewFromInt(10)})
	c.UpsertAccount(exchange.Account{GatewayName: "G1", Balance: decimal.NewFromInt(20)})
	a, ok := c.Account("G1")
	require.True(t, ok)
	assert.True(t, a.Balance.Equal(decimal.NewFromInt(20)))
	assert.Len(t, c.Accounts(), 1)
}

func TestGettersReportNotFound(t *testing.T) {
	c := NewCache()
	_, ok := c.Quote("nope")
	assert.False(t, ok)
	_, ok = c.Contract("nope")
	assert.False(t, ok)
	_, ok = c.Order("nope")
	assert.False(t, ok)
	_, ok = c.ActiveOrder("nope")
	assert.False(t, ok)
	_, ok = c.Trade("nope")
	assert.False(t, ok)
	_, ok = c.Position("nope")
	assert.False(t, ok)
	_, ok = c.Account("nope")
	assert.False(t, ok)
	assert.Empty(t, c.Orders())
	assert.Empty(t, c.ActiveOrders())
}

func TestActiveIndexFollowsStatus(t *testing.T) {
	tests := []struct {
		name   string
		steps  []exchange.Status
		active bool
	}{
		{"submitted", []exchange.Status{exchange.StatusSubmitted}, true},
		{"partial", []exchange.Status{exchange.StatusSubmitted, exchange.StatusPartiallyFilled, exchange.StatusPartiallyFilled}, true},
		{"filled", []exchange.Status{exchange.StatusSubmitted, exchange.StatusPartiallyFilled, exchange.StatusFilled}, false},
		{"cancelled", []exchange.Status{exchange.StatusSubmitted, exchange.StatusCancelled}, false},
		{"rejected", []exchange.Status{exchange.StatusRejected}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCache()
			for _, s := range tt.steps {
				c.UpsertOrder(exchange.Order{GatewayName: "G1", OrderID: "1", Status: s})
			}
			_, ok := c.ActiveOrder("G1.1")
			assert.Equal(t, tt.active, ok)

			o, ok := c.Order("G1.1")
			require.True(t, ok)
			assert.Equal(t, tt.steps[len(tt.steps)-1], o.Status)
			assert.Equal(t, 1, c.Counts().Orders)
		})
	}
}

func TestTradesKeepArrivalOrder(t *testing.T) {
	c := NewCache()
	for _, id := range []string{"t3", "t1", "t2"} {
		c.UpsertTrade(exchange.Trade{GatewayName: "G1", TradeID: id})
	}
	var ids []string
	for _, tr := range c.Trades() {
		ids = append(ids, tr.TradeID)
	}
	assert.Equal(t, []string{"t3", "t1", "t2"}, ids)

	_, ok := c.Trade("G1.t1")
	assert.True(t, ok)
}

func TestTradeFirstWriteWins(t *testing.T) {
	c := NewCache()
	first := exchange.Trade{GatewayName: "G1", TradeID: "t1", Volume: 2, Price: decimal.NewFromInt(100)}
	redelivered := first
	redelivered.Volume = 7

	assert.True(t, c.UpsertTrade(first))
	assert.False(t, c.UpsertTrade(redelivered))

	got, ok := c.Trade("G1.t1")
	require.True(t, ok)
	assert.Equal(t, 2.0, got.Volume)
	assert.Len(t, c.Trades(), 1)
}

func TestRegisterRoutesEvents(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	defer bus.Stop()

	c := NewCache()
	c.Register(bus)
	bus.Start()

	bus.Publish(events.NewQuote(exchange.Quote{Symbol: "X", Exchange: exchange.ExchangeLocal}))
	bus.Publish(events.NewContract(exchange.Contract{Symbol: "X", Exchange: exchange.ExchangeLocal}))
	bus.Publish(events.NewOrder(exchange.Order{GatewayName: "G1", OrderID: "1", Status: exchange.StatusSubmitted}))
	bus.Publish(events.NewTrade(exchange.Trade{GatewayName: "G1", TradeID: "1"}))
	bus.Publish(events.NewPosition(exchange.Position{GatewayName: "G1", Symbol: "X", Exchange: exchange.ExchangeLocal, Direction: exchange.DirectionShort}))
	bus.Publish(events.NewAccount(exchange.Account{GatewayName: "G1"}))
	bus.Sync()

	assert.Equal(t, Counts{
		Quotes: 1, Contracts: 1, Orders: 1, ActiveOrders: 1, Trades: 1, Positions: 1, Accounts: 1,
	}, c.Counts())
}

// Gateways publish from many goroutines; after the dispatcher drains, the
// active index must hold exactly the orders whose last update is non-terminal,
// and trades and positions must match what was published.
func TestActiveIndexConsistentUnderConcurrentEvents(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	defer bus.Stop()

	c := NewCache()
	c.Register(bus)
	bus.Start()

	const (
		publishers = 10
		perPub     = 100
		orderIDs   = 40
	)
	statuses := []exchange.Status{
		exchange.StatusSubmitted,
		exchange.StatusPartiallyFilled,
		exchange.StatusFilled,
		exchange.StatusCancelled,
		exchange.StatusRejected,
	}

	// Each publisher owns one position id and publishes it with a rising
	// volume, so the last write per position is known.
	lastPos := make([]float64, publishers)
	var trades [publishers]int

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(int64(p)))
			gw := fmt.Sprintf("G%d", p%3)
			for i := 0; i < perPub; i++ {
				switch i % 3 {
				case 0:
					bus.Publish(events.NewOrder(exchange.Order{
						GatewayName: gw,
						OrderID:     fmt.Sprint(rnd.Intn(orderIDs)),
						Status:      statuses[rnd.Intn(len(statuses))],
					}))
				case 1:
					bus.Publish(events.NewTrade(exchange.Trade{
						GatewayName: gw,
						TradeID:     fmt.Sprintf("p%d-%d", p, i),
						Volume:      float64(i),
					}))
					trades[p]++
				case 2:
					bus.Publish(events.NewPosition(exchange.Position{
						GatewayName: fmt.Sprintf("P%d", p),
						Symbol:      "X",
						Exchange:    exchange.ExchangeLocal,
						Direction:   exchange.DirectionLong,
						Volume:      float64(i),
					}))
					lastPos[p] = float64(i)
				}
				if i%10 == 0 {
					_ = c.ActiveOrders()
					_ = c.Trades()
				}
			}
		}(p)
	}
	wg.Wait()
	bus.Sync()

	want := map[string]bool{}
	for _, o := range c.Orders() {
		if !o.Status.IsTerminal() {
			want[o.VTOrderID()] = true
		}
	}
	got := map[string]bool{}
	for _, o := range c.ActiveOrders() {
		got[o.VTOrderID()] = true
		latest, ok := c.Order(o.VTOrderID())
		require.True(t, ok)
		assert.Equal(t, latest.Status, o.Status)
	}
	assert.Equal(t, want, got)

	wantTrades := 0
	for _, n := range trades {
		wantTrades += n
	}
	assert.Len(t, c.Trades(), wantTrades)
	tr, ok := c.Trade("G0.p0-97")
	require.True(t, ok)
	assert.Equal(t, 97.0, tr.Volume)

	require.Len(t, c.Positions(), publishers)
	for p := 0; p < publishers; p++ {
		pos, ok := c.Position(exchange.PositionID(fmt.Sprintf("P%d", p), "X.LOCAL", exchange.DirectionLong))
		require.True(t, ok)
		assert.Equal(t, lastPos[p], pos.Volume)
	}
}
