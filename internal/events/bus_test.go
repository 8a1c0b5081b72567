package events

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	exchange "multiaccount-trade/pkg/exchanges/common"
)

type countingObserver struct {
	dispatched atomic.Int64
	failed     atomic.Int64
}

func (o *countingObserver) EventDispatched(string) { o.dispatched.Add(1) }
func (o *countingObserver) HandlerFailed(string)   { o.failed.Add(1) }

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	b := NewBus(zerolog.Nop())
	t.Cleanup(b.Stop)
	return b
}

func TestBusDeliversInRegistrationOrder(t *testing.T) {
	b := newTestBus(t)

	var got []string
	b.Register(KindQuote, func(Event) error { got = append(got, "first"); return nil })
	b.Register(KindQuote, func(Event) error { got = append(got, "second"); return nil })
	b.Register(KindOrder, func(Event) error { got = append(got, "order"); return nil })
	b.Start()

	b.Publish(NewQuote(exchange.Quote{Symbol: "X"}))
	b.Publish(NewOrder(exchange.Order{OrderID: "1"}))
	b.Sync()

	assert.Equal(t, []string{"first", "second", "order"}, got)
}

func TestBusIsolatesFailingHandlers(t *testing.T) {
	b := newTestBus(t)
	obs := &countingObserver{}
	b.SetObserver(obs)

	var delivered []string
	b.Register(KindTrade, func(Event) error { return errors.New("boom") })
	b.Register(KindTrade, func(Event) error { panic("malformed") })
	b.Register(KindTrade, func(e Event) error {
		tr, err := Payload[exchange.Trade](e)
		if err != nil {
			return err
		}
		delivered = append(delivered, tr.TradeID)
		return nil
	})
	b.Start()

	b.Publish(NewTrade(exchange.Trade{TradeID: "t1"}))
	b.Publish(Event{Kind: KindTrade, Payload: "not a trade"})
	b.Publish(NewTrade(exchange.Trade{TradeID: "t2"}))
	b.Sync()

	assert.Equal(t, []string{"t1", "t2"}, delivered)
	assert.EqualValues(t, 3, obs.dispatched.Load())
	// two failures per event plus the payload error on the malformed one
	assert.EqualValues(t, 7, obs.failed.Load())
}

func TestBusHandlersNeverRunConcurrently(t *testing.T) {
	b := newTestBus(t)

	var inFlight, maxInFlight, total atomic.Int64
	b.Register(KindPosition, func(Event) error {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		total.Add(1)
		inFlight.Add(-1)
		return nil
	})
	b.Start()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				b.Publish(NewPosition(exchange.Position{Volume: float64(i)}))
			}
		}()
	}
	wg.Wait()
	b.Sync()

	assert.EqualValues(t, 2000, total.Load())
	assert.EqualValues(t, 1, maxInFlight.Load())
}

func TestBusPreservesPublisherOrder(t *testing.T) {
	b := newTestBus(t)

	var seen []float64
	b.Register(KindPosition, func(e Event) error {
		p, err := Payload[exchange.Position](e)
		if err != nil {
			return err
		}
		seen = append(seen, p.Volume)
		return nil
	})
	b.Start()

	for i := 0; i < 100; i++ {
		b.Publish(NewPosition(exchange.Position{Volume: float64(i)}))
	}
	b.Sync()

	require.Len(t, seen, 100)
	for i, v := range seen {
		assert.Equal(t, float64(i), v)
	}
}

func TestBusStopDrainsQueue(t *testing.T) {
	b := NewBus(zerolog.Nop())

	var count atomic.Int64
	b.Register(KindAccount, func(Event) error { count.Add(1); return nil })
	for i := 0; i < 50; i++ {
		b.Publish(NewAccount(exchange.Account{GatewayName: "G"}))
	}
	b.Start()
	b.Stop()
	assert.EqualValues(t, 50, count.Load())

	b.Publish(NewAccount(exchange.Account{GatewayName: "G"}))
	assert.Zero(t, b.Pending())
	b.Stop()
}

func TestBusSubscribeTap(t *testing.T) {
	b := newTestBus(t)
	b.Start()

	ch, unsub := b.Subscribe(KindLog, 4)
	b.Log("G1", "hello", exchange.SeverityInfo)
	b.Sync()

	select {
	case e := <-ch:
		l, err := Payload[Log](e)
		require.NoError(t, err)
		assert.Equal(t, "G1", l.GatewayName)
		assert.Equal(t, "hello", l.Msg)
		assert.Equal(t, exchange.SeverityInfo, l.Level)
	case <-time.After(time.Second):
		t.Fatal("tap did not receive log event")
	}

	unsub()
	unsub()
	_, open := <-ch
	assert.False(t, open)

	b.Log("", "after unsubscribe", exchange.SeverityInfo)
	b.Sync()
}

func TestGatewaySinkPublishesTypedEvents(t *testing.T) {
	b := newTestBus(t)

	var kinds []Kind
	for _, k := range Kinds() {
		b.Register(k, func(e Event) error { kinds = append(kinds, e.Kind); return nil })
	}
	b.Start()

	sink := b.GatewaySink()
	sink.OnQuote(exchange.Quote{})
	sink.OnOrder(exchange.Order{})
	sink.OnTrade(exchange.Trade{})
	sink.OnPosition(exchange.Position{})
	sink.OnContract(exchange.Contract{})
	sink.OnAccount(exchange.Account{})
	sink.OnLog("G", "msg", exchange.SeverityWarning)
	b.Sync()

	assert.Equal(t, Kinds(), kinds)
}
