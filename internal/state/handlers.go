package state

import (
	"multiaccount-trade/internal/events"
	exchange "multiaccount-trade/pkg/exchanges/common"
)

// Registrar is the part of the event bus the cache subscribes through.
type Registrar interface {
	Register(kind events.Kind, h events.Handler)
}

// Register installs the handlers that keep the cache current. It should be
// called before any other component registers, so that later handlers of the
// same event observe the updated state.
func (c *Cache) Register(bus Registrar) {
	bus.Register(events.KindQuote, handle(c.UpsertQuote))
	bus.Register(events.KindOrder, handle(c.UpsertOrder))
	bus.Register(events.KindTrade, handle(func(t exchange.Trade) { c.UpsertTrade(t) }))
	bus.Register(events.KindPosition, handle(c.UpsertPosition))
	bus.Register(events.KindAccount, handle(c.UpsertAccount))
	bus.Register(events.KindContract, handle(func(ct exchange.Contract) { c.UpsertContract(ct) }))
}

func handle[T any](apply func(T)) events.Handler {
	return func(e events.Event) error {
		v, err := events.Payload[T](e)
		if err != nil {
			return err
		}
		apply(v)
		return nil
	}
}
