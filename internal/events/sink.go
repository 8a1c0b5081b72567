package events

import exchange "multiaccount-trade/pkg/exchanges/common"

// gatewaySink turns gateway callbacks into bus events.
type gatewaySink struct {
	bus *Bus
}

// GatewaySink returns the exchange.Sink gateways publish through.
func (b *Bus) GatewaySink() exchange.Sink {
	return gatewaySink{bus: b}
}

func (s gatewaySink) OnQuote(q exchange.Quote)       { s.bus.Publish(NewQuote(q)) }
func (s gatewaySink) OnOrder(o exchange.Order)       { s.bus.Publish(NewOrder(o)) }
func (s gatewaySink) OnTrade(t exchange.Trade)       { s.bus.Publish(NewTrade(t)) }
func (s gatewaySink) OnPosition(p exchange.Position) { s.bus.Publish(NewPosition(p)) }
func (s gatewaySink) OnAccount(a exchange.Account)   { s.bus.Publish(NewAccount(a)) }
func (s gatewaySink) OnContract(c exchange.Contract) { s.bus.Publish(NewContract(c)) }

func (s gatewaySink) OnLog(gatewayName, msg string, level exchange.Severity) {
	s.bus.Publish(NewLog(gatewayName, msg, level))
}
