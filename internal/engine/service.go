// Package engine wires the event bus, state cache, gateway registry and order
// router into one process-wide trading core. The API layer only talks to the
// core through Service.
package engine

import (
	"context"

	"multiaccount-trade/internal/data"
	"multiaccount-trade/internal/events"
	"multiaccount-trade/internal/order"
	"multiaccount-trade/pkg/db"
	exchange "multiaccount-trade/pkg/exchanges/common"
)

// Service defines the operations exposed to outer layers.
type Service interface {
	// Trading intents. Each returns one order id per submitted leg; "" marks
	// a leg (or the whole intent) that failed.
	OpenLong(vtSymbol string, volume float64, gatewayName string) []string
	OpenShort(vtSymbol string, volume float64, gatewayName string) []string
	CloseLong(vtSymbol string, volume float64, gatewayName string) []string
	CloseShort(vtSymbol string, volume float64, gatewayName string) []string
	Execute(intent order.Intent, vtSymbol string, volume float64, gatewayName string) []string
	CancelActiveOrder(vtOrderID string) error

	// Market data
	Subscribe(vtSymbols []string) []string

	// State queries
	Quote(vtSymbol string) (exchange.Quote, bool)
	Quotes() []exchange.Quote
	Contract(vtSymbol string) (exchange.Contract, bool)
	Contracts() []exchange.Contract
	Order(vtOrderID string) (exchange.Order, bool)
	Orders() []exchange.Order
	ActiveOrder(vtOrderID string) (exchange.Order, bool)
	ActiveOrders() []exchange.Order
	Trade(vtTradeID string) (exchange.Trade, bool)
	Trades() []exchange.Trade
	Position(vtPositionID string) (exchange.Position, bool)
	Positions() []exchange.Position
	Account(gatewayName string) (exchange.Account, bool)
	Accounts() []exchange.Account

	// Gateways
	GatewayNames() []string
	GatewayClassNames() []string
	IsGatewayInited(gatewayName string) bool
	SubscribeGateway() string

	// Journal
	JournalOrders(ctx context.Context, gatewayName string, limit int) ([]db.Order, error)
	JournalTrades(ctx context.Context, gatewayName string, limit int) ([]db.Trade, error)

	// Tabular data
	Data() data.Service

	// Event stream
	SubscribeEvents(kind events.Kind, buffer int) (<-chan events.Event, func())

	// System
	SystemStatus(ctx context.Context) *SystemStatus
}
