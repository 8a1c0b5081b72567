package db

import (
	"time"

	exchange "multiaccount-trade/pkg/exchanges/common"
)

// Order is the journaled latest state of an order.
type Order struct {
	VTOrderID   string    `json:"vt_orderid"`
	GatewayName string    `json:"gateway_name"`
	Symbol      string    `json:"symbol"`
	Exchange    string    `json:"exchange"`
	Direction   string    `json:"direction"`
	Offset      string    `json:"offset"`
	Type        string    `json:"type"`
	Price       string    `json:"price"`
	Volume      float64   `json:"volume"`
	Traded      float64   `json:"traded"`
	Status      string    `json:"status"`
	Reference   string    `json:"reference"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Trade is a journaled fill.
type Trade struct {
	VTTradeID   string    `json:"vt_tradeid"`
	VTOrderID   string    `json:"vt_orderid"`
	GatewayName string    `json:"gateway_name"`
	Symbol      string    `json:"symbol"`
	Exchange    string    `json:"exchange"`
	Direction   string    `json:"direction"`
	Offset      string    `json:"offset"`
	Price       string    `json:"price"`
	Volume      float64   `json:"volume"`
	TradedAt    time.Time `json:"traded_at"`
}

// Statement is one parameterized write, ready to be queued on a batch writer.
type Statement struct {
	Query string
	Args  []any
}

const upsertOrderSQL = `
INSERT INTO orders (vt_orderid, gateway_name, symbol, exchange, direction, order_offset, order_type, price, volume, traded, status, reference, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(vt_orderid) DO UPDATE SET
    price = excluded.price,
    traded = excluded.traded,
    status = excluded.status,
    updated_at = excluded.updated_at`

const insertTradeSQL = `
INSERT OR IGNORE INTO trades (vt_tradeid, vt_orderid, gateway_name, symbol, exchange, direction, order_offset, price, volume, traded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// UpsertOrder builds the statement recording the latest state of o.
func UpsertOrder(o exchange.Order) Statement {
	updated := o.Datetime
	if updated.IsZero() {
		updated = time.Now()
	}
	return Statement{Query: upsertOrderSQL, Args: []any{
		o.VTOrderID(), o.GatewayName, o.Symbol, string(o.Exchange), string(o.Direction),
		string(o.Offset), string(o.Type), o.Price.String(), o.Volume, o.Traded,
		string(o.Status), o.Reference, updated.UTC(),
	}}
}

// InsertTrade builds the statement recording t. Replayed trades are ignored.
func InsertTrade(t exchange.Trade) Statement {
	traded := t.Datetime
	if traded.IsZero() {
		traded = time.Now()
	}
	return Statement{Query: insertTradeSQL, Args: []any{
		t.VTTradeID(), t.VTOrderID(), t.GatewayName, t.Symbol, string(t.Exchange),
		string(t.Direction), string(t.Offset), t.Price.String(), t.Volume, traded.UTC(),
	}}
}
