package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrGatewayRequired = errors.New("gateway name is required")

const defaultLimit = 100

// Queries reads the journal. Every query is scoped to one gateway.
type Queries struct {
	db *sql.DB
}

// Queries returns the read side of the journal.
func (d *Database) Queries() *Queries {
	return &Queries{db: d.DB}
}

// OrdersByGateway returns the most recently updated orders of a gateway.
func (q *Queries) OrdersByGateway(ctx context.Context, gatewayName string, limit int) ([]Order, error) {
	if gatewayName == "" {
		return nil, ErrGatewayRequired
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT vt_orderid, gateway_name, symbol, exchange, direction, order_offset, order_type,
		       price, volume, traded, status, COALESCE(reference, ''), updated_at
		FROM orders
		WHERE gateway_name = ?
		ORDER BY updated_at DESC
		LIMIT ?
	`, gatewayName, limit)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.VTOrderID, &o.GatewayName, &o.Symbol, &o.Exchange, &o.Direction, &o.Offset, &o.Type,
			&o.Price, &o.Volume, &o.Traded, &o.Status, &o.Reference, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// TradesByGateway returns the most recent trades of a gateway.
func (q *Queries) TradesByGateway(ctx context.Context, gatewayName string, limit int) ([]Trade, error) {
	if gatewayName == "" {
		return nil, ErrGatewayRequired
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT vt_tradeid, vt_orderid, gateway_name, symbol, exchange, direction, order_offset,
		       price, volume, traded_at
		FROM trades
		WHERE gateway_name = ?
		ORDER BY traded_at DESC
		LIMIT ?
	`, gatewayName, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.VTTradeID, &t.VTOrderID, &t.GatewayName, &t.Symbol, &t.Exchange, &t.Direction,
			&t.Offset, &t.Price, &t.Volume, &t.TradedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Exec runs one statement outside any batch.
func (d *Database) Exec(ctx context.Context, s Statement) error {
	_, err := d.DB.ExecContext(ctx, s.Query, s.Args...)
	return err
}
