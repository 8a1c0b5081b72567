package common

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of an order, trade or position.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// Offset tells whether an order opens a new position or closes an existing one.
type Offset string

const (
	OffsetOpen           Offset = "OPEN"
	OffsetClose          Offset = "CLOSE"
	OffsetCloseToday     Offset = "CLOSETODAY"
	OffsetCloseYesterday Offset = "CLOSEYESTERDAY"
)

// IsClose reports whether the offset reduces a position.
func (o Offset) IsClose() bool {
	switch o {
	case OffsetClose, OffsetCloseToday, OffsetCloseYesterday:
		return true
	default:
		return false
	}
}

// OrderType denotes basic order types.
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// Status normalizes exchange order status into a small set.
type Status string

const (
	StatusSubmitted       Status = "SUBMITTED"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCancelled       Status = "CANCELLED"
	StatusRejected        Status = "REJECTED"
)

// IsTerminal reports whether no further updates are expected for the order.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	default:
		return false
	}
}

// Exchange identifies a trading venue.
type Exchange string

const (
	ExchangeCFFEX Exchange = "CFFEX"
	ExchangeSHFE  Exchange = "SHFE"
	ExchangeCZCE  Exchange = "CZCE"
	ExchangeDCE   Exchange = "DCE"
	ExchangeINE   Exchange = "INE"
	ExchangeGFEX  Exchange = "GFEX"
	ExchangeSSE   Exchange = "SSE"
	ExchangeSZSE  Exchange = "SZSE"
	ExchangeLocal Exchange = "LOCAL"
)

var exchanges = []Exchange{
	ExchangeCFFEX, ExchangeSHFE, ExchangeCZCE, ExchangeDCE, ExchangeINE,
	ExchangeGFEX, ExchangeSSE, ExchangeSZSE, ExchangeLocal,
}

// ParseExchange maps a venue code, in any case, to a known Exchange.
func ParseExchange(s string) (Exchange, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, ex := range exchanges {
		if string(ex) == s {
			return ex, true
		}
	}
	return "", false
}

// Severity is the level attached to log messages emitted by the core and gateways.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "DEBUG"
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(text []byte) error {
	for v := SeverityDebug; v <= SeverityCritical; v++ {
		if v.String() == string(text) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q", text)
}

// ValidVolume reports whether v can be the volume of an order: positive and finite.
func ValidVolume(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// VTSymbol joins an exchange symbol and its venue into the id used across the core.
func VTSymbol(symbol string, exchange Exchange) string {
	return symbol + "." + string(exchange)
}

// SplitVTSymbol is the inverse of VTSymbol. The venue is the text after the last dot.
func SplitVTSymbol(vtSymbol string) (string, Exchange, bool) {
	i := strings.LastIndex(vtSymbol, ".")
	if i <= 0 || i == len(vtSymbol)-1 {
		return "", "", false
	}
	return vtSymbol[:i], Exchange(vtSymbol[i+1:]), true
}

// GatewayID prefixes a gateway-local identifier with the gateway name.
func GatewayID(gatewayName, id string) string {
	return gatewayName + "." + id
}

// PositionID builds the key positions are cached under.
func PositionID(gatewayName, vtSymbol string, direction Direction) string {
	return gatewayName + "." + vtSymbol + "." + string(direction)
}

// Quote is the top of book for one symbol. It is replaced wholesale on every tick.
type Quote struct {
	GatewayName string          `json:"gateway_name"`
	Symbol      string          `json:"symbol"`
	Exchange    Exchange        `json:"exchange"`
	BidPrice    decimal.Decimal `json:"bid_price"`
	BidVolume   float64         `json:"bid_volume"`
	AskPrice    decimal.Decimal `json:"ask_price"`
	AskVolume   float64         `json:"ask_volume"`
	LastPrice   decimal.Decimal `json:"last_price"`
	Datetime    time.Time       `json:"datetime"`
}

func (q Quote) VTSymbol() string { return VTSymbol(q.Symbol, q.Exchange) }

// Contract is static instrument metadata.
type Contract struct {
	GatewayName string          `json:"gateway_name"`
	Symbol      string          `json:"symbol"`
	Exchange    Exchange        `json:"exchange"`
	Name        string          `json:"name"`
	PriceTick   decimal.Decimal `json:"price_tick"`
	Size        float64         `json:"size"`
}

func (c Contract) VTSymbol() string { return VTSymbol(c.Symbol, c.Exchange) }

// Order is the latest known state of an order.
type Order struct {
	GatewayName string          `json:"gateway_name"`
	OrderID     string          `json:"order_id"`
	Symbol      string          `json:"symbol"`
	Exchange    Exchange        `json:"exchange"`
	Type        OrderType       `json:"type"`
	Direction   Direction       `json:"direction"`
	Offset      Offset          `json:"offset"`
	Price       decimal.Decimal `json:"price"`
	Volume      float64         `json:"volume"`
	Traded      float64         `json:"traded"`
	Status      Status          `json:"status"`
	Datetime    time.Time       `json:"datetime"`
	Reference   string          `json:"reference"`
}

func (o Order) VTSymbol() string  { return VTSymbol(o.Symbol, o.Exchange) }
func (o Order) VTOrderID() string { return GatewayID(o.GatewayName, o.OrderID) }

// IsActive reports whether the order can still trade.
func (o Order) IsActive() bool { return !o.Status.IsTerminal() }

// Remaining returns the untraded volume.
func (o Order) Remaining() float64 { return o.Volume - o.Traded }

// CancelRequest builds the request that cancels this order on its gateway.
func (o Order) CancelRequest() CancelRequest {
	return CancelRequest{
		OrderID:  o.OrderID,
		Symbol:   o.Symbol,
		Exchange: o.Exchange,
	}
}

// Trade is a single fill. Trades are never updated once recorded.
type Trade struct {
	GatewayName string          `json:"gateway_name"`
	TradeID     string          `json:"trade_id"`
	OrderID     string          `json:"order_id"`
	Symbol      string          `json:"symbol"`
	Exchange    Exchange        `json:"exchange"`
	Direction   Direction       `json:"direction"`
	Offset      Offset          `json:"offset"`
	Price       decimal.Decimal `json:"price"`
	Volume      float64         `json:"volume"`
	Datetime    time.Time       `json:"datetime"`
}

func (t Trade) VTSymbol() string  { return VTSymbol(t.Symbol, t.Exchange) }
func (t Trade) VTTradeID() string { return GatewayID(t.GatewayName, t.TradeID) }
func (t Trade) VTOrderID() string { return GatewayID(t.GatewayName, t.OrderID) }

// Position is the holding of one direction of one symbol on one gateway.
//
// Frozen is the volume reserved by pending close orders. YdVolume is the part of
// Volume carried over from previous sessions; only venues with today/yesterday
// position aging report it.
type Position struct {
	GatewayName string          `json:"gateway_name"`
	Symbol      string          `json:"symbol"`
	Exchange    Exchange        `json:"exchange"`
	Direction   Direction       `json:"direction"`
	Volume      float64         `json:"volume"`
	Frozen      float64         `json:"frozen"`
	YdVolume    float64         `json:"yd_volume"`
	Price       decimal.Decimal `json:"price"`
	PnL         decimal.Decimal `json:"pnl"`
}

func (p Position) VTSymbol() string { return VTSymbol(p.Symbol, p.Exchange) }
func (p Position) VTPositionID() string {
	return PositionID(p.GatewayName, p.VTSymbol(), p.Direction)
}

// Available returns the volume that can still be closed.
func (p Position) Available() float64 { return p.Volume - p.Frozen }

// Account holds balance fields of one gateway account.
type Account struct {
	GatewayName string          `json:"gateway_name"`
	AccountID   string          `json:"account_id"`
	Balance     decimal.Decimal `json:"balance"`
	Frozen      decimal.Decimal `json:"frozen"`
}

// Available returns the balance not reserved by pending orders.
func (a Account) Available() decimal.Decimal { return a.Balance.Sub(a.Frozen) }

// SubscribeRequest asks a gateway for market data of one symbol.
type SubscribeRequest struct {
	Symbol   string   `json:"symbol"`
	Exchange Exchange `json:"exchange"`
}

func (r SubscribeRequest) VTSymbol() string { return VTSymbol(r.Symbol, r.Exchange) }

// OrderRequest captures an order to be sent to an exchange.
type OrderRequest struct {
	Symbol    string          `json:"symbol"`
	Exchange  Exchange        `json:"exchange"`
	Price     decimal.Decimal `json:"price"`
	Volume    float64         `json:"volume"`
	Direction Direction       `json:"direction"`
	Offset    Offset          `json:"offset"`
	Type      OrderType       `json:"type"`
	Reference string          `json:"reference"`
}

func (r OrderRequest) VTSymbol() string { return VTSymbol(r.Symbol, r.Exchange) }

// CancelRequest identifies an order to cancel.
type CancelRequest struct {
	OrderID  string   `json:"order_id"`
	Symbol   string   `json:"symbol"`
	Exchange Exchange `json:"exchange"`
}
