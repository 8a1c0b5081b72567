package events

import (
	"fmt"
	"time"

	exchange "multiaccount-trade/pkg/exchanges/common"
)

// Kind enumerates the event topics carried by the bus.
type Kind uint8

const (
	KindQuote Kind = iota + 1
	KindOrder
	KindTrade
	KindPosition
	KindContract
	KindAccount
	KindLog

	// kindBarrier is internal to the dispatcher, see Bus.Sync.
	kindBarrier Kind = 0xff
)

func (k Kind) String() string {
	switch k {
	case KindQuote:
		return "quote"
	case KindOrder:
		return "order"
	case KindTrade:
		return "trade"
	case KindPosition:
		return "position"
	case KindContract:
		return "contract"
	case KindAccount:
		return "account"
	case KindLog:
		return "log"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind is the inverse of Kind.String for public kinds.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds() {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Kinds lists every public kind in dispatch-table order.
func Kinds() []Kind {
	return []Kind{KindQuote, KindOrder, KindTrade, KindPosition, KindContract, KindAccount, KindLog}
}

// Event is the unit passed through the bus. Payload holds the value matching Kind:
// exchange.Quote, exchange.Order, exchange.Trade, exchange.Position,
// exchange.Contract, exchange.Account or Log.
type Event struct {
	Kind    Kind
	Payload any
}

// Log is the payload of KindLog events.
type Log struct {
	GatewayName string            `json:"gateway_name"`
	Msg         string            `json:"msg"`
	Level       exchange.Severity `json:"level"`
	Time        time.Time         `json:"time"`
}

func NewQuote(q exchange.Quote) Event       { return Event{Kind: KindQuote, Payload: q} }
func NewOrder(o exchange.Order) Event       { return Event{Kind: KindOrder, Payload: o} }
func NewTrade(t exchange.Trade) Event       { return Event{Kind: KindTrade, Payload: t} }
func NewPosition(p exchange.Position) Event { return Event{Kind: KindPosition, Payload: p} }
func NewContract(c exchange.Contract) Event { return Event{Kind: KindContract, Payload: c} }
func NewAccount(a exchange.Account) Event   { return Event{Kind: KindAccount, Payload: a} }

// NewLog builds a log event stamped with the current time.
func NewLog(gatewayName, msg string, level exchange.Severity) Event {
	return Event{Kind: KindLog, Payload: Log{
		GatewayName: gatewayName,
		Msg:         msg,
		Level:       level,
		Time:        time.Now(),
	}}
}

// PayloadError reports an event whose payload does not match its kind.
type PayloadError struct {
	Kind    Kind
	Payload any
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("events: %s event carries unexpected payload %T", e.Kind, e.Payload)
}

// Payload extracts the typed payload of an event.
func Payload[T any](e Event) (T, error) {
	v, ok := e.Payload.(T)
	if !ok {
		var zero T
		return zero, &PayloadError{Kind: e.Kind, Payload: e.Payload}
	}
	return v, nil
}
