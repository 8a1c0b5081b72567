package order

import (
	"fmt"

	"github.com/shopspring/decimal"

	exchange "multiaccount-trade/pkg/exchanges/common"
)

// Intent is a high level trading instruction.
type Intent int

const (
	OpenLong   Intent = iota + 1 // buy to open
	OpenShort                    // sell to open
	CloseLong                    // buy to close, exits a short position
	CloseShort                   // sell to close, exits a long position
)

func (i Intent) String() string {
	switch i {
	case OpenLong:
		return "open-long"
	case OpenShort:
		return "open-short"
	case CloseLong:
		return "close-long"
	case CloseShort:
		return "close-short"
	default:
		return fmt.Sprintf("intent(%d)", int(i))
	}
}

// ParseIntent maps the names returned by Intent.String back to intents.
func ParseIntent(s string) (Intent, bool) {
	for _, i := range []Intent{OpenLong, OpenShort, CloseLong, CloseShort} {
		if i.String() == s {
			return i, true
		}
	}
	return 0, false
}

// Direction is the side of the orders the intent produces.
func (i Intent) Direction() exchange.Direction {
	if i == OpenLong || i == CloseLong {
		return exchange.DirectionLong
	}
	return exchange.DirectionShort
}

// Closing reports whether the intent reduces an existing position.
func (i Intent) Closing() bool {
	return i == CloseLong || i == CloseShort
}

// slippageTicks is how far through the touch the limit price is placed.
var slippageTicks = decimal.NewFromInt(2)

// MarketData is the read side of the state cache the planner needs.
type MarketData interface {
	Quote(vtSymbol string) (exchange.Quote, bool)
	Contract(vtSymbol string) (exchange.Contract, bool)
	Position(vtPositionID string) (exchange.Position, bool)
}

// Planner turns an intent into concrete order requests.
type Planner struct {
	aging map[exchange.Exchange]bool
}

// NewPlanner creates a planner. Closing orders on the aging exchanges are
// split between today's and yesterday's positions.
func NewPlanner(aging []exchange.Exchange) *Planner {
	p := &Planner{aging: make(map[exchange.Exchange]bool, len(aging))}
	for _, ex := range aging {
		p.aging[ex] = true
	}
	return p
}

// Aging reports whether closes on ex must name today's or yesterday's volume.
func (p *Planner) Aging(ex exchange.Exchange) bool {
	return p.aging[ex]
}

// Plan returns the order legs for an intent in submission order.
func (p *Planner) Plan(md MarketData, intent Intent, vtSymbol string, volume float64, gatewayName string) ([]exchange.OrderRequest, error) {
	if !exchange.ValidVolume(volume) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVolume, volume)
	}

	quote, ok := md.Quote(vtSymbol)
	if !ok {
		return nil, fmt.Errorf("%w: no quote for %s", ErrMissingMarketData, vtSymbol)
	}
	contract, ok := md.Contract(vtSymbol)
	if !ok {
		return nil, fmt.Errorf("%w: no contract for %s", ErrMissingMarketData, vtSymbol)
	}

	base := exchange.OrderRequest{
		Symbol:    contract.Symbol,
		Exchange:  contract.Exchange,
		Price:     takerPrice(intent.Direction(), quote, contract.PriceTick),
		Direction: intent.Direction(),
		Type:      exchange.OrderTypeLimit,
		Reference: intent.String(),
	}

	if !intent.Closing() {
		base.Volume = volume
		base.Offset = exchange.OffsetOpen
		return []exchange.OrderRequest{base}, nil
	}

	posID := exchange.PositionID(gatewayName, vtSymbol, intent.Direction().Opposite())
	pos, ok := md.Position(posID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingPosition, posID)
	}
	legs, err := closeLegs(pos, volume, p.Aging(contract.Exchange))
	if err != nil {
		return nil, err
	}

	reqs := make([]exchange.OrderRequest, len(legs))
	for i, l := range legs {
		reqs[i] = base
		reqs[i].Offset = l.offset
		reqs[i].Volume = l.volume
	}
	return reqs, nil
}

func takerPrice(dir exchange.Direction, q exchange.Quote, tick decimal.Decimal) decimal.Decimal {
	slip := tick.Mul(slippageTicks)
	if dir == exchange.DirectionLong {
		return q.AskPrice.Add(slip)
	}
	return q.BidPrice.Sub(slip)
}

type leg struct {
	offset exchange.Offset
	volume float64
}

// closeLegs nets a close of volume against pos. On aging exchanges
// yesterday's available volume is closed first and the rest from today.
func closeLegs(pos exchange.Position, volume float64, aging bool) ([]leg, error) {
	if pos.Available() < volume {
		return nil, fmt.Errorf("%w: %s available %v, requested %v",
			ErrInsufficientVolume, pos.VTPositionID(), pos.Available(), volume)
	}
	if !aging {
		return []leg{{exchange.OffsetClose, volume}}, nil
	}

	switch {
	case pos.YdVolume == 0:
		return []leg{{exchange.OffsetCloseToday, volume}}, nil
	case pos.Volume == pos.YdVolume:
		return []leg{{exchange.OffsetCloseYesterday, volume}}, nil
	}

	ydAvailable := pos.YdVolume - pos.Frozen
	switch {
	case ydAvailable <= 0:
		return []leg{{exchange.OffsetCloseToday, volume}}, nil
	case ydAvailable >= volume:
		return []leg{{exchange.OffsetCloseYesterday, volume}}, nil
	default:
		return []leg{
			{exchange.OffsetCloseYesterday, ydAvailable},
			{exchange.OffsetCloseToday, volume - ydAvailable},
		}, nil
	}
}
