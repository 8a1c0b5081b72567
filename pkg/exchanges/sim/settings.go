package sim

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	exchange "multiaccount-trade/pkg/exchanges/common"
)

// Settings keys understood by Connect:
//
//	contracts           "rb2410.SHFE:1:3500,IF2409.CFFEX:0.2" (vt symbol:tick[:start price])
//	positions           "rb2410.SHFE:LONG:10:4" (vt symbol:direction:volume[:yesterday volume])
//	account_id          defaults to the gateway name
//	balance             starting balance, default 1000000
//	auto_fill           "true" fills every order at its limit price immediately
//	max_orders_per_sec  order rate limit, 0 disables throttling
//	tick_interval       quote random walk period (Go duration), empty disables the walk
type Settings struct {
	Contracts       []ContractSpec
	Positions       []exchange.Position
	AccountID       string
	Balance         decimal.Decimal
	AutoFill        bool
	MaxOrdersPerSec float64
	TickInterval    time.Duration
}

// ContractSpec describes one simulated instrument.
type ContractSpec struct {
	Symbol     string
	Exchange   exchange.Exchange
	PriceTick  decimal.Decimal
	StartPrice decimal.Decimal
}

var defaultStartPrice = decimal.NewFromInt(100)

// ParseSettings reads the connect settings map.
func ParseSettings(name string, m map[string]string) (Settings, error) {
	s := Settings{
		AccountID: name,
		Balance:   decimal.NewFromInt(1_000_000),
	}

	var err error
	if v := m["contracts"]; v != "" {
		if s.Contracts, err = parseContracts(v); err != nil {
			return s, err
		}
	}
	if v := m["positions"]; v != "" {
		if s.Positions, err = parsePositions(name, v); err != nil {
			return s, err
		}
	}
	if v := m["account_id"]; v != "" {
		s.AccountID = v
	}
	if v := m["balance"]; v != "" {
		if s.Balance, err = decimal.NewFromString(v); err != nil {
			return s, fmt.Errorf("balance: %w", err)
		}
	}
	if v := m["auto_fill"]; v != "" {
		if s.AutoFill, err = strconv.ParseBool(v); err != nil {
			return s, fmt.Errorf("auto_fill: %w", err)
		}
	}
	if v := m["max_orders_per_sec"]; v != "" {
		if s.MaxOrdersPerSec, err = strconv.ParseFloat(v, 64); err != nil {
			return s, fmt.Errorf("max_orders_per_sec: %w", err)
		}
	}
	if v := m["tick_interval"]; v != "" {
		if s.TickInterval, err = time.ParseDuration(v); err != nil {
			return s, fmt.Errorf("tick_interval: %w", err)
		}
	}
	return s, nil
}

func parseContracts(v string) ([]ContractSpec, error) {
	var specs []ContractSpec
	for _, item := range splitList(v) {
		parts := strings.Split(item, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("contracts: malformed entry %q", item)
		}
		sym, ex, ok := exchange.SplitVTSymbol(parts[0])
		if !ok {
			return nil, fmt.Errorf("contracts: malformed symbol %q", parts[0])
		}
		tick, err := decimal.NewFromString(parts[1])
		if err != nil || !tick.IsPositive() {
			return nil, fmt.Errorf("contracts: bad tick %q for %s", parts[1], parts[0])
		}
		start := defaultStartPrice
		if len(parts) == 3 {
			if start, err = decimal.NewFromString(parts[2]); err != nil {
				return nil, fmt.Errorf("contracts: bad price %q for %s", parts[2], parts[0])
			}
		}
		specs = append(specs, ContractSpec{Symbol: sym, Exchange: ex, PriceTick: tick, StartPrice: start})
	}
	return specs, nil
}

func parsePositions(gatewayName, v string) ([]exchange.Position, error) {
	var out []exchange.Position
	for _, item := range splitList(v) {
		parts := strings.Split(item, ":")
		if len(parts) < 3 || len(parts) > 4 {
			return nil, fmt.Errorf("positions: malformed entry %q", item)
		}
		sym, ex, ok := exchange.SplitVTSymbol(parts[0])
		if !ok {
			return nil, fmt.Errorf("positions: malformed symbol %q", parts[0])
		}
		dir := exchange.Direction(strings.ToUpper(parts[1]))
		if dir != exchange.DirectionLong && dir != exchange.DirectionShort {
			return nil, fmt.Errorf("positions: bad direction %q", parts[1])
		}
		vol, err := strconv.ParseFloat(parts[2], 64)
		if err != nil || vol < 0 {
			return nil, fmt.Errorf("positions: bad volume %q", parts[2])
		}
		yd := 0.0
		if len(parts) == 4 {
			if yd, err = strconv.ParseFloat(parts[3], 64); err != nil || yd < 0 || yd > vol {
				return nil, fmt.Errorf("positions: bad yesterday volume %q", parts[3])
			}
		}
		out = append(out, exchange.Position{
			GatewayName: gatewayName,
			Symbol:      sym,
			Exchange:    ex,
			Direction:   dir,
			Volume:      vol,
			YdVolume:    yd,
		})
	}
	return out, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
