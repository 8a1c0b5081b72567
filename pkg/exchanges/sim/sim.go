// Package sim is a paper-trading gateway. It keeps orders and positions in
// memory, fills at the limit price and reports everything through the sink
// exactly like a live gateway would.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	exchange "multiaccount-trade/pkg/exchanges/common"
)

// Class is the gateway class name the sim gateway registers under.
const Class = "sim"

var (
	ErrNotConnected   = errors.New("sim: not connected")
	ErrThrottled      = errors.New("sim: order rate limit exceeded")
	ErrUnknownSymbol  = errors.New("sim: unknown symbol")
	ErrOrderNotFound  = errors.New("sim: order not found")
	ErrOrderNotActive = errors.New("sim: order is not active")
	ErrInvalidVolume  = errors.New("sim: invalid volume")
)

// Gateway implements exchange.Gateway against an in-memory book.
type Gateway struct {
	name string
	sink exchange.Sink

	inited atomic.Bool

	mu         sync.Mutex
	connected  bool
	settings   Settings
	limiter    *rate.Limiter
	contracts  map[string]ContractSpec
	prices     map[string]decimal.Decimal
	subscribed map[string]bool
	orders     map[string]*exchange.Order
	positions  map[string]*exchange.Position
	account    exchange.Account

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an unconnected sim gateway. Its signature matches gateway.Factory.
func New(name string, sink exchange.Sink) exchange.Gateway {
	return &Gateway{
		name:       name,
		sink:       sink,
		contracts:  make(map[string]ContractSpec),
		prices:     make(map[string]decimal.Decimal),
		subscribed: make(map[string]bool),
		orders:     make(map[string]*exchange.Order),
		positions:  make(map[string]*exchange.Position),
	}
}

func (g *Gateway) Name() string { return g.name }

// ContractsInited reports whether Connect has published all contracts.
func (g *Gateway) ContractsInited() bool { return g.inited.Load() }

// Connect loads the simulated instruments, positions and account and
// publishes them.
func (g *Gateway) Connect(settings map[string]string) error {
	s, err := ParseSettings(g.name, settings)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.connected {
		return nil
	}

	g.settings = s
	if s.MaxOrdersPerSec > 0 {
		burst := int(math.Max(1, math.Ceil(s.MaxOrdersPerSec)))
		g.limiter = rate.NewLimiter(rate.Limit(s.MaxOrdersPerSec), burst)
	}
	g.account = exchange.Account{
		GatewayName: g.name,
		AccountID:   s.AccountID,
		Balance:     s.Balance,
		Frozen:      decimal.Zero,
	}
	g.connected = true

	g.sink.OnLog(g.name, "sim gateway connected", exchange.SeverityInfo)
	for _, c := range s.Contracts {
		vt := exchange.VTSymbol(c.Symbol, c.Exchange)
		g.contracts[vt] = c
		g.prices[vt] = c.StartPrice
		g.sink.OnContract(exchange.Contract{
			GatewayName: g.name,
			Symbol:      c.Symbol,
			Exchange:    c.Exchange,
			Name:        c.Symbol,
			PriceTick:   c.PriceTick,
			Size:        1,
		})
	}
	for _, p := range s.Positions {
		g.positions[p.VTPositionID()] = &p
		g.sink.OnPosition(p)
	}
	g.sink.OnAccount(g.account)
	g.inited.Store(true)
	g.sink.OnLog(g.name, fmt.Sprintf("%d contracts loaded", len(s.Contracts)), exchange.SeverityInfo)

	if s.TickInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		g.cancel = cancel
		g.wg.Add(1)
		go g.walk(ctx, s.TickInterval)
	}
	return nil
}

// Subscribe starts quoting the symbol and publishes its current quote.
func (g *Gateway) Subscribe(req exchange.SubscribeRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return ErrNotConnected
	}
	vt := req.VTSymbol()
	if _, ok := g.contracts[vt]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSymbol, vt)
	}
	g.subscribed[vt] = true
	g.publishQuoteLocked(vt)
	return nil
}

// SendOrder accepts an order and returns its gateway-qualified id. Close
// orders exceeding the closable volume are accepted and then rejected through
// an order event, as exchanges do.
func (g *Gateway) SendOrder(req exchange.OrderRequest) (string, error) {
	if g.limiter != nil && !g.limiter.Allow() {
		return "", ErrThrottled
	}
	if !exchange.ValidVolume(req.Volume) {
		return "", fmt.Errorf("%w: %v", ErrInvalidVolume, req.Volume)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return "", ErrNotConnected
	}
	if _, ok := g.contracts[req.VTSymbol()]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownSymbol, req.VTSymbol())
	}

	o := &exchange.Order{
		GatewayName: g.name,
		OrderID:     uuid.NewString(),
		Symbol:      req.Symbol,
		Exchange:    req.Exchange,
		Type:        req.Type,
		Direction:   req.Direction,
		Offset:      req.Offset,
		Price:       req.Price,
		Volume:      req.Volume,
		Status:      exchange.StatusSubmitted,
		Datetime:    time.Now(),
		Reference:   req.Reference,
	}
	g.orders[o.OrderID] = o

	if req.Offset.IsClose() {
		if err := g.freezeLocked(o); err != nil {
			o.Status = exchange.StatusRejected
			g.sink.OnOrder(*o)
			g.sink.OnLog(g.name, fmt.Sprintf("order %s rejected: %v", o.OrderID, err), exchange.SeverityWarning)
			return o.VTOrderID(), nil
		}
	}
	g.sink.OnOrder(*o)

	if g.settings.AutoFill {
		g.fillLocked(o, o.Volume)
	}
	return o.VTOrderID(), nil
}

// Fill trades volume of an active order at its limit price. It lets callers
// drive partial fills when auto_fill is off.
func (g *Gateway) Fill(orderID string, volume float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if !o.IsActive() {
		return fmt.Errorf("%w: %s", ErrOrderNotActive, orderID)
	}
	if volume <= 0 || volume > o.Remaining() {
		return fmt.Errorf("%w: %v of %v remaining", ErrInvalidVolume, volume, o.Remaining())
	}
	g.fillLocked(o, volume)
	return nil
}

// CancelOrder cancels an active order and releases its frozen volume.
func (g *Gateway) CancelOrder(req exchange.CancelRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return ErrNotConnected
	}
	o, ok := g.orders[req.OrderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, req.OrderID)
	}
	if !o.IsActive() {
		return fmt.Errorf("%w: %s", ErrOrderNotActive, req.OrderID)
	}

	if o.Offset.IsClose() {
		if p := g.closingPositionLocked(o); p != nil {
			p.Frozen = math.Max(0, p.Frozen-o.Remaining())
			g.sink.OnPosition(*p)
		}
	}
	o.Status = exchange.StatusCancelled
	o.Datetime = time.Now()
	g.sink.OnOrder(*o)
	return nil
}

// SetPrice moves the simulated market for a symbol and publishes a quote if
// the symbol is subscribed.
func (g *Gateway) SetPrice(vtSymbol string, price decimal.Decimal) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.contracts[vtSymbol]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSymbol, vtSymbol)
	}
	g.prices[vtSymbol] = price
	if g.subscribed[vtSymbol] {
		g.publishQuoteLocked(vtSymbol)
	}
	return nil
}

// Ping is used by the registry health check.
func (g *Gateway) Ping(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return ErrNotConnected
	}
	return nil
}

// Close stops the quote walk and disconnects. It is safe to call repeatedly.
func (g *Gateway) Close() error {
	g.mu.Lock()
	cancel := g.cancel
	g.cancel = nil
	g.connected = false
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	g.wg.Wait()
	return nil
}

func (g *Gateway) closingPositionLocked(o *exchange.Order) *exchange.Position {
	id := exchange.PositionID(g.name, o.VTSymbol(), o.Direction.Opposite())
	return g.positions[id]
}

// freezeLocked reserves the closable volume for a close order.
func (g *Gateway) freezeLocked(o *exchange.Order) error {
	p := g.closingPositionLocked(o)
	if p == nil {
		return errors.New("no position to close")
	}
	if p.Available() < o.Volume {
		return fmt.Errorf("available %v, requested %v", p.Available(), o.Volume)
	}
	switch o.Offset {
	case exchange.OffsetCloseYesterday:
		if o.Volume > p.YdVolume {
			return fmt.Errorf("yesterday volume %v, requested %v", p.YdVolume, o.Volume)
		}
	case exchange.OffsetCloseToday:
		if today := p.Volume - p.YdVolume; o.Volume > today {
			return fmt.Errorf("today volume %v, requested %v", today, o.Volume)
		}
	}
	p.Frozen += o.Volume
	g.sink.OnPosition(*p)
	return nil
}

func (g *Gateway) fillLocked(o *exchange.Order, volume float64) {
	now := time.Now()
	o.Traded += volume
	o.Datetime = now
	if o.Remaining() <= 0 {
		o.Status = exchange.StatusFilled
	} else {
		o.Status = exchange.StatusPartiallyFilled
	}
	g.sink.OnOrder(*o)

	g.sink.OnTrade(exchange.Trade{
		GatewayName: g.name,
		TradeID:     uuid.NewString(),
		OrderID:     o.OrderID,
		Symbol:      o.Symbol,
		Exchange:    o.Exchange,
		Direction:   o.Direction,
		Offset:      o.Offset,
		Price:       o.Price,
		Volume:      volume,
		Datetime:    now,
	})

	if o.Offset.IsClose() {
		p := g.closingPositionLocked(o)
		if p == nil {
			return
		}
		p.Frozen = math.Max(0, p.Frozen-volume)
		p.Volume -= volume
		switch o.Offset {
		case exchange.OffsetCloseYesterday:
			p.YdVolume -= volume
		case exchange.OffsetClose:
			p.YdVolume -= math.Min(p.YdVolume, volume)
		}
		if p.Volume == 0 {
			p.Price = decimal.Zero
		}
		g.sink.OnPosition(*p)
		return
	}

	id := exchange.PositionID(g.name, o.VTSymbol(), o.Direction)
	p, ok := g.positions[id]
	if !ok {
		p = &exchange.Position{
			GatewayName: g.name,
			Symbol:      o.Symbol,
			Exchange:    o.Exchange,
			Direction:   o.Direction,
		}
		g.positions[id] = p
	}
	newVol := p.Volume + volume
	p.Price = p.Price.Mul(decimal.NewFromFloat(p.Volume)).
		Add(o.Price.Mul(decimal.NewFromFloat(volume))).
		Div(decimal.NewFromFloat(newVol))
	p.Volume = newVol
	g.sink.OnPosition(*p)
}

func (g *Gateway) publishQuoteLocked(vt string) {
	c := g.contracts[vt]
	price := g.prices[vt]
	g.sink.OnQuote(exchange.Quote{
		GatewayName: g.name,
		Symbol:      c.Symbol,
		Exchange:    c.Exchange,
		BidPrice:    price.Sub(c.PriceTick),
		BidVolume:   10,
		AskPrice:    price.Add(c.PriceTick),
		AskVolume:   10,
		LastPrice:   price,
		Datetime:    time.Now(),
	})
}
