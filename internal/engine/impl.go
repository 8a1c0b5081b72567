package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"multiaccount-trade/internal/data"
	"multiaccount-trade/internal/events"
	"multiaccount-trade/internal/gateway"
	"multiaccount-trade/internal/logging"
	"multiaccount-trade/internal/monitor"
	"multiaccount-trade/internal/order"
	"multiaccount-trade/internal/persistence"
	"multiaccount-trade/internal/state"
	"multiaccount-trade/pkg/config"
	"multiaccount-trade/pkg/db"
	exchange "multiaccount-trade/pkg/exchanges/common"
	"multiaccount-trade/pkg/exchanges/sim"
)

var ErrJournalDisabled = errors.New("journal is not enabled")

// Engine implements Service by composing the core components.
type Engine struct {
	opts  Options
	log   zerolog.Logger
	aging []exchange.Exchange

	bus      *events.Bus
	cache    *state.Cache
	classes  *gateway.Classes
	registry *gateway.Registry
	router   *order.Router
	metrics  *monitor.SystemMetrics
	data     *data.Store
	sink     *logging.Sink
	journal  *persistence.Journal

	mu        sync.RWMutex
	subscribe string

	startedAt time.Time
	closeOnce sync.Once
	closeErr  error
}

var _ Service = (*Engine)(nil)

// DefaultClasses returns the gateway classes built into the binary.
func DefaultClasses() *gateway.Classes {
	c := gateway.NewClasses()
	c.Add(sim.Class, sim.New)
	return c
}

// New builds the engine and starts event dispatch. Gateways are added by
// Start or AddGateway.
func New(opts Options) (*Engine, error) {
	logger := opts.Logger.With().Str("component", "engine").Logger()
	if opts.Classes == nil {
		opts.Classes = DefaultClasses()
	}
	if opts.Registry == (gateway.Config{}) {
		opts.Registry = gateway.DefaultConfig()
	}
	aging := opts.AgingExchanges
	if aging == nil {
		aging = append([]exchange.Exchange(nil), config.DefaultAgingExchanges...)
	}

	e := &Engine{
		opts:      opts,
		log:       logger,
		aging:     aging,
		bus:       events.NewBus(opts.Logger),
		cache:     state.NewCache(),
		classes:   opts.Classes,
		registry:  gateway.NewRegistry(opts.Registry, opts.Logger),
		metrics:   monitor.NewSystemMetrics(),
		subscribe: opts.SubscribeGateway,
		startedAt: time.Now(),
	}

	e.bus.SetObserver(e.metrics)
	e.registry.SetRecorder(e.metrics)
	e.router = order.NewRouter(e.cache, e.registry, e.bus, aging)
	e.router.SetRecorder(e.metrics)

	// The cache goes first so that every later handler sees updated state.
	e.cache.Register(e.bus)

	if opts.LogDir != "" {
		sink, err := logging.NewSink(opts.LogDir, opts.Console)
		if err != nil {
			return nil, err
		}
		e.sink = sink
		sink.Register(e.bus)
	}

	store, err := data.NewStore(opts.LoadDir, opts.BackupDir, e.bus)
	if err != nil {
		e.closeComponents()
		return nil, err
	}
	e.data = store

	if opts.JournalPath != "" {
		j, err := persistence.OpenJournal(opts.JournalPath, opts.JournalFlush, opts.Logger)
		if err != nil {
			e.closeComponents()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		e.journal = j
		j.Register(e.bus)
	}

	e.bus.Register(events.KindTrade, e.onTrade)
	e.bus.Start()
	return e, nil
}

// Start creates every configured gateway, connects them in parallel and
// starts health checks. Gateways of unknown classes are logged and skipped.
// Connect failures are returned joined; the remaining gateways stay usable.
func (e *Engine) Start(ctx context.Context, gateways []config.GatewaySetting) error {
	settings := make(map[string]map[string]string, len(gateways))
	for _, g := range gateways {
		if _, err := e.AddGateway(g.Class, g.Name); err != nil {
			continue
		}
		settings[g.Name] = g.Settings
	}

	err := e.registry.ConnectAll(ctx, settings)
	e.registry.Start(ctx)
	e.bus.Log("", "Engine inited", exchange.SeverityInfo)
	return err
}

// AddGateway creates and registers one gateway instance.
func (e *Engine) AddGateway(class, name string) (exchange.Gateway, error) {
	gw, err := e.registry.Add(e.classes, class, name, e.bus.GatewaySink())
	if err != nil {
		e.bus.Log(name, fmt.Sprintf("Add gateway %s failed: %v", class, err), exchange.SeverityError)
		return nil, err
	}

	e.mu.Lock()
	if e.subscribe == "" {
		e.subscribe = name
	}
	e.mu.Unlock()
	return gw, nil
}

// Connect connects one registered gateway.
func (e *Engine) Connect(gatewayName string, settings map[string]string) error {
	return e.registry.Connect(gatewayName, settings)
}

// Gateway returns the registered gateway instance.
func (e *Engine) Gateway(gatewayName string) (exchange.Gateway, bool) {
	return e.registry.Get(gatewayName)
}

// Metrics exposes the counters for the health server and the API.
func (e *Engine) Metrics() *monitor.SystemMetrics { return e.metrics }

// Bus exposes the event bus for components outside the engine.
func (e *Engine) Bus() *events.Bus { return e.bus }

// Sync waits until every event published so far has been applied.
func (e *Engine) Sync() { e.bus.Sync() }

// Log publishes a log event.
func (e *Engine) Log(gatewayName, msg string, level exchange.Severity) {
	e.bus.Log(gatewayName, msg, level)
}

func (e *Engine) OpenLong(vtSymbol string, volume float64, gatewayName string) []string {
	return e.router.OpenLong(vtSymbol, volume, gatewayName)
}

func (e *Engine) OpenShort(vtSymbol string, volume float64, gatewayName string) []string {
	return e.router.OpenShort(vtSymbol, volume, gatewayName)
}

func (e *Engine) CloseLong(vtSymbol string, volume float64, gatewayName string) []string {
	return e.router.CloseLong(vtSymbol, volume, gatewayName)
}

func (e *Engine) CloseShort(vtSymbol string, volume float64, gatewayName string) []string {
	return e.router.CloseShort(vtSymbol, volume, gatewayName)
}

func (e *Engine) Execute(intent order.Intent, vtSymbol string, volume float64, gatewayName string) []string {
	return e.router.Execute(intent, vtSymbol, volume, gatewayName)
}

func (e *Engine) CancelActiveOrder(vtOrderID string) error {
	return e.router.CancelActiveOrder(vtOrderID)
}

// Subscribe requests market data for every symbol with a known contract
// through the subscribe gateway. It returns the symbols actually subscribed.
func (e *Engine) Subscribe(vtSymbols []string) []string {
	gatewayName := e.SubscribeGateway()
	if gatewayName == "" {
		e.bus.Log("", "Subscribe skipped: no gateway", exchange.SeverityWarning)
		return nil
	}

	done := make([]string, 0, len(vtSymbols))
	for _, vt := range vtSymbols {
		c, ok := e.cache.Contract(vt)
		if !ok {
			continue
		}
		req := exchange.SubscribeRequest{Symbol: c.Symbol, Exchange: c.Exchange}
		if err := e.registry.Subscribe(gatewayName, req); err != nil {
			e.bus.Log(gatewayName, fmt.Sprintf("Subscribe %s failed: %v", vt, err), exchange.SeverityWarning)
			continue
		}
		done = append(done, vt)
	}
	e.bus.Log(gatewayName, fmt.Sprintf("Subscribe %v", vtSymbols), exchange.SeverityInfo)
	return done
}

func (e *Engine) Quote(vtSymbol string) (exchange.Quote, bool) { return e.cache.Quote(vtSymbol) }
func (e *Engine) Quotes() []exchange.Quote                     { return e.cache.Quotes() }

func (e *Engine) Contract(vtSymbol string) (exchange.Contract, bool) {
	return e.cache.Contract(vtSymbol)
}
func (e *Engine) Contracts() []exchange.Contract { return e.cache.Contracts() }

func (e *Engine) Order(vtOrderID string) (exchange.Order, bool) { return e.cache.Order(vtOrderID) }
func (e *Engine) Orders() []exchange.Order                      { return e.cache.Orders() }

func (e *Engine) ActiveOrder(vtOrderID string) (exchange.Order, bool) {
	return e.cache.ActiveOrder(vtOrderID)
}
func (e *Engine) ActiveOrders() []exchange.Order { return e.cache.ActiveOrders() }

func (e *Engine) Trade(vtTradeID string) (exchange.Trade, bool) { return e.cache.Trade(vtTradeID) }
func (e *Engine) Trades() []exchange.Trade                      { return e.cache.Trades() }

func (e *Engine) Position(vtPositionID string) (exchange.Position, bool) {
	return e.cache.Position(vtPositionID)
}
func (e *Engine) Positions() []exchange.Position { return e.cache.Positions() }

func (e *Engine) Account(gatewayName string) (exchange.Account, bool) {
	return e.cache.Account(gatewayName)
}
func (e *Engine) Accounts() []exchange.Account { return e.cache.Accounts() }

// GatewayNames lists gateways in registration order.
func (e *Engine) GatewayNames() []string { return e.registry.Names() }

// GatewayClassNames lists the classes gateways can be created from.
func (e *Engine) GatewayClassNames() []string { return e.classes.Names() }

func (e *Engine) IsGatewayInited(gatewayName string) bool { return e.registry.Inited(gatewayName) }

func (e *Engine) SubscribeGateway() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.subscribe
}

func (e *Engine) JournalOrders(ctx context.Context, gatewayName string, limit int) ([]db.Order, error) {
	if e.journal == nil {
		return nil, ErrJournalDisabled
	}
	if err := e.journal.Flush(); err != nil {
		return nil, err
	}
	return e.journal.Queries().OrdersByGateway(ctx, gatewayName, limit)
}

func (e *Engine) JournalTrades(ctx context.Context, gatewayName string, limit int) ([]db.Trade, error) {
	if e.journal == nil {
		return nil, ErrJournalDisabled
	}
	if err := e.journal.Flush(); err != nil {
		return nil, err
	}
	return e.journal.Queries().TradesByGateway(ctx, gatewayName, limit)
}

func (e *Engine) Data() data.Service { return e.data }

func (e *Engine) SubscribeEvents(kind events.Kind, buffer int) (<-chan events.Event, func()) {
	return e.bus.Subscribe(kind, buffer)
}

func (e *Engine) SystemStatus(ctx context.Context) *SystemStatus {
	names := e.registry.Names()
	gws := make([]GatewayStatus, 0, len(names))
	for _, n := range names {
		gws = append(gws, GatewayStatus{
			Name:    n,
			Inited:  e.registry.Inited(n),
			Healthy: e.registry.Healthy(n),
		})
	}
	e.metrics.SetGatewayPoolStats(e.registry.Stats())

	return &SystemStatus{
		NodeID:           e.opts.NodeID,
		Env:              e.opts.Env,
		Version:          e.opts.Version,
		SubscribeGateway: e.SubscribeGateway(),
		AgingExchanges:   e.aging,
		Gateways:         gws,
		GatewayClasses:   e.classes.Names(),
		State:            e.cache.Counts(),
		PendingEvents:    e.bus.Pending(),
		Journal:          e.journal != nil,
		Metrics:          e.metrics.GetSnapshot(),
		StartedAt:        e.startedAt,
		ServerTime:       time.Now(),
	}
}

// Close stops dispatch, closes the log, journal and data components and then
// every gateway. Safe to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.bus.Stop()
		errs := []error{e.closeComponents()}
		if err := e.registry.Close(); err != nil {
			errs = append(errs, err)
		}
		e.closeErr = errors.Join(errs...)
	})
	return e.closeErr
}

func (e *Engine) closeComponents() error {
	var errs []error
	if e.sink != nil {
		errs = append(errs, e.sink.Close())
	}
	if e.journal != nil {
		errs = append(errs, e.journal.Close())
	}
	if e.data != nil {
		errs = append(errs, e.data.Close())
	}
	return errors.Join(errs...)
}

func (e *Engine) onTrade(ev events.Event) error {
	t, err := events.Payload[exchange.Trade](ev)
	if err != nil {
		return err
	}
	e.bus.Log(t.GatewayName, fmt.Sprintf("Trade %s %s %s %s",
		t.VTSymbol(), strconv.FormatFloat(t.Volume, 'f', -1, 64), t.Direction, t.Offset), exchange.SeverityInfo)
	return nil
}
