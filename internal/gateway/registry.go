// Package gateway holds the configured gateway instances and forwards core
// requests to them by name.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	exchange "multiaccount-trade/pkg/exchanges/common"
)

var (
	ErrGatewayNotFound  = errors.New("gateway not found")
	ErrDuplicateGateway = errors.New("gateway already registered")
	ErrUnknownClass     = errors.New("unknown gateway class")
)

// Recorder receives submit latencies and health transitions. Implemented by
// monitor.SystemMetrics.
type Recorder interface {
	RecordSubmit(gatewayName string, d time.Duration, err error)
	SetGatewayHealth(gatewayName string, healthy bool)
}

// entry holds a gateway with metadata for lifecycle management.
type entry struct {
	Gateway   exchange.Gateway
	Class     string
	CreatedAt time.Time
	LastUsed  time.Time
	HealthyAt time.Time
	Failures  int
}

// Config holds configuration for the Registry.
type Config struct {
	HealthInterval     time.Duration // Interval between health checks
	PingTimeout        time.Duration // Deadline of a single health check
	FailureThreshold   int           // Consecutive failures before a gateway counts as unhealthy
	ConnectConcurrency int           // Parallel Connect calls in ConnectAll
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		HealthInterval:     30 * time.Second,
		PingTimeout:        10 * time.Second,
		FailureThreshold:   3,
		ConnectConcurrency: 4,
	}
}

// Registry owns one gateway instance per configured account. The lock guards
// lookups and metadata only and is never held across a gateway call.
type Registry struct {
	mu       sync.RWMutex
	gateways map[string]*entry
	order    []string

	config   Config
	recorder Recorder
	log      zerolog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config, logger zerolog.Logger) *Registry {
	return &Registry{
		gateways: make(map[string]*entry),
		config:   cfg,
		log:      logger.With().Str("component", "gateway").Logger(),
		stopCh:   make(chan struct{}),
	}
}

// SetRecorder attaches metrics. Must be called before gateways are used.
func (r *Registry) SetRecorder(rec Recorder) {
	r.recorder = rec
}

// Register adds a gateway under its own name.
func (r *Registry) Register(gw exchange.Gateway) error {
	return r.register(gw, "")
}

// Add creates a gateway of class through classes and registers it.
func (r *Registry) Add(classes *Classes, class, name string, sink exchange.Sink) (exchange.Gateway, error) {
	gw, err := classes.New(class, name, sink)
	if err != nil {
		return nil, err
	}
	if err := r.register(gw, class); err != nil {
		return nil, err
	}
	return gw, nil
}

func (r *Registry) register(gw exchange.Gateway, class string) error {
	name := gw.Name()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.gateways[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateGateway, name)
	}
	now := time.Now()
	r.gateways[name] = &entry{
		Gateway:   gw,
		Class:     class,
		CreatedAt: now,
		LastUsed:  now,
		HealthyAt: now,
	}
	r.order = append(r.order, name)
	return nil
}

// Get returns the gateway registered under name.
func (r *Registry) Get(name string) (exchange.Gateway, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.gateways[name]
	if !ok {
		return nil, false
	}
	return e.Gateway, true
}

// Names returns gateway names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) lookup(name string) (exchange.Gateway, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.gateways[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGatewayNotFound, name)
	}
	e.LastUsed = time.Now()
	return e.Gateway, nil
}

// Connect connects one gateway with its settings.
func (r *Registry) Connect(name string, settings map[string]string) error {
	gw, err := r.lookup(name)
	if err != nil {
		return err
	}
	if err := gw.Connect(settings); err != nil {
		r.RecordFailure(name)
		return fmt.Errorf("connect %s: %w", name, err)
	}
	r.RecordSuccess(name)
	return nil
}

// ConnectAll connects every gateway that has an entry in settings, in
// parallel. A failing gateway does not stop the others; all failures are
// returned joined.
func (r *Registry) ConnectAll(ctx context.Context, settings map[string]map[string]string) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	g := new(errgroup.Group)
	if r.config.ConnectConcurrency > 0 {
		g.SetLimit(r.config.ConnectConcurrency)
	}
	for _, name := range r.Names() {
		s, ok := settings[name]
		if !ok {
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if err := r.Connect(name, s); err != nil {
				r.log.Error().Err(err).Str("gateway", name).Msg("connect failed")
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			r.log.Info().Str("gateway", name).Msg("gateway connected")
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Subscribe forwards a market data subscription.
func (r *Registry) Subscribe(name string, req exchange.SubscribeRequest) error {
	gw, err := r.lookup(name)
	if err != nil {
		return err
	}
	return gw.Subscribe(req)
}

// SendOrder submits one order and returns the gateway-qualified order id.
// Gateway errors are returned unchanged.
func (r *Registry) SendOrder(name string, req exchange.OrderRequest) (string, error) {
	gw, err := r.lookup(name)
	if err != nil {
		return "", err
	}
	start := time.Now()
	id, err := gw.SendOrder(req)
	if r.recorder != nil {
		r.recorder.RecordSubmit(name, time.Since(start), err)
	}
	return id, err
}

// CancelOrder forwards a cancel request. Gateway errors are returned unchanged.
func (r *Registry) CancelOrder(name string, req exchange.CancelRequest) error {
	gw, err := r.lookup(name)
	if err != nil {
		return err
	}
	return gw.CancelOrder(req)
}

// Inited reports whether the gateway finished loading its contracts. Gateways
// that do not implement exchange.Initer count as inited once registered.
func (r *Registry) Inited(name string) bool {
	gw, ok := r.Get(name)
	if !ok {
		return false
	}
	if in, ok := gw.(exchange.Initer); ok {
		return in.ContractsInited()
	}
	return true
}

// Start begins the background health check loop.
func (r *Registry) Start(ctx context.Context) {
	if r.config.HealthInterval <= 0 {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.config.HealthInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.healthCheckAll(ctx)
			}
		}
	}()
}

// Close stops the health loop and closes every gateway. All close errors are
// returned joined.
func (r *Registry) Close() error {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()

	r.mu.RLock()
	gws := make([]exchange.Gateway, 0, len(r.order))
	for _, name := range r.order {
		gws = append(gws, r.gateways[name].Gateway)
	}
	r.mu.RUnlock()

	var errs []error
	for _, gw := range gws {
		if err := gw.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", gw.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// RecordFailure records a failure for a gateway.
func (r *Registry) RecordFailure(name string) {
	r.mu.Lock()
	e, ok := r.gateways[name]
	var unhealthy bool
	if ok {
		e.Failures++
		unhealthy = e.Failures == r.threshold()
	}
	r.mu.Unlock()

	if unhealthy {
		r.log.Warn().Str("gateway", name).Msg("gateway marked unhealthy")
		if r.recorder != nil {
			r.recorder.SetGatewayHealth(name, false)
		}
	}
}

// RecordSuccess resets the failure counter.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	e, ok := r.gateways[name]
	if ok {
		e.Failures = 0
		e.HealthyAt = time.Now()
	}
	r.mu.Unlock()

	if ok && r.recorder != nil {
		r.recorder.SetGatewayHealth(name, true)
	}
}

// Healthy reports whether the gateway is below the failure threshold.
func (r *Registry) Healthy(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.gateways[name]
	return ok && e.Failures < r.threshold()
}

func (r *Registry) threshold() int {
	if r.config.FailureThreshold <= 0 {
		return 1
	}
	return r.config.FailureThreshold
}

// PoolStats contains registry statistics.
type PoolStats struct {
	TotalGateways  int            `json:"total_gateways"`
	ByClass        map[string]int `json:"by_class"`
	UnhealthyCount int            `json:"unhealthy_count"`
}

// Stats returns current registry statistics.
func (r *Registry) Stats() PoolStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := PoolStats{
		TotalGateways: len(r.gateways),
		ByClass:       make(map[string]int),
	}
	for _, e := range r.gateways {
		stats.ByClass[e.Class]++
		if e.Failures >= r.threshold() {
			stats.UnhealthyCount++
		}
	}
	return stats
}

func (r *Registry) healthCheckAll(ctx context.Context) {
	for _, name := range r.Names() {
		r.healthCheck(ctx, name)
	}
}

func (r *Registry) healthCheck(ctx context.Context, name string) {
	gw, ok := r.Get(name)
	if !ok {
		return
	}
	pinger, ok := gw.(interface{ Ping(context.Context) error })
	if !ok {
		return
	}

	timeout := r.config.PingTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().PingTimeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	err := pinger.Ping(pctx)
	cancel()

	if err != nil {
		r.log.Debug().Err(err).Str("gateway", name).Msg("health check failed")
		r.RecordFailure(name)
	} else {
		r.RecordSuccess(name)
	}
}
