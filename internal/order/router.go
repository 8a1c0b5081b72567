package order

import (
	"errors"
	"fmt"
	"strconv"

	exchange "multiaccount-trade/pkg/exchanges/common"
)

// Cache is the state the router reads. Implemented by state.Cache.
type Cache interface {
	MarketData
	ActiveOrder(vtOrderID string) (exchange.Order, bool)
}

// Submitter sends requests to a named gateway. Implemented by gateway.Registry.
type Submitter interface {
	SendOrder(gatewayName string, req exchange.OrderRequest) (string, error)
	CancelOrder(gatewayName string, req exchange.CancelRequest) error
}

// Logger receives the router's log messages. Implemented by events.Bus.
type Logger interface {
	Log(gatewayName, msg string, level exchange.Severity)
}

// Recorder counts submitted and failed legs. Implemented by monitor.SystemMetrics.
type Recorder interface {
	LegSubmitted()
	LegFailed()
}

// Router executes trading intents against the current cached state. It runs
// on the caller's goroutine and holds no locks of its own.
type Router struct {
	cache    Cache
	sub      Submitter
	log      Logger
	planner  *Planner
	recorder Recorder
}

// NewRouter creates a router. Closes on the aging exchanges are split into
// close-yesterday and close-today legs.
func NewRouter(cache Cache, sub Submitter, logger Logger, aging []exchange.Exchange) *Router {
	return &Router{
		cache:   cache,
		sub:     sub,
		log:     logger,
		planner: NewPlanner(aging),
	}
}

// SetRecorder attaches leg counters.
func (r *Router) SetRecorder(rec Recorder) {
	r.recorder = rec
}

func (r *Router) OpenLong(vtSymbol string, volume float64, gatewayName string) []string {
	return r.Execute(OpenLong, vtSymbol, volume, gatewayName)
}

func (r *Router) OpenShort(vtSymbol string, volume float64, gatewayName string) []string {
	return r.Execute(OpenShort, vtSymbol, volume, gatewayName)
}

// CloseLong buys back a short position.
func (r *Router) CloseLong(vtSymbol string, volume float64, gatewayName string) []string {
	return r.Execute(CloseLong, vtSymbol, volume, gatewayName)
}

// CloseShort sells out a long position.
func (r *Router) CloseShort(vtSymbol string, volume float64, gatewayName string) []string {
	return r.Execute(CloseShort, vtSymbol, volume, gatewayName)
}

// Execute plans and submits an intent. It returns one id per submitted leg in
// submission order; a failed leg yields "". When no leg can be planned the
// result is [""].
func (r *Router) Execute(intent Intent, vtSymbol string, volume float64, gatewayName string) []string {
	reqs, err := r.planner.Plan(r.cache, intent, vtSymbol, volume, gatewayName)
	if err != nil {
		r.log.Log(gatewayName, fmt.Sprintf("%s %s rejected: %v", intent, vtSymbol, err), exchange.SeverityWarning)
		if r.recorder != nil {
			r.recorder.LegFailed()
		}
		return []string{""}
	}

	ids := make([]string, 0, len(reqs))
	for _, req := range reqs {
		ids = append(ids, r.submit(gatewayName, req))
	}
	return ids
}

func (r *Router) submit(gatewayName string, req exchange.OrderRequest) string {
	id, err := r.sub.SendOrder(gatewayName, req)
	if err == nil && id == "" {
		err = errors.New("gateway returned no order id")
	}
	if err != nil {
		if !errors.Is(err, ErrGatewayNotFound) {
			err = fmt.Errorf("%w: %w", ErrSubmissionFailure, err)
		}
		r.log.Log(gatewayName, fmt.Sprintf("Send order %s %s %s %s failed: %v",
			req.VTSymbol(), formatVolume(req.Volume), req.Direction, req.Offset, err), exchange.SeverityWarning)
		if r.recorder != nil {
			r.recorder.LegFailed()
		}
		return ""
	}

	r.log.Log(gatewayName, fmt.Sprintf("Send order %s %s %s %s %s",
		id, req.VTSymbol(), formatVolume(req.Volume), req.Direction, req.Offset), exchange.SeverityInfo)
	if r.recorder != nil {
		r.recorder.LegSubmitted()
	}
	return id
}

// CancelActiveOrder cancels the order if it is still active. Unknown and
// terminal orders are ignored. Gateway errors are returned unchanged.
func (r *Router) CancelActiveOrder(vtOrderID string) error {
	o, ok := r.cache.ActiveOrder(vtOrderID)
	if !ok {
		return nil
	}
	if err := r.sub.CancelOrder(o.GatewayName, o.CancelRequest()); err != nil {
		r.log.Log(o.GatewayName, fmt.Sprintf("Cancel active order %s failed: %v", vtOrderID, err), exchange.SeverityWarning)
		return err
	}
	r.log.Log(o.GatewayName, fmt.Sprintf("Cancel active order %s %s %s %s %s",
		vtOrderID, o.VTSymbol(), formatVolume(o.Remaining()), o.Direction, o.Offset), exchange.SeverityInfo)
	return nil
}

func formatVolume(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
