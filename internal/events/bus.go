package events

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	exchange "multiaccount-trade/pkg/exchanges/common"
)

// Handler processes one event. A returned error is logged by the dispatcher and
// does not stop delivery to the remaining handlers.
type Handler func(Event) error

// Observer receives dispatch statistics. Implemented by monitor.SystemMetrics.
type Observer interface {
	EventDispatched(kind string)
	HandlerFailed(kind string)
}

// Bus queues events from any goroutine and delivers them from a single
// dispatch goroutine, so handlers never run concurrently with each other.
// The queue is unbounded; Publish never blocks on slow handlers.
type Bus struct {
	qmu    sync.Mutex
	queue  []Event
	signal chan struct{}

	hmu      sync.RWMutex
	handlers map[Kind][]Handler
	taps     map[Kind][]chan Event

	log      zerolog.Logger
	observer Observer

	started atomic.Bool
	stopped atomic.Bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewBus creates an event bus. Call Start to begin dispatching.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		signal:   make(chan struct{}, 1),
		handlers: make(map[Kind][]Handler),
		taps:     make(map[Kind][]chan Event),
		log:      logger.With().Str("component", "bus").Logger(),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// SetObserver attaches dispatch statistics. Must be called before Start.
func (b *Bus) SetObserver(o Observer) {
	b.observer = o
}

// Register appends a handler for kind. Handlers of the same kind run in
// registration order.
func (b *Bus) Register(kind Kind, h Handler) {
	b.hmu.Lock()
	defer b.hmu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// Subscribe returns a channel receiving a copy of every dispatched event of
// kind, plus an unsubscribe function. Delivery is lossy: when the channel
// buffer is full the event is dropped for this subscriber only.
func (b *Bus) Subscribe(kind Kind, buffer int) (<-chan Event, func()) {
	b.hmu.Lock()
	defer b.hmu.Unlock()

	ch := make(chan Event, buffer)
	b.taps[kind] = append(b.taps[kind], ch)

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.hmu.Lock()
			defer b.hmu.Unlock()
			taps := b.taps[kind]
			for i, c := range taps {
				if c == ch {
					b.taps[kind] = append(taps[:i:i], taps[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}
	return ch, unsub
}

// Publish enqueues an event. Safe for concurrent use. Events published after
// Stop are discarded.
func (b *Bus) Publish(e Event) {
	if b.stopped.Load() {
		b.log.Debug().Stringer("kind", e.Kind).Msg("publish after stop ignored")
		return
	}
	b.qmu.Lock()
	b.queue = append(b.queue, e)
	b.qmu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// Log publishes a KindLog event.
func (b *Bus) Log(gatewayName, msg string, level exchange.Severity) {
	b.Publish(NewLog(gatewayName, msg, level))
}

// Start launches the dispatch goroutine. Subsequent calls are no-ops.
func (b *Bus) Start() {
	if b.started.Swap(true) {
		return
	}
	go b.run()
}

// Stop refuses new events, dispatches everything already queued and waits for
// the dispatcher to exit.
func (b *Bus) Stop() {
	if b.stopped.Swap(true) {
		if b.started.Load() {
			<-b.done
		}
		return
	}
	close(b.stopCh)
	if b.started.Load() {
		<-b.done
	}
}

// Sync blocks until every event published before the call has been dispatched.
// It returns immediately when the bus is not running.
func (b *Bus) Sync() {
	if !b.started.Load() || b.stopped.Load() {
		return
	}
	barrier := make(chan struct{})
	b.Publish(Event{Kind: kindBarrier, Payload: barrier})
	select {
	case <-barrier:
	case <-b.done:
	}
}

// Pending returns the number of queued, not yet dispatched events.
func (b *Bus) Pending() int {
	b.qmu.Lock()
	defer b.qmu.Unlock()
	return len(b.queue)
}

func (b *Bus) run() {
	defer close(b.done)
	for {
		batch := b.take()
		if len(batch) > 0 {
			for _, e := range batch {
				b.dispatch(e)
			}
			continue
		}

		select {
		case <-b.signal:
		case <-b.stopCh:
			for _, e := range b.take() {
				b.dispatch(e)
			}
			return
		}
	}
}

func (b *Bus) take() []Event {
	b.qmu.Lock()
	defer b.qmu.Unlock()
	batch := b.queue
	b.queue = nil
	return batch
}

func (b *Bus) dispatch(e Event) {
	if e.Kind == kindBarrier {
		if ch, ok := e.Payload.(chan struct{}); ok {
			close(ch)
		}
		return
	}

	b.hmu.RLock()
	handlers := b.handlers[e.Kind]
	b.hmu.RUnlock()

	for _, h := range handlers {
		b.invoke(h, e)
	}
	if b.observer != nil {
		b.observer.EventDispatched(e.Kind.String())
	}

	b.hmu.RLock()
	for _, ch := range b.taps[e.Kind] {
		select {
		case ch <- e:
		default:
		}
	}
	b.hmu.RUnlock()
}

func (b *Bus) invoke(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.failed(e, fmt.Errorf("handler panic: %v", r))
		}
	}()
	if err := h(e); err != nil {
		b.failed(e, err)
	}
}

func (b *Bus) failed(e Event, err error) {
	b.log.Error().Err(err).Stringer("kind", e.Kind).Msg("event handler failed")
	if b.observer != nil {
		b.observer.HandlerFailed(e.Kind.String())
	}
}
