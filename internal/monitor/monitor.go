package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"multiaccount-trade/internal/events"
	exchange "multiaccount-trade/pkg/exchanges/common"
)

// Subscriber is the part of the event bus the monitor taps.
type Subscriber interface {
	Subscribe(kind events.Kind, buffer int) (<-chan events.Event, func())
}

// Monitor watches log events and forwards the ones matching Rule to Sink.
type Monitor struct {
	Bus  Subscriber
	Sink AlertSink
	// Rule defaults to MinSeverity(SeverityError).
	Rule Rule
	Log  zerolog.Logger
}

// Start taps the bus and returns immediately. The tap is released when ctx ends.
func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil || m.Sink == nil {
		m.Log.Warn().Msg("monitor not fully configured; skipping")
		return
	}
	rule := m.Rule
	if rule == nil {
		rule = MinSeverity(exchange.SeverityError)
	}

	stream, unsub := m.Bus.Subscribe(events.KindLog, 256)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-stream:
				if !ok {
					return
				}
				rec, err := events.Payload[events.Log](e)
				if err != nil || !rule(rec) {
					continue
				}
				if err := m.Sink.Send(formatAlert(rec)); err != nil {
					m.Log.Error().Err(err).Msg("alert delivery failed")
				}
			}
		}
	}()
}

func formatAlert(l events.Log) string {
	ts := l.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return fmt.Sprintf("[%s] %s %s: %s", ts.Format(time.RFC3339), l.Level, l.GatewayName, l.Msg)
}
