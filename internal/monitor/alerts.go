package monitor

import "github.com/rs/zerolog"

// AlertSink interface for pluggable alert delivery.
type AlertSink interface {
	Send(message string) error
}

// LogAlertSink writes alerts to a zerolog logger.
type LogAlertSink struct {
	Logger zerolog.Logger
}

func (s LogAlertSink) Send(message string) error {
	s.Logger.Warn().Str("component", "alert").Msg(message)
	return nil
}
