package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"multiaccount-trade/internal/events"
	exchange "multiaccount-trade/pkg/exchanges/common"
)

const fileDateLayout = "20060102"

// Registrar is the part of the event bus the sink subscribes through.
type Registrar interface {
	Register(kind events.Kind, h events.Handler)
}

// Sink writes every KindLog event to the console and to LOG_DIR/YYYYMMDD.log.
// The file is opened in append mode and switched when the local date changes.
type Sink struct {
	dir     string
	console io.Writer
	now     func() time.Time

	mu   sync.Mutex
	day  string
	file *os.File
	log  zerolog.Logger
}

// NewSink creates dir if needed. console may be nil to write the file only.
func NewSink(dir string, console io.Writer) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &Sink{dir: dir, console: console, now: time.Now}, nil
}

// Register installs the log handler.
func (s *Sink) Register(bus Registrar) {
	bus.Register(events.KindLog, func(e events.Event) error {
		rec, err := events.Payload[events.Log](e)
		if err != nil {
			return err
		}
		return s.Write(rec)
	})
}

// Write emits one record.
func (s *Sink) Write(rec events.Log) error {
	ts := rec.Time
	if ts.IsZero() {
		ts = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.rotate(ts.Format(fileDateLayout)); err != nil {
		return err
	}

	ev := s.log.WithLevel(Level(rec.Level)).Time(zerolog.TimestampFieldName, ts)
	if rec.GatewayName != "" {
		ev = ev.Str("gateway", rec.GatewayName)
	}
	if rec.Level == exchange.SeverityCritical {
		ev = ev.Bool("critical", true)
	}
	ev.Msg(rec.Msg)
	return nil
}

// Path returns the file written for the given day.
func (s *Sink) Path(day time.Time) string {
	return filepath.Join(s.dir, day.Format(fileDateLayout)+".log")
}

// Close closes the current file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.day = ""
	return err
}

func (s *Sink) rotate(day string) error {
	if s.file != nil && day == s.day {
		return nil
	}
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	f, err := os.OpenFile(filepath.Join(s.dir, day+".log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	var out io.Writer = f
	if s.console != nil {
		out = zerolog.MultiLevelWriter(zerolog.ConsoleWriter{Out: s.console, TimeFormat: time.RFC3339, NoColor: true}, f)
	}
	s.file = f
	s.day = day
	s.log = zerolog.New(out)
	return nil
}

// Level maps a core severity to a zerolog level.
func Level(s exchange.Severity) zerolog.Level {
	switch s {
	case exchange.SeverityDebug:
		return zerolog.DebugLevel
	case exchange.SeverityInfo:
		return zerolog.InfoLevel
	case exchange.SeverityWarning:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
