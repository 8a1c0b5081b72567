package persistence

import (
	"time"

	"github.com/rs/zerolog"

	"multiaccount-trade/internal/events"
	"multiaccount-trade/pkg/db"
	exchange "multiaccount-trade/pkg/exchanges/common"
)

// Registrar is the part of the event bus the journal subscribes through.
type Registrar interface {
	Register(kind events.Kind, h events.Handler)
}

// Journal records every order update and trade into sqlite. Writes are
// batched, so the dispatcher never waits on disk.
type Journal struct {
	database *db.Database
	writer   *BatchWriter
}

// OpenJournal opens the database at path, applies the schema and starts the
// batch writer.
func OpenJournal(path string, flushEvery time.Duration, logger zerolog.Logger) (*Journal, error) {
	database, err := db.New(path)
	if err != nil {
		return nil, err
	}
	if err := db.ApplyMigrations(database); err != nil {
		_ = database.Close()
		return nil, err
	}
	return &Journal{
		database: database,
		writer:   NewBatchWriter(database.DB, 50, flushEvery, logger),
	}, nil
}

// Register installs the order and trade handlers.
func (j *Journal) Register(bus Registrar) {
	bus.Register(events.KindOrder, func(e events.Event) error {
		o, err := events.Payload[exchange.Order](e)
		if err != nil {
			return err
		}
		j.writer.Write(db.UpsertOrder(o))
		return nil
	})
	bus.Register(events.KindTrade, func(e events.Event) error {
		t, err := events.Payload[exchange.Trade](e)
		if err != nil {
			return err
		}
		j.writer.Write(db.InsertTrade(t))
		return nil
	})
}

// Queries returns the read side. Call Flush first to include buffered writes.
func (j *Journal) Queries() *db.Queries {
	return j.database.Queries()
}

// Flush writes every buffered statement.
func (j *Journal) Flush() error {
	return j.writer.Flush()
}

// Metrics returns the batch writer statistics.
func (j *Journal) Metrics() BatchWriterMetrics {
	return j.writer.Metrics()
}

// Close flushes pending writes and closes the database.
func (j *Journal) Close() error {
	_ = j.writer.Close()
	return j.database.Close()
}
