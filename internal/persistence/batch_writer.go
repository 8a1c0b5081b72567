package persistence

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"multiaccount-trade/pkg/db"
)

// BatchWriter buffers journal statements and commits them in one transaction
// per flush.
type BatchWriter struct {
	db          *sql.DB
	log         zerolog.Logger
	buffer      []db.Statement
	mu          sync.Mutex
	flushMu     sync.Mutex
	maxSize     int
	flushIntval time.Duration
	done        chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup

	totalWrites  atomic.Uint64
	totalBatches atomic.Uint64
	totalErrors  atomic.Uint64
	lastSize     atomic.Int64
	lastFlush    atomic.Int64
}

// BatchWriterMetrics provides statistics about batch operations.
type BatchWriterMetrics struct {
	TotalWrites   uint64    `json:"total_writes"`
	TotalBatches  uint64    `json:"total_batches"`
	TotalErrors   uint64    `json:"total_errors"`
	LastBatchSize int       `json:"last_batch_size"`
	LastFlushTime time.Time `json:"last_flush_time"`
}

// NewBatchWriter creates a batch writer. maxSize triggers an immediate flush;
// interval drives the background flush.
func NewBatchWriter(conn *sql.DB, maxSize int, interval time.Duration, logger zerolog.Logger) *BatchWriter {
	if maxSize <= 0 {
		maxSize = 50
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	bw := &BatchWriter{
		db:          conn,
		log:         logger.With().Str("component", "batch_writer").Logger(),
		buffer:      make([]db.Statement, 0, maxSize),
		maxSize:     maxSize,
		flushIntval: interval,
		done:        make(chan struct{}),
	}

	bw.wg.Add(1)
	go bw.backgroundFlush()

	return bw
}

// Write queues one statement.
func (bw *BatchWriter) Write(s db.Statement) {
	bw.mu.Lock()
	bw.buffer = append(bw.buffer, s)
	shouldFlush := len(bw.buffer) >= bw.maxSize
	bw.mu.Unlock()

	if shouldFlush {
		if err := bw.Flush(); err != nil {
			bw.log.Warn().Err(err).Msg("size triggered flush failed")
		}
	}
}

// Flush immediately writes all buffered statements.
func (bw *BatchWriter) Flush() error {
	bw.flushMu.Lock()
	defer bw.flushMu.Unlock()

	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return nil
	}
	ops := bw.buffer
	bw.buffer = make([]db.Statement, 0, bw.maxSize)
	bw.mu.Unlock()

	return bw.executeBatch(ops)
}

func (bw *BatchWriter) executeBatch(ops []db.Statement) error {
	bw.totalWrites.Add(uint64(len(ops)))
	bw.totalBatches.Add(1)
	bw.lastSize.Store(int64(len(ops)))
	bw.lastFlush.Store(time.Now().UnixNano())

	ctx := context.Background()
	tx, err := bw.db.BeginTx(ctx, nil)
	if err != nil {
		bw.totalErrors.Add(1)
		bw.log.Error().Err(err).Msg("begin transaction failed")
		return err
	}

	for _, op := range ops {
		if _, err := tx.ExecContext(ctx, op.Query, op.Args...); err != nil {
			_ = tx.Rollback()
			bw.totalErrors.Add(1)
			bw.log.Error().Err(err).Int("batch", len(ops)).Msg("statement failed, batch rolled back")
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		bw.totalErrors.Add(1)
		bw.log.Error().Err(err).Msg("commit failed")
		return err
	}

	bw.log.Debug().Int("ops", len(ops)).Msg("batch flushed")
	return nil
}

func (bw *BatchWriter) backgroundFlush() {
	defer bw.wg.Done()
	ticker := time.NewTicker(bw.flushIntval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := bw.Flush(); err != nil {
				bw.log.Warn().Err(err).Msg("background flush failed")
			}
		case <-bw.done:
			if err := bw.Flush(); err != nil {
				bw.log.Warn().Err(err).Msg("final flush failed")
			}
			return
		}
	}
}

// Pending returns the number of buffered statements.
func (bw *BatchWriter) Pending() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Metrics returns the current batch statistics.
func (bw *BatchWriter) Metrics() BatchWriterMetrics {
	m := BatchWriterMetrics{
		TotalWrites:   bw.totalWrites.Load(),
		TotalBatches:  bw.totalBatches.Load(),
		TotalErrors:   bw.totalErrors.Load(),
		LastBatchSize: int(bw.lastSize.Load()),
	}
	if ns := bw.lastFlush.Load(); ns > 0 {
		m.LastFlushTime = time.Unix(0, ns)
	}
	return m
}

// Close stops the background flush after writing what is still buffered.
func (bw *BatchWriter) Close() error {
	bw.closeOnce.Do(func() { close(bw.done) })
	bw.wg.Wait()
	return nil
}
