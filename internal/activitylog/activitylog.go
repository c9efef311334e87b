// Package activitylog asynchronously records environment lifecycle events
// (create, provision, start, stop, destroy, error) for operator visibility.
// It buffers entries on a channel and flushes them in batches so that
// request handlers never block on the write (adapted from the teacher's
// audit.Writer, with the per-tenant schema grouping removed since
// MockFactory is single-schema).
package activitylog

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry represents a single lifecycle event to be written.
type Entry struct {
	EnvironmentID uuid.UUID
	Action        string
	Detail        json.RawMessage
	OccurredAt    time.Time
}

// Writer is an async, buffered activity log writer.
type Writer struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// NewWriter creates an activity log Writer. Call Start to begin processing.
func NewWriter(pool *pgxpool.Pool, logger *slog.Logger) *Writer {
	return &Writer{
		pool:    pool,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
	}
}

// Start launches the background goroutine that flushes entries to the
// database and returns immediately; the goroutine runs until ctx is
// cancelled or Close is called.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for all pending entries to be flushed.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an entry for async writing. It never blocks the caller; if
// the buffer is full the entry is dropped and a warning is logged.
func (w *Writer) Log(environmentID uuid.UUID, action string, detail json.RawMessage) {
	entry := Entry{
		EnvironmentID: environmentID,
		Action:        action,
		Detail:        detail,
		OccurredAt:    time.Now().UTC(),
	}

	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("activity log buffer full, dropping entry",
			"environment_id", environmentID, "action", action)
	}
}

func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (w *Writer) flush(entries []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	const insert = `INSERT INTO environment_activity_log (environment_id, action, detail, occurred_at)
		VALUES ($1, $2, $3, $4)`

	for _, e := range entries {
		if _, err := w.pool.Exec(ctx, insert, e.EnvironmentID, e.Action, e.Detail, e.OccurredAt); err != nil {
			w.logger.Error("writing activity log entry", "error", err,
				"environment_id", e.EnvironmentID, "action", e.Action)
		}
	}
}
