package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/jroosing/hydradns/internal/database"
)

// queryLogQueueSize bounds the in-flight entry queue. A logger that falls
// behind (slow disk, database contention) drops the oldest entries rather
// than blocking the query pipeline, per the append-only/no-back-pressure
// requirement on query logging.
const queryLogQueueSize = 4096

// QueryLogWriter persists query log entries asynchronously so the hot
// query path never waits on a database write.
type QueryLogWriter struct {
	db     *database.DB
	logger *slog.Logger

	entries chan database.QueryLogEntry
	done    chan struct{}
}

// NewQueryLogWriter starts a background goroutine draining entries into db.
// Call Stop to drain remaining entries and exit the goroutine.
func NewQueryLogWriter(db *database.DB, logger *slog.Logger) *QueryLogWriter {
	w := &QueryLogWriter{
		db:      db,
		logger:  logger,
		entries: make(chan database.QueryLogEntry, queryLogQueueSize),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// Enqueue submits an entry for asynchronous persistence. If the queue is
// full, the oldest queued entry is dropped to make room; Enqueue itself
// never blocks.
func (w *QueryLogWriter) Enqueue(e database.QueryLogEntry) {
	if w == nil {
		return
	}
	select {
	case w.entries <- e:
	default:
		select {
		case <-w.entries:
		default:
		}
		select {
		case w.entries <- e:
		default:
		}
	}
}

// Stop closes the queue and waits for the drain goroutine to exit.
func (w *QueryLogWriter) Stop() {
	if w == nil {
		return
	}
	close(w.entries)
	<-w.done
}

func (w *QueryLogWriter) run() {
	defer close(w.done)
	ctx := context.Background()
	for e := range w.entries {
		writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := w.db.InsertQueryLog(writeCtx, e); err != nil && w.logger != nil {
			w.logger.Warn("query log insert failed", "error", err)
		}
		cancel()
	}
}
