package database

import (
	"context"
	"fmt"
	"time"
)

// QueryLogEntry is a single row of the append-only query log (spec.md
// §4.8 step 10 / §5).
type QueryLogEntry struct {
	ID             int64
	Timestamp      time.Time
	ClientIP       string
	QName          string
	QType          uint16
	Blocked        bool
	BlockReason    string
	Cached         bool
	ResponseTimeMs int64
	RCode          int
}

// InsertQueryLog appends a single query log row. Callers on the hot path
// should not call this synchronously; see server.QueryLogWriter for the
// bounded, drop-oldest queue that keeps persistence off the query pipeline.
func (db *DB) InsertQueryLog(ctx context.Context, e QueryLogEntry) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO queries_log (ts, client_ip, qname, qtype, blocked, block_reason, cached, response_time_ms, rcode)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Timestamp.Unix(), e.ClientIP, e.QName, e.QType, boolToInt(e.Blocked), nullableString(e.BlockReason), boolToInt(e.Cached), e.ResponseTimeMs, e.RCode)
	if err != nil {
		return fmt.Errorf("failed to insert query log entry: %w", err)
	}
	return nil
}

// RecentQueryLog returns the most recent entries, newest first, bounded by
// limit.
func (db *DB) RecentQueryLog(ctx context.Context, limit int) ([]QueryLogEntry, error) {
	return db.queryLogQuery(ctx, `
		SELECT id, ts, client_ip, qname, qtype, blocked, block_reason, cached, response_time_ms, rcode
		FROM queries_log
		ORDER BY id DESC
		LIMIT ?
	`, limit)
}

// FilteredQueryLog returns the most recent entries matching the given
// filters. An empty clientIP or qname skips that filter; blockedOnly
// restricts to entries where blocked = 1.
func (db *DB) FilteredQueryLog(ctx context.Context, clientIP, qname string, blockedOnly bool, limit int) ([]QueryLogEntry, error) {
	query := `
		SELECT id, ts, client_ip, qname, qtype, blocked, block_reason, cached, response_time_ms, rcode
		FROM queries_log
		WHERE (? = '' OR client_ip = ?)
		  AND (? = '' OR qname = ?)
		  AND (? = 0 OR blocked = 1)
		ORDER BY id DESC
		LIMIT ?
	`
	db.mu.RLock()
	defer db.mu.RUnlock()

	blockedFlag := 0
	if blockedOnly {
		blockedFlag = 1
	}
	rows, err := db.conn.QueryContext(ctx, query, clientIP, clientIP, qname, qname, blockedFlag, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query filtered query log: %w", err)
	}
	defer rows.Close()
	return scanQueryLogRows(rows)
}

// PopularQuery summarizes how often a (qname, qtype) pair was queried since
// a given time, for the admin API's "top queried domains" view.
type PopularQuery struct {
	QName string
	QType uint16
	Count int64
}

// PopularQueries returns (qname, qtype) pairs queried at least minCount
// times since since, ordered by descending count.
func (db *DB) PopularQueries(ctx context.Context, since time.Time, minCount int64) ([]PopularQuery, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT qname, qtype, COUNT(*) AS cnt
		FROM queries_log
		WHERE ts >= ?
		GROUP BY qname, qtype
		HAVING cnt >= ?
		ORDER BY cnt DESC
	`, since.Unix(), minCount)
	if err != nil {
		return nil, fmt.Errorf("failed to query popular queries: %w", err)
	}
	defer rows.Close()

	var out []PopularQuery
	for rows.Next() {
		var p PopularQuery
		if err := rows.Scan(&p.QName, &p.QType, &p.Count); err != nil {
			return nil, fmt.Errorf("failed to scan popular query row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// QueryLogStats summarizes the log for the admin API's dashboard.
type QueryLogStats struct {
	Total        int64
	Blocked      int64
	Cached       int64
	AvgLatencyMs float64
}

// QueryLogStatsSummary computes aggregate counters over the full query log.
func (db *DB) QueryLogStatsSummary(ctx context.Context) (QueryLogStats, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(blocked), 0),
			COALESCE(SUM(cached), 0),
			COALESCE(AVG(response_time_ms), 0)
		FROM queries_log
	`)
	var s QueryLogStats
	if err := row.Scan(&s.Total, &s.Blocked, &s.Cached, &s.AvgLatencyMs); err != nil {
		return QueryLogStats{}, fmt.Errorf("failed to compute query log stats: %w", err)
	}
	return s, nil
}

// PruneQueryLogOlderThan deletes log rows older than the cutoff and returns
// how many rows were removed.
func (db *DB) PruneQueryLogOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.conn.ExecContext(ctx, `DELETE FROM queries_log WHERE ts < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune query log: %w", err)
	}
	return res.RowsAffected()
}

func (db *DB) queryLogQuery(ctx context.Context, query string, limit int) ([]QueryLogEntry, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query query log: %w", err)
	}
	defer rows.Close()
	return scanQueryLogRows(rows)
}

func scanQueryLogRows(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]QueryLogEntry, error) {
	var out []QueryLogEntry
	for rows.Next() {
		var e QueryLogEntry
		var tsUnix int64
		var blocked, cached int
		var blockReason *string
		if err := rows.Scan(&e.ID, &tsUnix, &e.ClientIP, &e.QName, &e.QType, &blocked, &blockReason, &cached, &e.ResponseTimeMs, &e.RCode); err != nil {
			return nil, fmt.Errorf("failed to scan query log row: %w", err)
		}
		e.Timestamp = time.Unix(tsUnix, 0)
		e.Blocked = blocked != 0
		e.Cached = cached != 0
		if blockReason != nil {
			e.BlockReason = *blockReason
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
