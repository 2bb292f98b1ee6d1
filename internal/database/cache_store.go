package database

import (
	"context"
	"fmt"
	"time"
)

// CacheRecord is a single durable cache mirror entry, keyed by the same
// (qname, qtype, qclass) tuple the in-memory resolver cache uses.
type CacheRecord struct {
	QName     string
	QType     uint16
	QClass    uint16
	Response  []byte
	ExpiresAt time.Time
	EntryType int
}

// CacheGet returns the stored entry for (qname, qtype, qclass), if present
// and not yet expired. A caller that finds no row (or an expired one) gets
// ok=false and should fall through to a live resolution.
func (db *DB) CacheGet(ctx context.Context, qname string, qtype, qclass uint16) (CacheRecord, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRowContext(ctx, `
		SELECT response, expires_at, entry_type
		FROM cache_entries
		WHERE qname = ? AND qtype = ? AND qclass = ?
	`, qname, qtype, qclass)

	var rec CacheRecord
	var expiresUnix int64
	if err := row.Scan(&rec.Response, &expiresUnix, &rec.EntryType); err != nil {
		return CacheRecord{}, false, nil
	}
	rec.QName, rec.QType, rec.QClass = qname, qtype, qclass
	rec.ExpiresAt = time.Unix(expiresUnix, 0)
	if time.Now().After(rec.ExpiresAt) {
		return CacheRecord{}, false, nil
	}
	return rec, true, nil
}

// CacheGetAll loads every unexpired entry, used to warm the in-memory cache
// at startup so a restart doesn't cause a thundering herd against upstreams.
func (db *DB) CacheGetAll(ctx context.Context) ([]CacheRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT qname, qtype, qclass, response, expires_at, entry_type
		FROM cache_entries
		WHERE expires_at > ?
	`, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query cache entries: %w", err)
	}
	defer rows.Close()

	var out []CacheRecord
	for rows.Next() {
		var rec CacheRecord
		var expiresUnix int64
		if err := rows.Scan(&rec.QName, &rec.QType, &rec.QClass, &rec.Response, &expiresUnix, &rec.EntryType); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		rec.ExpiresAt = time.Unix(expiresUnix, 0)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CacheSet writes through a single cache entry, replacing any prior entry
// for the same key.
func (db *DB) CacheSet(ctx context.Context, rec CacheRecord) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO cache_entries (qname, qtype, qclass, response, expires_at, entry_type)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(qname, qtype, qclass) DO UPDATE SET
			response = excluded.response,
			expires_at = excluded.expires_at,
			entry_type = excluded.entry_type
	`, rec.QName, rec.QType, rec.QClass, rec.Response, rec.ExpiresAt.Unix(), rec.EntryType)
	if err != nil {
		return fmt.Errorf("failed to write cache entry for %s: %w", rec.QName, err)
	}
	return nil
}

// CacheDelete removes a single cache entry, used on explicit invalidation
// (e.g. admin API cache-flush for one name).
func (db *DB) CacheDelete(ctx context.Context, qname string, qtype, qclass uint16) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.ExecContext(ctx, `
		DELETE FROM cache_entries WHERE qname = ? AND qtype = ? AND qclass = ?
	`, qname, qtype, qclass)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry for %s: %w", qname, err)
	}
	return nil
}

// CacheCleanupExpired removes every entry whose TTL has lapsed. Intended to
// run on a periodic ticker alongside the in-memory cache's own eviction.
func (db *DB) CacheCleanupExpired(ctx context.Context) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.conn.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at <= ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired cache entries: %w", err)
	}
	return res.RowsAffected()
}

// CacheClear removes every mirrored entry (admin API full cache flush).
func (db *DB) CacheClear(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.conn.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("failed to clear cache entries: %w", err)
	}
	return nil
}
