package database

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jroosing/hydradns/internal/config"
)

// ConfigKey represents configuration key names in the database.
const (
	ConfigKeyServerHost               = "server.host"
	ConfigKeyServerPort               = "server.port"
	ConfigKeyServerWorkers            = "server.workers"
	ConfigKeyServerMaxConcurrency     = "server.max_concurrency"
	ConfigKeyServerUpstreamSocketPool = "server.upstream_socket_pool_size"
	ConfigKeyServerEnableTCP          = "server.enable_tcp"
	ConfigKeyServerTCPFallback        = "server.tcp_fallback"

	ConfigKeyUpstreamUDPTimeout = "upstream.udp_timeout"
	ConfigKeyUpstreamTCPTimeout = "upstream.tcp_timeout"
	ConfigKeyUpstreamMaxRetries = "upstream.max_retries"

	ConfigKeyLoggingLevel            = "logging.level"
	ConfigKeyLoggingStructured       = "logging.structured"
	ConfigKeyLoggingStructuredFormat = "logging.structured_format"
	ConfigKeyLoggingIncludePID       = "logging.include_pid"

	ConfigKeyFilteringEnabled         = "filtering.enabled"
	ConfigKeyFilteringLogBlocked      = "filtering.log_blocked"
	ConfigKeyFilteringLogAllowed      = "filtering.log_allowed"
	ConfigKeyFilteringRefreshInterval = "filtering.refresh_interval"

	ConfigKeyRateLimitCleanupSeconds   = "rate_limit.cleanup_seconds"
	ConfigKeyRateLimitMaxIPEntries     = "rate_limit.max_ip_entries"
	ConfigKeyRateLimitMaxPrefixEntries = "rate_limit.max_prefix_entries"
	ConfigKeyRateLimitGlobalQPS        = "rate_limit.global_qps"
	ConfigKeyRateLimitGlobalBurst      = "rate_limit.global_burst"
	ConfigKeyRateLimitPrefixQPS        = "rate_limit.prefix_qps"
	ConfigKeyRateLimitPrefixBurst      = "rate_limit.prefix_burst"
	ConfigKeyRateLimitIPQPS            = "rate_limit.ip_qps"
	ConfigKeyRateLimitIPBurst          = "rate_limit.ip_burst"

	ConfigKeyAPIEnabled = "api.enabled"
	ConfigKeyAPIHost    = "api.host"
	ConfigKeyAPIPort    = "api.port"
	ConfigKeyAPIKey     = "api.api_key"

	ConfigKeyZonesDirectory = "zones.directory"

	ConfigKeyDNSSECEnabled      = "dnssec.enabled"
	ConfigKeyDNSSECValidate     = "dnssec.validate_responses"
	ConfigKeyDNSSECKeyDirectory = "dnssec.key_directory"

	ConfigKeyTSIGKeysJSON = "tsig.keys_json"

	ConfigKeyDoTEnabled  = "transport.dot.enabled"
	ConfigKeyDoTHost     = "transport.dot.host"
	ConfigKeyDoTPort     = "transport.dot.port"
	ConfigKeyDoTCertFile = "transport.dot.cert_file"
	ConfigKeyDoTKeyFile  = "transport.dot.key_file"

	ConfigKeyDoQEnabled  = "transport.doq.enabled"
	ConfigKeyDoQHost     = "transport.doq.host"
	ConfigKeyDoQPort     = "transport.doq.port"
	ConfigKeyDoQCertFile = "transport.doq.cert_file"
	ConfigKeyDoQKeyFile  = "transport.doq.key_file"

	ConfigKeyDoHEnabled  = "transport.doh.enabled"
	ConfigKeyDoHHost     = "transport.doh.host"
	ConfigKeyDoHPort     = "transport.doh.port"
	ConfigKeyDoHCertFile = "transport.doh.cert_file"
	ConfigKeyDoHKeyFile  = "transport.doh.key_file"

	ConfigKeyBlockPageEnabled = "block_page.enabled"
	ConfigKeyBlockPageIPv4    = "block_page.ipv4"
	ConfigKeyBlockPageIPv6    = "block_page.ipv6"

	ConfigKeyCacheEnabled            = "cache.enabled"
	ConfigKeyCacheServeStale         = "cache.serve_stale"
	ConfigKeyCacheStaleMaxAge        = "cache.stale_max_age_seconds"
	ConfigKeyCachePrefetchEnabled    = "cache.prefetch_enabled"
	ConfigKeyCachePrefetchThreshold  = "cache.prefetch_threshold"
	ConfigKeyCachePrefetchMinQueries = "cache.prefetch_min_queries"
)

// SetConfig sets a configuration value.
func (db *DB) SetConfig(key, value string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	query := `
		INSERT INTO config (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := db.conn.Exec(query, key, value)
	if err != nil {
		return fmt.Errorf("failed to set config %s: %w", key, err)
	}

	return nil
}

// GetConfig retrieves a configuration value.
func (db *DB) GetConfig(key string) (string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var value string
	err := db.conn.QueryRow("SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("config key not found: %s", key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get config %s: %w", key, err)
	}

	return value, nil
}

// GetConfigWithDefault retrieves a configuration value or returns a default.
func (db *DB) GetConfigWithDefault(key, defaultValue string) string {
	value, err := db.GetConfig(key)
	if err != nil {
		return defaultValue
	}
	return value
}

// GetTSIGKeys returns the TSIG keyring used to authenticate DDNS UPDATE
// requests. The keyring is stored as a single JSON-encoded config value
// rather than its own table, since it is small, rarely written, and read
// as a whole on every server start.
func (db *DB) GetTSIGKeys() ([]config.TSIGKeyConfig, error) {
	raw := db.GetConfigWithDefault(ConfigKeyTSIGKeysJSON, "[]")

	var keys []config.TSIGKeyConfig
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, fmt.Errorf("failed to decode tsig keys: %w", err)
	}

	return keys, nil
}

// SetTSIGKeys replaces the stored TSIG keyring.
func (db *DB) SetTSIGKeys(keys []config.TSIGKeyConfig) error {
	raw, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("failed to encode tsig keys: %w", err)
	}

	return db.SetConfig(ConfigKeyTSIGKeysJSON, string(raw))
}

// GetAllConfig retrieves all configuration key-value pairs.
func (db *DB) GetAllConfig() (map[string]string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query("SELECT key, value FROM config ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("failed to query config: %w", err)
	}
	defer rows.Close()

	config := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan config row: %w", err)
		}
		config[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating config rows: %w", err)
	}

	return config, nil
}

// DeleteConfig removes a configuration key.
func (db *DB) DeleteConfig(key string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec("DELETE FROM config WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete config %s: %w", key, err)
	}

	return nil
}

// SetMultipleConfig sets multiple config values in a transaction.
func (db *DB) SetMultipleConfig(configs map[string]string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO config (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for key, value := range configs {
		if _, err := stmt.Exec(key, value); err != nil {
			return fmt.Errorf("failed to set config %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
