// Package config provides configuration loading and validation for HydraDNS.
//
// Configuration is loaded with the following priority (highest to lowest):
//  1. Command-line flags (not handled here, see cmd/hydradns/main.go)
//  2. Environment variables (HYDRADNS_* prefix)
//  3. YAML config file (if specified with --config)
//  4. Hardcoded defaults
//
// Environment variables are mapped from HYDRADNS_CATEGORY_SETTING format,
// e.g., HYDRADNS_SERVER_HOST maps to server.host in YAML.
//
// All configuration is validated during Load() to ensure correctness early.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// initConfig sets up the config loader with defaults, env binding, and config file.
func initConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Environment variable binding
	// Uses HYDRADNS_ prefix: HYDRADNS_SERVER_HOST -> server.host
	v.SetEnvPrefix("HYDRADNS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

// setDefaults configures all default values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 1053)
	v.SetDefault("server.workers", "auto")
	v.SetDefault("server.max_concurrency", 0)
	v.SetDefault("server.upstream_socket_pool_size", 0)
	v.SetDefault("server.enable_tcp", true)
	v.SetDefault("server.tcp_fallback", true)

	// Upstream defaults
	v.SetDefault("upstream.servers", []string{"8.8.8.8"})
	v.SetDefault("upstream.udp_timeout", "3s")
	v.SetDefault("upstream.tcp_timeout", "5s")
	v.SetDefault("upstream.max_retries", 3)

	// Zones defaults
	v.SetDefault("zones.directory", "zones")
	v.SetDefault("zones.files", []string{})

	// Logging defaults
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", false)
	v.SetDefault("logging.structured_format", "json")
	v.SetDefault("logging.include_pid", false)
	v.SetDefault("logging.extra_fields", map[string]string{})

	// Filtering defaults
	v.SetDefault("filtering.enabled", false)
	v.SetDefault("filtering.log_blocked", true)
	v.SetDefault("filtering.log_allowed", false)
	v.SetDefault("filtering.whitelist_domains", []string{})
	v.SetDefault("filtering.blacklist_domains", []string{})
	v.SetDefault("filtering.blocklists", []BlocklistConfig{})
	v.SetDefault("filtering.refresh_interval", "24h")

	// Rate limiting defaults
	v.SetDefault("rate_limit.window_ms", 1000)
	v.SetDefault("rate_limit.cleanup_seconds", 60.0)
	v.SetDefault("rate_limit.max_ip_entries", 65536)
	v.SetDefault("rate_limit.max_prefix_entries", 16384)
	v.SetDefault("rate_limit.global_qps", 100000.0)
	v.SetDefault("rate_limit.global_burst", 100000)
	v.SetDefault("rate_limit.prefix_qps", 10000.0)
	v.SetDefault("rate_limit.prefix_burst", 20000)
	v.SetDefault("rate_limit.ip_qps", 5000.0)
	v.SetDefault("rate_limit.ip_burst", 10000)

	// Management API defaults
	// Default to disabled and bound to localhost for safety.
	v.SetDefault("api.enabled", false)
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.api_key", "")

	// DNSSEC defaults: off until a zone operator opts in.
	v.SetDefault("dnssec.enabled", false)
	v.SetDefault("dnssec.validate_responses", false)
	v.SetDefault("dnssec.key_directory", "")

	// TSIG keyring: empty until the operator configures UPDATE access.
	v.SetDefault("tsig.keys", []TSIGKeyConfig{})

	// Encrypted transport listeners default to disabled; UDP/TCP on
	// server.host/server.port are always on.
	v.SetDefault("transport.dot.enabled", false)
	v.SetDefault("transport.dot.host", "0.0.0.0")
	v.SetDefault("transport.dot.port", 853)
	v.SetDefault("transport.doq.enabled", false)
	v.SetDefault("transport.doq.host", "0.0.0.0")
	v.SetDefault("transport.doq.port", 853)
	v.SetDefault("transport.doh.enabled", false)
	v.SetDefault("transport.doh.host", "0.0.0.0")
	v.SetDefault("transport.doh.port", 443)

	// Block-page defaults: off (plain NXDOMAIN for blocked A/AAAA).
	v.SetDefault("block_page.enabled", false)
	v.SetDefault("block_page.ipv4", "0.0.0.0")
	v.SetDefault("block_page.ipv6", "::")

	// Cache defaults per spec.md §4.3/§6.
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.serve_stale", true)
	v.SetDefault("cache.stale_max_age_seconds", 3600)
	v.SetDefault("cache.prefetch_enabled", false)
	v.SetDefault("cache.prefetch_threshold", 0.2)
	v.SetDefault("cache.prefetch_min_queries", 10)
}

// loadFromSource loads configuration from file and environment.
func loadFromSource(configPath string) (*Config, error) {
	v, err := initConfig(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	loadServerConfig(v, cfg)
	loadUpstreamConfig(v, cfg)
	loadCustomDNSConfig(v, cfg)
	loadLoggingConfig(v, cfg)
	loadFilteringConfig(v, cfg)
	loadAPIConfig(v, cfg)
	loadRateLimitConfig(v, cfg)
	loadZonesConfig(v, cfg)
	loadDNSSECConfig(v, cfg)
	loadTSIGConfig(v, cfg)
	loadTransportConfig(v, cfg)
	loadBlockPageConfig(v, cfg)
	loadCacheConfig(v, cfg)

	// Normalize and validate
	if err := normalizeConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadServerConfig(v *viper.Viper, cfg *Config) {
	cfg.Server.Host = v.GetString("server.host")
	cfg.Server.Port = v.GetInt("server.port")
	cfg.Server.MaxConcurrency = v.GetInt("server.max_concurrency")
	cfg.Server.UpstreamSocketPoolSize = v.GetInt("server.upstream_socket_pool_size")
	cfg.Server.EnableTCP = v.GetBool("server.enable_tcp")
	cfg.Server.TCPFallback = v.GetBool("server.tcp_fallback")
	cfg.Server.WorkersRaw = v.GetString("server.workers")
	cfg.Server.Workers = parseWorkers(cfg.Server.WorkersRaw)
}

func loadUpstreamConfig(v *viper.Viper, cfg *Config) {
	cfg.Upstream.Servers = parseServerList(v.GetStringSlice("upstream.servers"))
	if len(cfg.Upstream.Servers) == 0 {
		// Handle comma-separated string from env
		if s := v.GetString("upstream.servers"); s != "" {
			cfg.Upstream.Servers = parseServerList(strings.Split(s, ","))
		}
	}
	cfg.Upstream.UDPTimeout = v.GetString("upstream.udp_timeout")
	cfg.Upstream.TCPTimeout = v.GetString("upstream.tcp_timeout")
	cfg.Upstream.MaxRetries = v.GetInt("upstream.max_retries")
	if err := v.UnmarshalKey("upstream.per_client", &cfg.Upstream.PerClient); err != nil {
		cfg.Upstream.PerClient = nil
	}
	if err := v.UnmarshalKey("upstream.conditional_forward", &cfg.Upstream.ConditionalForward); err != nil {
		cfg.Upstream.ConditionalForward = nil
	}
}

func loadCustomDNSConfig(v *viper.Viper, cfg *Config) {
	// Load hosts map
	if v.IsSet("custom_dns.hosts") {
		hostsMap := v.GetStringMap("custom_dns.hosts")
		cfg.CustomDNS.Hosts = make(map[string][]string)
		for name, value := range hostsMap {
			switch v := value.(type) {
			case string:
				// Single IP address
				cfg.CustomDNS.Hosts[name] = []string{v}
			case []interface{}:
				// Multiple IP addresses
				ips := make([]string, 0, len(v))
				for _, ip := range v {
					if ipStr, ok := ip.(string); ok {
						ips = append(ips, ipStr)
					}
				}
				cfg.CustomDNS.Hosts[name] = ips
			case []string:
				// Already a string slice
				cfg.CustomDNS.Hosts[name] = v
			}
		}
	}

	// Load cnames map
	if v.IsSet("custom_dns.cnames") {
		cfg.CustomDNS.CNAMEs = v.GetStringMapString("custom_dns.cnames")
	}
}

func loadLoggingConfig(v *viper.Viper, cfg *Config) {
	cfg.Logging.Level = strings.ToUpper(v.GetString("logging.level"))
	cfg.Logging.Structured = v.GetBool("logging.structured")
	cfg.Logging.StructuredFormat = v.GetString("logging.structured_format")
	cfg.Logging.IncludePID = v.GetBool("logging.include_pid")
	cfg.Logging.ExtraFields = v.GetStringMapString("logging.extra_fields")
}

func loadFilteringConfig(v *viper.Viper, cfg *Config) {
	cfg.Filtering.Enabled = v.GetBool("filtering.enabled")
	cfg.Filtering.LogBlocked = v.GetBool("filtering.log_blocked")
	cfg.Filtering.LogAllowed = v.GetBool("filtering.log_allowed")
	cfg.Filtering.RefreshInterval = v.GetString("filtering.refresh_interval")

	// Handle whitelist/blacklist (can be slice or comma-separated string)
	cfg.Filtering.WhitelistDomains = getStringSliceOrSplit(v, "filtering.whitelist_domains")
	cfg.Filtering.BlacklistDomains = getStringSliceOrSplit(v, "filtering.blacklist_domains")

	// Parse blocklists
	if err := v.UnmarshalKey("filtering.blocklists", &cfg.Filtering.Blocklists); err != nil {
		// Ignore unmarshal errors for blocklists, use empty slice
		cfg.Filtering.Blocklists = []BlocklistConfig{}
	}

	// Handle single blocklist URL from env
	if url := v.GetString("filtering.blocklist_url"); url != "" {
		cfg.Filtering.Blocklists = append(cfg.Filtering.Blocklists, BlocklistConfig{
			Name:   "env-blocklist",
			URL:    url,
			Format: "auto",
		})
	}
}

func loadAPIConfig(v *viper.Viper, cfg *Config) {
	cfg.API.Enabled = v.GetBool("api.enabled")
	cfg.API.Host = v.GetString("api.host")
	cfg.API.Port = v.GetInt("api.port")
	cfg.API.APIKey = v.GetString("api.api_key")
}

func loadZonesConfig(v *viper.Viper, cfg *Config) {
	cfg.Zones.Directory = v.GetString("zones.directory")
	cfg.Zones.Files = v.GetStringSlice("zones.files")
}

func loadDNSSECConfig(v *viper.Viper, cfg *Config) {
	cfg.DNSSEC.Enabled = v.GetBool("dnssec.enabled")
	cfg.DNSSEC.ValidateResponses = v.GetBool("dnssec.validate_responses")
	cfg.DNSSEC.KeyDirectory = v.GetString("dnssec.key_directory")
}

func loadTSIGConfig(v *viper.Viper, cfg *Config) {
	if err := v.UnmarshalKey("tsig.keys", &cfg.TSIG.Keys); err != nil {
		cfg.TSIG.Keys = nil
	}
}

func loadTransportConfig(v *viper.Viper, cfg *Config) {
	cfg.Transport.DoT = DoTConfig{
		Enabled:  v.GetBool("transport.dot.enabled"),
		Host:     v.GetString("transport.dot.host"),
		Port:     v.GetInt("transport.dot.port"),
		CertFile: v.GetString("transport.dot.cert_file"),
		KeyFile:  v.GetString("transport.dot.key_file"),
	}
	cfg.Transport.DoQ = DoQConfig{
		Enabled:  v.GetBool("transport.doq.enabled"),
		Host:     v.GetString("transport.doq.host"),
		Port:     v.GetInt("transport.doq.port"),
		CertFile: v.GetString("transport.doq.cert_file"),
		KeyFile:  v.GetString("transport.doq.key_file"),
	}
	cfg.Transport.DoH = DoHConfig{
		Enabled:  v.GetBool("transport.doh.enabled"),
		Host:     v.GetString("transport.doh.host"),
		Port:     v.GetInt("transport.doh.port"),
		CertFile: v.GetString("transport.doh.cert_file"),
		KeyFile:  v.GetString("transport.doh.key_file"),
	}
}

func loadBlockPageConfig(v *viper.Viper, cfg *Config) {
	cfg.BlockPage.Enabled = v.GetBool("block_page.enabled")
	cfg.BlockPage.IPv4 = v.GetString("block_page.ipv4")
	cfg.BlockPage.IPv6 = v.GetString("block_page.ipv6")
}

func loadCacheConfig(v *viper.Viper, cfg *Config) {
	cfg.Cache.Enabled = v.GetBool("cache.enabled")
	cfg.Cache.ServeStale = v.GetBool("cache.serve_stale")
	cfg.Cache.StaleMaxAgeSeconds = v.GetInt("cache.stale_max_age_seconds")
	cfg.Cache.PrefetchEnabled = v.GetBool("cache.prefetch_enabled")
	cfg.Cache.PrefetchThreshold = v.GetFloat64("cache.prefetch_threshold")
	cfg.Cache.PrefetchMinQueries = v.GetInt("cache.prefetch_min_queries")
}

func loadRateLimitConfig(v *viper.Viper, cfg *Config) {
	cfg.RateLimit.WindowMs = v.GetInt("rate_limit.window_ms")
	cfg.RateLimit.CleanupSeconds = v.GetFloat64("rate_limit.cleanup_seconds")
	cfg.RateLimit.MaxIPEntries = v.GetInt("rate_limit.max_ip_entries")
	cfg.RateLimit.MaxPrefixEntries = v.GetInt("rate_limit.max_prefix_entries")
	cfg.RateLimit.GlobalQPS = v.GetFloat64("rate_limit.global_qps")
	cfg.RateLimit.GlobalBurst = v.GetInt("rate_limit.global_burst")
	cfg.RateLimit.PrefixQPS = v.GetFloat64("rate_limit.prefix_qps")
	cfg.RateLimit.PrefixBurst = v.GetInt("rate_limit.prefix_burst")
	cfg.RateLimit.IPQPS = v.GetFloat64("rate_limit.ip_qps")
	cfg.RateLimit.IPBurst = v.GetInt("rate_limit.ip_burst")
}

// parseWorkers converts the workers string to WorkerSetting.
func parseWorkers(raw string) WorkerSetting {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" || raw == "auto" {
		return WorkerSetting{Mode: WorkersAuto}
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return WorkerSetting{Mode: WorkersFixed, Value: n}
	}
	return WorkerSetting{Mode: WorkersAuto}
}

// parseServerList cleans up a list of server addresses.
func parseServerList(servers []string) []string {
	result := make([]string, 0, len(servers))
	for _, s := range servers {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		// Strip port from plain host:port entries (always use port 53);
		// tls:// and https:// endpoints and bare IPv6 addresses are kept whole.
		if !strings.Contains(s, "://") {
			if h, _, err := net.SplitHostPort(s); err == nil {
				s = h
			}
		}
		result = append(result, s)
	}
	return result
}

// getStringSliceOrSplit handles both slice and comma-separated string values.
func getStringSliceOrSplit(v *viper.Viper, key string) []string {
	if slice := v.GetStringSlice(key); len(slice) > 0 {
		// Filter empty entries
		result := make([]string, 0, len(slice))
		for _, s := range slice {
			s = strings.TrimSpace(s)
			if s != "" {
				result = append(result, s)
			}
		}
		return result
	}
	// Try as comma-separated string
	if s := v.GetString(key); s != "" {
		parts := strings.Split(s, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return nil
}

// normalizeConfig validates and normalizes the configuration.
func normalizeConfig(cfg *Config) error {
	// Validate port
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New("server.port must be 1..65535")
	}

	// Default upstream servers
	if len(cfg.Upstream.Servers) == 0 {
		cfg.Upstream.Servers = []string{"8.8.8.8"}
	}

	// Limit to 3 upstream servers (strict-order failover)
	if len(cfg.Upstream.Servers) > 3 {
		cfg.Upstream.Servers = cfg.Upstream.Servers[:3]
	}

	// Normalize logging
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	// Normalize filtering
	if cfg.Filtering.RefreshInterval == "" {
		cfg.Filtering.RefreshInterval = "24h"
	}

	// Normalize management API
	if cfg.API.Host == "" {
		cfg.API.Host = "127.0.0.1"
	}
	if cfg.API.Enabled {
		if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
			return errors.New("api.port must be 1..65535")
		}
	}

	return nil
}
