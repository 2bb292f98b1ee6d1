// Package config provides configuration loading for HydraDNS using Viper.
// Configuration is loaded from YAML files with automatic environment variable binding.
//
// Environment variables use the HYDRADNS_ prefix and underscore-separated keys:
//   - HYDRADNS_SERVER_HOST -> server.host
//   - HYDRADNS_SERVER_PORT -> server.port
//   - HYDRADNS_UPSTREAM_SERVERS -> upstream.servers (comma-separated)
//   - HYDRADNS_FILTERING_ENABLED -> filtering.enabled
//
// Only HYDRADNS_-prefixed names are read; there are no unprefixed aliases.
package config

import (
	"os"
	"strconv"
	"strings"
)

// WorkersMode specifies how worker count is determined.
type WorkersMode int

const (
	// WorkersAuto automatically determines worker count based on available CPUs.
	WorkersAuto WorkersMode = iota
	// WorkersFixed uses a specific worker count.
	WorkersFixed
)

// WorkerSetting represents the workers configuration.
type WorkerSetting struct {
	Mode  WorkersMode
	Value int
}

// String returns the string representation of the worker setting.
func (w WorkerSetting) String() string {
	if w.Mode == WorkersAuto {
		return "auto"
	}
	return strconv.Itoa(w.Value)
}

// ParseWorkers populates Workers from WorkersRaw. It never fails: an
// unrecognized value falls back to WorkersAuto, matching parseWorkers'
// existing behavior used by the YAML/env loader.
func (s *ServerConfig) ParseWorkers() error {
	s.Workers = parseWorkers(s.WorkersRaw)
	return nil
}

// ServerConfig contains server-related settings.
type ServerConfig struct {
	Host                   string        `yaml:"host"                      mapstructure:"host"`
	Port                   int           `yaml:"port"                      mapstructure:"port"`
	Workers                WorkerSetting `yaml:"-"                         mapstructure:"-"`
	WorkersRaw             string        `yaml:"workers"                   mapstructure:"workers"`
	MaxConcurrency         int           `yaml:"max_concurrency"           mapstructure:"max_concurrency"`
	UpstreamSocketPoolSize int           `yaml:"upstream_socket_pool_size" mapstructure:"upstream_socket_pool_size"`
	EnableTCP              bool          `yaml:"enable_tcp"                mapstructure:"enable_tcp"`
	TCPFallback            bool          `yaml:"tcp_fallback"              mapstructure:"tcp_fallback"`
}

// UpstreamConfig contains upstream DNS server settings.
//
// Servers may carry a transport scheme prefix: a bare IP is plain UDP/TCP,
// "tls://host[:port]" is DNS-over-TLS (default port 853), and
// "https://.../dns-query" is DNS-over-HTTPS, per spec.md §4.4.
type UpstreamConfig struct {
	Servers            []string                  `yaml:"servers"              mapstructure:"servers"              json:"servers"`
	UDPTimeout         string                    `yaml:"udp_timeout"          mapstructure:"udp_timeout"          json:"udp_timeout"`          // Timeout for UDP queries (e.g., "3s")
	TCPTimeout         string                    `yaml:"tcp_timeout"          mapstructure:"tcp_timeout"          json:"tcp_timeout"`          // Timeout for TCP queries (e.g., "5s")
	MaxRetries         int                       `yaml:"max_retries"          mapstructure:"max_retries"          json:"max_retries"`          // Max retries per upstream on timeout
	PerClient          map[string][]string       `yaml:"per_client"           mapstructure:"per_client"           json:"per_client,omitempty"`  // client IP -> ordered override list
	ConditionalForward []ConditionalForwardEntry `yaml:"conditional_forward"  mapstructure:"conditional_forward"  json:"conditional_forward,omitempty"`
}

// ConditionalForwardEntry routes a domain (and its subdomains, or only its
// subdomains when Pattern starts with "*.") to a dedicated upstream list.
type ConditionalForwardEntry struct {
	Pattern  string   `yaml:"pattern"  mapstructure:"pattern"  json:"pattern"`
	Priority int      `yaml:"priority" mapstructure:"priority" json:"priority"`
	Servers  []string `yaml:"servers"  mapstructure:"servers"  json:"servers"`
}

// ZonesConfig contains zone file settings.
type ZonesConfig struct {
	Directory string   `yaml:"directory" mapstructure:"directory" json:"directory"`
	Files     []string `yaml:"files"     mapstructure:"files"     json:"files,omitempty"`
}

// DNSSECConfig controls zone-signing and response validation.
type DNSSECConfig struct {
	// Enabled signs authoritative answers when a zone carries at least one key.
	Enabled bool `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	// ValidateResponses verifies RRSIGs on DNSSEC-requested answers against
	// the zone's own DNSKEY set (no upward chain-of-trust walk; see spec's
	// Open Questions). Only meaningful for responses this server is also
	// authoritative for.
	ValidateResponses bool `yaml:"validate_responses" mapstructure:"validate_responses" json:"validate_responses"`
	// KeyDirectory optionally holds PEM-encoded zone signing keys named
	// "<zone>.key"/"<zone>.pem". A zone with no key file on disk gets an
	// ephemeral Ed25519 ZSK/KSK pair generated at startup (logged as such).
	KeyDirectory string `yaml:"key_directory" mapstructure:"key_directory" json:"key_directory,omitempty"`
}

// TSIGKeyConfig is one shared-secret key usable for RFC 2136 UPDATE auth.
type TSIGKeyConfig struct {
	Name      string `yaml:"name"      mapstructure:"name"      json:"name"`
	Algorithm string `yaml:"algorithm" mapstructure:"algorithm" json:"algorithm"`
	// Secret is base64-encoded, matching RFC 8945's TSIG key file convention.
	Secret string `yaml:"secret" mapstructure:"secret" json:"-"`
}

// TSIGConfig holds the keyring used to authenticate DDNS UPDATE messages.
type TSIGConfig struct {
	Keys []TSIGKeyConfig `yaml:"keys" mapstructure:"keys" json:"keys,omitempty"`
}

// DoTConfig controls the DNS-over-TLS (RFC 7858) listener.
type DoTConfig struct {
	Enabled  bool   `yaml:"enabled"   mapstructure:"enabled"   json:"enabled"`
	Host     string `yaml:"host"      mapstructure:"host"      json:"host"`
	Port     int    `yaml:"port"      mapstructure:"port"      json:"port"`
	CertFile string `yaml:"cert_file" mapstructure:"cert_file" json:"cert_file,omitempty"`
	KeyFile  string `yaml:"key_file"  mapstructure:"key_file"  json:"key_file,omitempty"`
}

// DoQConfig controls the DNS-over-QUIC (RFC 9250) listener.
type DoQConfig struct {
	Enabled  bool   `yaml:"enabled"   mapstructure:"enabled"   json:"enabled"`
	Host     string `yaml:"host"      mapstructure:"host"      json:"host"`
	Port     int    `yaml:"port"      mapstructure:"port"      json:"port"`
	CertFile string `yaml:"cert_file" mapstructure:"cert_file" json:"cert_file,omitempty"`
	KeyFile  string `yaml:"key_file"  mapstructure:"key_file"  json:"key_file,omitempty"`
}

// DoHConfig controls the DNS-over-HTTPS (RFC 8484) listener. TLS is optional:
// DoH is commonly terminated behind a reverse proxy, so CertFile/KeyFile may
// be left empty to serve plain HTTP on the configured host/port.
type DoHConfig struct {
	Enabled  bool   `yaml:"enabled"   mapstructure:"enabled"   json:"enabled"`
	Host     string `yaml:"host"      mapstructure:"host"      json:"host"`
	Port     int    `yaml:"port"      mapstructure:"port"      json:"port"`
	CertFile string `yaml:"cert_file" mapstructure:"cert_file" json:"cert_file,omitempty"`
	KeyFile  string `yaml:"key_file"  mapstructure:"key_file"  json:"key_file,omitempty"`
}

// TransportConfig groups the optional encrypted-transport listeners that sit
// alongside the always-on UDP/TCP listeners.
type TransportConfig struct {
	DoT DoTConfig `yaml:"dot" mapstructure:"dot"`
	DoQ DoQConfig `yaml:"doq" mapstructure:"doq"`
	DoH DoHConfig `yaml:"doh" mapstructure:"doh"`
}

// BlockPageConfig controls returning a sink IP instead of NXDOMAIN for
// blocked A/AAAA queries.
type BlockPageConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	IPv4    string `yaml:"ipv4"    mapstructure:"ipv4"    json:"ipv4,omitempty"`
	IPv6    string `yaml:"ipv6"    mapstructure:"ipv6"    json:"ipv6,omitempty"`
}

// CacheConfig controls the TTL-aware response cache: stale-serving and
// prefetch behavior layered on top of the forwarding resolver's cache.
type CacheConfig struct {
	Enabled            bool    `yaml:"enabled"              mapstructure:"enabled"              json:"enabled"`
	ServeStale         bool    `yaml:"serve_stale"          mapstructure:"serve_stale"          json:"serve_stale"`
	StaleMaxAgeSeconds int     `yaml:"stale_max_age_seconds" mapstructure:"stale_max_age_seconds" json:"stale_max_age_seconds"`
	PrefetchEnabled    bool    `yaml:"prefetch_enabled"     mapstructure:"prefetch_enabled"     json:"prefetch_enabled"`
	PrefetchThreshold  float64 `yaml:"prefetch_threshold"   mapstructure:"prefetch_threshold"   json:"prefetch_threshold"`
	PrefetchMinQueries int     `yaml:"prefetch_min_queries" mapstructure:"prefetch_min_queries" json:"prefetch_min_queries"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string            `yaml:"level"             mapstructure:"level"             json:"level"`
	Structured       bool              `yaml:"structured"        mapstructure:"structured"        json:"structured"`
	StructuredFormat string            `yaml:"structured_format" mapstructure:"structured_format" json:"structured_format"`
	IncludePID       bool              `yaml:"include_pid"       mapstructure:"include_pid"       json:"include_pid"`
	ExtraFields      map[string]string `yaml:"extra_fields"      mapstructure:"extra_fields"      json:"extra_fields,omitempty"`
}

// FilteringConfig controls domain filtering (blocklists/whitelists).
type FilteringConfig struct {
	Enabled          bool              `yaml:"enabled"           mapstructure:"enabled"           json:"enabled"`
	LogBlocked       bool              `yaml:"log_blocked"       mapstructure:"log_blocked"       json:"log_blocked"`
	LogAllowed       bool              `yaml:"log_allowed"       mapstructure:"log_allowed"       json:"log_allowed"`
	WhitelistDomains []string          `yaml:"whitelist_domains" mapstructure:"whitelist_domains" json:"whitelist_domains,omitempty"`
	BlacklistDomains []string          `yaml:"blacklist_domains" mapstructure:"blacklist_domains" json:"blacklist_domains,omitempty"`
	Blocklists       []BlocklistConfig `yaml:"blocklists"        mapstructure:"blocklists"        json:"blocklists,omitempty"`
	RefreshInterval  string            `yaml:"refresh_interval"  mapstructure:"refresh_interval"  json:"refresh_interval"`

	// GloballyDisabled and TempDisableSeconds implement spec.md §4.2 tier 1
	// (admin "pause blocking" switch). TempDisableSeconds is applied once at
	// startup; runtime pause/resume goes through the admin API instead.
	GloballyDisabled    bool                `yaml:"globally_disabled"    mapstructure:"globally_disabled"    json:"globally_disabled"`
	TempDisableSeconds  int                 `yaml:"temp_disable_seconds" mapstructure:"temp_disable_seconds" json:"temp_disable_seconds,omitempty"`
	Clients             []ClientFilterConfig `yaml:"clients"              mapstructure:"clients"              json:"clients,omitempty"`
	Groups              []GroupFilterConfig  `yaml:"groups"               mapstructure:"groups"               json:"groups,omitempty"`
	RegexFilters         []RegexFilterConfig `yaml:"regex_filters"        mapstructure:"regex_filters"        json:"regex_filters,omitempty"`
}

// BlocklistConfig defines a remote blocklist source.
type BlocklistConfig struct {
	Name   string `yaml:"name"   mapstructure:"name"   json:"name"`
	URL    string `yaml:"url"    mapstructure:"url"    json:"url"`
	Format string `yaml:"format" mapstructure:"format" json:"format"` // "auto", "adblock", "hosts", "domains"
}

// ClientFilterConfig defines per-client filtering overrides (spec.md §4.2
// tiers 2/5/9), keyed by the client's source IP address.
type ClientFilterConfig struct {
	IP               string   `yaml:"ip"                mapstructure:"ip"                json:"ip"`
	Groups           []string `yaml:"groups"            mapstructure:"groups"            json:"groups,omitempty"`
	BlockingDisabled bool     `yaml:"blocking_disabled" mapstructure:"blocking_disabled" json:"blocking_disabled"`
	Allowlist        []string `yaml:"allowlist"         mapstructure:"allowlist"         json:"allowlist,omitempty"`
	Blocklist        []string `yaml:"blocklist"         mapstructure:"blocklist"         json:"blocklist,omitempty"`
}

// GroupFilterConfig defines a named filtering group shared by one or more
// clients (spec.md §4.2 tiers 3/6/10).
type GroupFilterConfig struct {
	Name             string   `yaml:"name"              mapstructure:"name"              json:"name"`
	BlockingDisabled bool     `yaml:"blocking_disabled" mapstructure:"blocking_disabled" json:"blocking_disabled"`
	Allowlist        []string `yaml:"allowlist"         mapstructure:"allowlist"         json:"allowlist,omitempty"`
	Blocklist        []string `yaml:"blocklist"         mapstructure:"blocklist"         json:"blocklist,omitempty"`
}

// RegexFilterConfig defines a single regex-based allow/block rule (spec.md
// §4.2 tiers 7/8).
type RegexFilterConfig struct {
	Pattern string `yaml:"pattern" mapstructure:"pattern" json:"pattern"`
	Kind    string `yaml:"kind"    mapstructure:"kind"    json:"kind"` // "allow" or "block"
	Enabled bool   `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
}

// RateLimitConfig controls rate limiting settings.
type RateLimitConfig struct {
	// WindowMs is the sliding-window length in milliseconds (default: 1000)
	WindowMs int `yaml:"window_ms"          mapstructure:"window_ms"          json:"window_ms"`
	// CleanupSeconds is how often stale entries are cleaned up (default: 60)
	CleanupSeconds float64 `yaml:"cleanup_seconds"    mapstructure:"cleanup_seconds"    json:"cleanup_seconds"`
	// MaxIPEntries is the maximum number of tracked IPs (default: 65536)
	MaxIPEntries int `yaml:"max_ip_entries"     mapstructure:"max_ip_entries"     json:"max_ip_entries"`
	// MaxPrefixEntries is the maximum number of tracked prefixes (default: 16384)
	MaxPrefixEntries int `yaml:"max_prefix_entries" mapstructure:"max_prefix_entries" json:"max_prefix_entries"`
	// GlobalQPS is the server-wide queries per second limit (default: 100000, 0 = disabled)
	GlobalQPS float64 `yaml:"global_qps"         mapstructure:"global_qps"         json:"global_qps"`
	// GlobalBurst is the global burst size (default: 100000)
	GlobalBurst int `yaml:"global_burst"       mapstructure:"global_burst"       json:"global_burst"`
	// PrefixQPS is the per-prefix QPS limit (default: 10000, 0 = disabled)
	PrefixQPS float64 `yaml:"prefix_qps"         mapstructure:"prefix_qps"         json:"prefix_qps"`
	// PrefixBurst is the per-prefix burst size (default: 20000)
	PrefixBurst int `yaml:"prefix_burst"       mapstructure:"prefix_burst"       json:"prefix_burst"`
	// IPQPS is the per-IP QPS limit (default: 5000, 0 = disabled)
	IPQPS float64 `yaml:"ip_qps"             mapstructure:"ip_qps"             json:"ip_qps"`
	// IPBurst is the per-IP burst size (default: 10000)
	IPBurst int `yaml:"ip_burst"           mapstructure:"ip_burst"           json:"ip_burst"`
}

// APIConfig contains management API settings.
//
// Note: APIKey is intentionally treated as a secret and should not be returned by API endpoints.
type APIConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Host    string `yaml:"host"    mapstructure:"host"`
	Port    int    `yaml:"port"    mapstructure:"port"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
}

// CustomDNSConfig holds local DNS overrides: static A/AAAA hosts and CNAME
// aliases resolved before any upstream or zone lookup is attempted.
type CustomDNSConfig struct {
	// Hosts maps a hostname to one or more IP addresses (A or AAAA).
	Hosts map[string][]string `yaml:"hosts"  mapstructure:"hosts"  json:"hosts,omitempty"`
	// CNAMEs maps an alias hostname to its canonical target.
	CNAMEs map[string]string `yaml:"cnames" mapstructure:"cnames" json:"cnames,omitempty"`
}

// ClusterMode selects how a node participates in primary/secondary config sync.
type ClusterMode string

const (
	// ClusterModeStandalone disables cluster sync entirely.
	ClusterModeStandalone ClusterMode = "standalone"
	// ClusterModePrimary serves config exports to secondaries.
	ClusterModePrimary ClusterMode = "primary"
	// ClusterModeSecondary periodically pulls config from a primary.
	ClusterModeSecondary ClusterMode = "secondary"
)

// ClusterConfig controls primary/secondary configuration replication.
type ClusterConfig struct {
	Mode         ClusterMode `yaml:"mode"          mapstructure:"mode"          json:"mode"`
	NodeID       string      `yaml:"node_id"       mapstructure:"node_id"       json:"node_id"`
	PrimaryURL   string      `yaml:"primary_url"   mapstructure:"primary_url"   json:"primary_url,omitempty"`
	SharedSecret string      `yaml:"shared_secret" mapstructure:"shared_secret" json:"-"`
	SyncInterval string      `yaml:"sync_interval" mapstructure:"sync_interval" json:"sync_interval"`
	SyncTimeout  string      `yaml:"sync_timeout"  mapstructure:"sync_timeout"  json:"sync_timeout"`
}

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"     mapstructure:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream"   mapstructure:"upstream"`
	Zones     ZonesConfig     `yaml:"zones"      mapstructure:"zones"`
	DNSSEC    DNSSECConfig    `yaml:"dnssec"     mapstructure:"dnssec"`
	TSIG      TSIGConfig      `yaml:"tsig"       mapstructure:"tsig"`
	Transport TransportConfig `yaml:"transport"  mapstructure:"transport"`
	BlockPage BlockPageConfig `yaml:"block_page" mapstructure:"block_page"`
	Cache     CacheConfig     `yaml:"cache"      mapstructure:"cache"`
	Logging   LoggingConfig   `yaml:"logging"    mapstructure:"logging"`
	Filtering FilteringConfig `yaml:"filtering"  mapstructure:"filtering"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	API       APIConfig       `yaml:"api"        mapstructure:"api"`
	CustomDNS CustomDNSConfig `yaml:"custom_dns" mapstructure:"custom_dns"`
	Cluster   ClusterConfig   `yaml:"cluster"    mapstructure:"cluster"`
}

// ResolveConfigPath determines the config file path from flag or environment.
func ResolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if v := strings.TrimSpace(os.Getenv("HYDRADNS_CONFIG")); v != "" {
		return v
	}
	return ""
}

// Load loads configuration from a YAML file with environment variable overrides.
// This is the main entry point for loading configuration.
//
// Configuration priority (highest to lowest):
//  1. Environment variables (HYDRADNS_*)
//  2. Config file values
//  3. Default values
func Load(path string) (*Config, error) {
	return loadFromSource(path)
}
