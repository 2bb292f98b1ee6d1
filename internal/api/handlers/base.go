// Package handlers implements the REST API endpoint handlers for HydraDNS.
//
// @title HydraDNS Management API
// @version 1.0
// @description REST API for managing HydraDNS server configuration, zones, and filtering.
//
// @contact.name HydraDNS Support
// @contact.url https://github.com/jroosing/hydradns
//
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
//
// @host localhost:8080
// @BasePath /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
package handlers

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jroosing/hydradns/internal/cluster"
	"github.com/jroosing/hydradns/internal/config"
	"github.com/jroosing/hydradns/internal/database"
	"github.com/jroosing/hydradns/internal/filtering"
	"github.com/jroosing/hydradns/internal/zone"
)

// DNSStatsSnapshot is the handler-side view of live DNS query statistics,
// mirroring internal/server.DNSStatsSnapshot without importing internal/server
// (which itself depends on the filtering/zone packages this package already
// imports, and need not depend on the API layer).
type DNSStatsSnapshot struct {
	QueriesTotal int64
	QueriesUDP   int64
	QueriesTCP   int64
	ResponsesNX  int64
	ResponsesErr int64
	AvgLatencyMs float64
}

// Handler contains dependencies for API handlers.
type Handler struct {
	cfg       *config.Config
	db        *database.DB
	logger    *slog.Logger
	startTime time.Time

	// Runtime components (set after server starts)
	policyEngine        *filtering.PolicyEngine
	zones               []*zone.Zone
	clusterSyncer       *cluster.Syncer
	dnsStatsFunc        func() DNSStatsSnapshot
	customDNSReloadFunc func() error
	mu                  sync.RWMutex
}

// New creates a new Handler with the given configuration and database handle.
func New(cfg *config.Config, db *database.DB, logger *slog.Logger) *Handler {
	return &Handler{
		cfg:       cfg,
		db:        db,
		logger:    logger,
		startTime: time.Now(),
	}
}

// SetPolicyEngine sets the filtering policy engine for runtime access.
func (h *Handler) SetPolicyEngine(pe *filtering.PolicyEngine) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.policyEngine = pe
}

// GetPolicyEngine returns the currently registered filtering policy engine,
// or nil if none has been set yet.
func (h *Handler) GetPolicyEngine() *filtering.PolicyEngine {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.policyEngine
}

// SetZones sets the loaded zones for runtime access.
func (h *Handler) SetZones(zones []*zone.Zone) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.zones = zones
}

// SetClusterSyncer registers the running cluster syncer for runtime access
// (cluster status/control endpoints).
func (h *Handler) SetClusterSyncer(s *cluster.Syncer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clusterSyncer = s
}

// SetDNSStatsFunc registers a callback that returns a live snapshot of DNS
// query statistics, used by the /stats endpoint.
func (h *Handler) SetDNSStatsFunc(fn func() DNSStatsSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dnsStatsFunc = fn
}

// GetDNSStatsFunc returns the registered DNS stats callback, or nil.
func (h *Handler) GetDNSStatsFunc() func() DNSStatsSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dnsStatsFunc
}

// SetCustomDNSReloadFunc registers the callback invoked after a custom DNS
// host/CNAME mapping is added, updated, or deleted through the admin API, so
// the change takes effect on the live resolver chain instead of only
// persisting to configuration.
func (h *Handler) SetCustomDNSReloadFunc(fn func() error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.customDNSReloadFunc = fn
}

// formatRData converts zone record RData to a display string.
func formatRData(rdata any) string {
	if rdata == nil {
		return ""
	}
	return fmt.Sprintf("%v", rdata)
}

// formatRecordType converts a DNS record type to its name.
func formatRecordType(t uint16) string {
	switch t {
	case 1:
		return "A"
	case 2:
		return "NS"
	case 5:
		return "CNAME"
	case 6:
		return "SOA"
	case 12:
		return "PTR"
	case 15:
		return "MX"
	case 16:
		return "TXT"
	case 28:
		return "AAAA"
	default:
		return fmt.Sprintf("TYPE%d", t)
	}
}
