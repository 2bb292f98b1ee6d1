package server

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jroosing/hydradns/internal/config"
	"github.com/jroosing/hydradns/internal/database"
	"github.com/jroosing/hydradns/internal/ddns"
	"github.com/jroosing/hydradns/internal/dnssec"
	"github.com/jroosing/hydradns/internal/filtering"
	"github.com/jroosing/hydradns/internal/resolvers"
	"github.com/jroosing/hydradns/internal/tsig"
	"github.com/jroosing/hydradns/internal/zone"
)

// Runner orchestrates the DNS server startup, configuration, and shutdown.
type Runner struct {
	logger *slog.Logger

	mu           sync.Mutex
	policyEngine *filtering.PolicyEngine
	stats        *DNSStats
	db           *database.DB
	queryLog     *QueryLogWriter
	customDNS    *resolvers.ReloadableCustomDNSResolver
}

// SetDB registers the configuration database so the resolver chain can
// mirror its cache durably and the query pipeline can persist its log.
// Optional: a nil db (the default) runs entirely in memory, as before.
func (r *Runner) SetDB(db *database.DB) {
	r.mu.Lock()
	r.db = db
	r.mu.Unlock()
}

// NewRunner creates a new server runner with the given logger.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger, stats: NewDNSStats()}
}

// SetPolicyEngine registers a filtering policy engine built ahead of the DNS
// server start (typically shared with the admin API so both surfaces see the
// same live policy). When set, Run/RunWithContext use it instead of building
// a fresh one from cfg.Filtering.
func (r *Runner) SetPolicyEngine(pe *filtering.PolicyEngine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policyEngine = pe
}

// ReloadCustomDNS rebuilds the static local-DNS tier (spec.md §4.8 step 5)
// from cfg.CustomDNS and hot-swaps it into the already-running resolver
// chain. Safe to call from the admin API after a host/CNAME mapping is
// added, updated, or deleted; a nil receiver's resolver chain is only
// populated once RunWithContext has started, so calls before startup are a
// no-op (the initial build in buildResolverChain reads the same cfg).
func (r *Runner) ReloadCustomDNS(cfg *config.Config) error {
	r.mu.Lock()
	cd := r.customDNS
	r.mu.Unlock()
	if cd == nil {
		return nil
	}
	resolver, err := resolvers.NewCustomDNSResolver(cfg.CustomDNS.Hosts, cfg.CustomDNS.CNAMEs)
	if err != nil {
		return err
	}
	return cd.Reload(resolver)
}

// DNSStats returns the live query-statistics collector. Safe to call before
// Run/RunWithContext; the same collector instance backs the whole server
// lifetime so callers (e.g. the admin API) can poll it from another
// goroutine.
func (r *Runner) DNSStats() *DNSStats {
	return r.stats
}

// Run starts the DNS server with the given configuration, installing its own
// SIGINT/SIGTERM handling. Prefer RunWithContext when the caller already
// manages a shutdown context (e.g. to coordinate with other services).
func (r *Runner) Run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return r.RunWithContext(ctx, cfg)
}

// RunWithContext starts the DNS server with the given configuration. The
// server runs until ctx is cancelled or a listener reports a fatal error.
//
// Server lifecycle:
//  1. Configure runtime (GOMAXPROCS based on workers setting)
//  2. Load zone files for local resolution, including DNSSEC signing keys
//  3. Build resolver chain (zones -> custom DNS -> forwarding), wrapped by filtering
//  4. Start UDP, TCP, and any enabled encrypted-transport listeners (DoT/DoQ/DoH)
//  5. Wait for shutdown signal or listener error
//  6. Gracefully stop servers with timeout
func (r *Runner) RunWithContext(ctx context.Context, cfg *config.Config) error {
	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	// Configure GOMAXPROCS based on worker settings
	desiredProcs := r.configureRuntime(cfg)

	// Calculate concurrency limits
	maxConc := r.calculateMaxConcurrency(cfg, desiredProcs)
	upPool := r.calculateUpstreamPoolSize(cfg, maxConc)

	// Load zone files and their DNSSEC signing keys
	zones := r.loadZones(cfg)
	r.loadZoneKeys(cfg, zones)

	// Build resolver chain
	var zoneResolver *resolvers.ZoneResolver
	if len(zones) > 0 {
		zoneResolver = resolvers.NewZoneResolver(zones)
	}
	resolver := r.buildResolverChain(ctx, cfg, zoneResolver, upPool)
	defer resolver.Close()
	defer func() {
		if r.queryLog != nil {
			r.queryLog.Stop()
		}
	}()

	// DDNS/TSIG: an UPDATE (OPCODE=5) message is authenticated against the
	// configured keyring and applied to the matching zone.
	ddnsProcessor := r.buildDDNSProcessor(cfg, zoneResolver)

	limiter := NewRateLimiter(RateLimitSettings{
		WindowMs:         cfg.RateLimit.WindowMs,
		CleanupSeconds:   cfg.RateLimit.CleanupSeconds,
		MaxIPEntries:     cfg.RateLimit.MaxIPEntries,
		MaxPrefixEntries: cfg.RateLimit.MaxPrefixEntries,
		GlobalQPS:        cfg.RateLimit.GlobalQPS,
		GlobalBurst:      cfg.RateLimit.GlobalBurst,
		PrefixQPS:        cfg.RateLimit.PrefixQPS,
		PrefixBurst:      cfg.RateLimit.PrefixBurst,
		IPQPS:            cfg.RateLimit.IPQPS,
		IPBurst:          cfg.RateLimit.IPBurst,
	})

	// Create server components
	if r.db != nil && r.queryLog == nil {
		r.queryLog = NewQueryLogWriter(r.db, r.logger)
	}
	h := &QueryHandler{
		Logger:   r.logger,
		Resolver: resolver,
		Timeout:  4 * time.Second,
		Limiter:  limiter,
		DDNS:     ddnsProcessor,
		Stats:    r.stats,
		QueryLog: r.queryLog,
	}
	if zoneResolver != nil {
		h.ZoneTransfer = zoneResolver
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	r.logStartup(cfg, addr, maxConc, upPool)

	// Start servers
	udp := &UDPServer{Logger: r.logger, Handler: h, WorkersPerSocket: maxConc}
	var tcp *TCPServer
	if cfg.Server.EnableTCP {
		tcp = &TCPServer{Logger: r.logger, Handler: h}
	}

	var dot *DoTServer
	if cfg.Transport.DoT.Enabled {
		tlsCfg, err := loadTLSConfig(cfg.Transport.DoT.CertFile, cfg.Transport.DoT.KeyFile)
		if err != nil {
			if r.logger != nil {
				r.logger.Error("dot disabled: failed to load TLS material", "err", err)
			}
		} else {
			dot = &DoTServer{Logger: r.logger, Handler: h, TLSConfig: tlsCfg}
		}
	}

	var doq *DoQServer
	if cfg.Transport.DoQ.Enabled {
		tlsCfg, err := loadTLSConfig(cfg.Transport.DoQ.CertFile, cfg.Transport.DoQ.KeyFile)
		if err != nil {
			if r.logger != nil {
				r.logger.Error("doq disabled: failed to load TLS material", "err", err)
			}
		} else {
			doq = &DoQServer{Logger: r.logger, Handler: h, TLSConfig: tlsCfg}
		}
	}

	var doh *DoHServer
	if cfg.Transport.DoH.Enabled {
		doh = &DoHServer{Logger: r.logger, Handler: h}
		if cfg.Transport.DoH.CertFile != "" && cfg.Transport.DoH.KeyFile != "" {
			doh.CertFile = cfg.Transport.DoH.CertFile
			doh.KeyFile = cfg.Transport.DoH.KeyFile
		}
	}

	errCh := make(chan error, 5)
	go func() { errCh <- udp.Run(ctx, addr) }()
	if tcp != nil {
		go func() { errCh <- tcp.Run(ctx, addr) }()
	}
	if dot != nil {
		dotAddr := net.JoinHostPort(cfg.Transport.DoT.Host, strconv.Itoa(cfg.Transport.DoT.Port))
		go func() { errCh <- dot.Run(ctx, dotAddr) }()
	}
	if doq != nil {
		doqAddr := net.JoinHostPort(cfg.Transport.DoQ.Host, strconv.Itoa(cfg.Transport.DoQ.Port))
		go func() { errCh <- doq.Run(ctx, doqAddr) }()
	}
	if doh != nil {
		dohAddr := net.JoinHostPort(cfg.Transport.DoH.Host, strconv.Itoa(cfg.Transport.DoH.Port))
		go func() { errCh <- doh.Run(ctx, dohAddr) }()
	}

	// Wait for shutdown or error
	select {
	case <-ctx.Done():
		// shutdown requested via signal
	case err := <-errCh:
		if err != nil {
			cancelRun()
			return err
		}
	}

	// Graceful shutdown
	stopTimeout := 5 * time.Second
	_ = udp.Stop(stopTimeout)
	if tcp != nil {
		_ = tcp.Stop(stopTimeout)
	}
	if dot != nil {
		_ = dot.Stop(stopTimeout)
	}
	if doq != nil {
		_ = doq.Stop(stopTimeout)
	}
	if doh != nil {
		_ = doh.Stop(stopTimeout)
	}
	return nil
}

// configureRuntime sets GOMAXPROCS based on worker configuration.
// Workers can reduce but never increase parallelism beyond the default.
func (r *Runner) configureRuntime(cfg *config.Config) int {
	baseProcs := runtime.GOMAXPROCS(0)
	if baseProcs <= 0 {
		baseProcs = 1
	}
	desiredProcs := baseProcs

	if cfg.Server.Workers.Mode == config.WorkersFixed {
		w := cfg.Server.Workers.Value
		if w <= 0 {
			w = 1
		}
		if w < desiredProcs {
			desiredProcs = w
		}
	}

	prev := runtime.GOMAXPROCS(desiredProcs)
	actual := runtime.GOMAXPROCS(0)
	if r.logger != nil {
		r.logger.Info("runtime", "gomaxprocs", actual, "prev", prev, "base", baseProcs)
	}
	return actual
}

// calculateMaxConcurrency determines the maximum concurrent request handlers.
func (r *Runner) calculateMaxConcurrency(cfg *config.Config, procs int) int {
	maxConc := cfg.Server.MaxConcurrency
	if maxConc <= 0 {
		c := procs
		if c <= 0 {
			c = 1
		}
		maxConc = c * 256
		if maxConc > 2048 {
			maxConc = 2048
		}
		if maxConc < 1 {
			maxConc = 1
		}
	}
	return maxConc
}

// calculateUpstreamPoolSize determines the UDP connection pool size for upstream queries.
func (r *Runner) calculateUpstreamPoolSize(cfg *config.Config, maxConc int) int {
	upPool := cfg.Server.UpstreamSocketPoolSize
	if upPool <= 0 {
		upPool = maxConc
		if upPool < 64 {
			upPool = 64
		}
		if upPool > 1024 {
			upPool = 1024
		}
	}
	return upPool
}

// loadZones discovers and loads zone files from the configured location.
func (r *Runner) loadZones(cfg *config.Config) []*zone.Zone {
	zoneFiles := discoverZoneFiles(cfg.Zones.Directory, cfg.Zones.Files)
	zones := make([]*zone.Zone, 0, len(zoneFiles))

	for _, p := range zoneFiles {
		z, err := zone.LoadFile(p)
		if err != nil {
			if r.logger != nil {
				r.logger.Warn("failed to load zone file", "path", p, "err", err)
			}
			continue
		}
		zones = append(zones, z)
	}

	if len(zones) > 0 && r.logger != nil {
		r.logger.Info("zones enabled", "count", len(zones), "files", zoneFiles)
	}
	return zones
}

// loadZoneKeys attaches DNSSEC signing keys to each zone when signing is
// enabled. A PEM-encoded PKCS8 Ed25519 private key named
// "<key_directory>/<origin-without-trailing-dot>.key" is used if present;
// otherwise an ephemeral key is generated and logged, since a zone with
// signing enabled must always have an active key to answer with RRSIGs.
func (r *Runner) loadZoneKeys(cfg *config.Config, zones []*zone.Zone) {
	if !cfg.DNSSEC.Enabled {
		return
	}

	for _, z := range zones {
		key, source, err := r.loadOrGenerateZoneKey(cfg.DNSSEC.KeyDirectory, z.Origin)
		if err != nil {
			if r.logger != nil {
				r.logger.Error("dnssec: failed to provision zone key", "zone", z.Origin, "err", err)
			}
			continue
		}
		z.SetKeys([]dnssec.Key{key})
		if r.logger != nil {
			r.logger.Info("dnssec: zone key active", "zone", z.Origin, "algorithm", key.Algorithm, "key_tag", key.KeyTag, "source", source)
		}
	}
}

// loadOrGenerateZoneKey loads a PEM-encoded Ed25519 key for origin from
// keyDir, or generates a fresh one if keyDir is empty or the file is absent.
func (r *Runner) loadOrGenerateZoneKey(keyDir, origin string) (dnssec.Key, string, error) {
	if keyDir != "" {
		name := strings.TrimSuffix(origin, ".")
		if name == "" {
			name = "root"
		}
		path := filepath.Join(keyDir, name+".key")
		if raw, err := os.ReadFile(path); err == nil {
			key, err := decodeEd25519KeyPEM(raw)
			if err != nil {
				return dnssec.Key{}, "", err
			}
			return key, path, nil
		}
	}

	key, err := dnssec.GenerateEd25519Key(dnssecZoneKeyFlags)
	if err != nil {
		return dnssec.Key{}, "", err
	}
	return key, "generated", nil
}

// dnssecZoneKeyFlags marks generated keys as zone-signing keys (no
// dedicated KSK/ZSK separation; see DESIGN.md).
const dnssecZoneKeyFlags = 256

// decodeEd25519KeyPEM parses a PEM block containing a PKCS8-encoded Ed25519
// private key.
func decodeEd25519KeyPEM(raw []byte) (dnssec.Key, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return dnssec.Key{}, errDNSSECKeyFormat
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return dnssec.Key{}, err
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return dnssec.Key{}, errDNSSECKeyFormat
	}
	return dnssec.NewKey(dnssec.AlgorithmED25519, dnssecZoneKeyFlags, priv)
}

var errDNSSECKeyFormat = errors.New("dnssec: expected a PEM-encoded PKCS8 Ed25519 private key")

// buildDDNSProcessor wires a ddns.Processor over the loaded zones and the
// configured TSIG keyring. Returns nil when no zones are loaded, since there
// is nothing an UPDATE could ever target.
func (r *Runner) buildDDNSProcessor(cfg *config.Config, zoneResolver *resolvers.ZoneResolver) *ddns.Processor {
	if zoneResolver == nil {
		return nil
	}

	entries := make([]tsig.KeyConfig, 0, len(cfg.TSIG.Keys))
	for _, k := range cfg.TSIG.Keys {
		entries = append(entries, tsig.KeyConfig{Name: k.Name, Algorithm: k.Algorithm, Secret: k.Secret})
	}
	store, err := tsig.NewMemoryKeyStore(entries)
	if err != nil && r.logger != nil {
		r.logger.Warn("tsig: some configured keys were skipped", "err", err)
	}

	return &ddns.Processor{
		Zones:    zoneResolver,
		TSIGKeys: store,
		Logger:   r.logger,
	}
}

// buildResolverChain creates the resolver chain: zones (if any, unfiltered)
// -> static custom-DNS host/CNAME map (unfiltered) -> forwarding (filtered,
// if enabled). Per spec.md §4.8, a name answered by a locally hosted
// authoritative zone (step 4) or the static custom-DNS map (step 5) is never
// subject to the blocklist/policy tiers (step 6), so FilteringResolver wraps
// only the forwarding branch.
func (r *Runner) buildResolverChain(ctx context.Context, cfg *config.Config, zoneResolver *resolvers.ZoneResolver, upPool int) resolvers.Resolver {
	resList := make([]resolvers.Resolver, 0, 3)

	if zoneResolver != nil {
		resList = append(resList, zoneResolver)
	}

	customResolver, err := resolvers.NewCustomDNSResolver(cfg.CustomDNS.Hosts, cfg.CustomDNS.CNAMEs)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("custom DNS configuration invalid, starting empty", "error", err)
		}
		customResolver, _ = resolvers.NewCustomDNSResolver(nil, nil)
	}
	customDNS := resolvers.NewReloadableCustomDNSResolver(customResolver)
	r.mu.Lock()
	r.customDNS = customDNS
	r.mu.Unlock()
	resList = append(resList, customDNS)

	udpTimeout, _ := time.ParseDuration(cfg.Upstream.UDPTimeout)
	tcpTimeout, _ := time.ParseDuration(cfg.Upstream.TCPTimeout)
	fwd := resolvers.NewForwardingResolver(
		cfg.Upstream.Servers, upPool, 0, cfg.Server.TCPFallback,
		udpTimeout, tcpTimeout, cfg.Upstream.MaxRetries,
	)
	if len(cfg.Upstream.PerClient) > 0 {
		fwd.SetPerClientUpstreams(cfg.Upstream.PerClient)
	}
	if len(cfg.Upstream.ConditionalForward) > 0 {
		rules := make([]resolvers.ConditionalForwardRule, 0, len(cfg.Upstream.ConditionalForward))
		for _, e := range cfg.Upstream.ConditionalForward {
			rules = append(rules, resolvers.ConditionalForwardRule{
				Pattern:  e.Pattern,
				Priority: e.Priority,
				Servers:  e.Servers,
			})
		}
		fwd.SetConditionalForwards(rules)
	}
	if cfg.Cache.ServeStale {
		fwd.SetStaleServing(true, time.Duration(cfg.Cache.StaleMaxAgeSeconds)*time.Second)
	}
	if r.db != nil {
		mirror := dbCacheMirror{db: r.db}
		fwd.SetMirror(mirror)
		if n, err := fwd.WarmFromMirror(ctx); err != nil && r.logger != nil {
			r.logger.Warn("cache warm from mirror failed", "error", err)
		} else if r.logger != nil && n > 0 {
			r.logger.Info("cache warmed from mirror", "entries", n)
		}
	}
	// Wrap only the forwarding branch with filtering, so a query already
	// answered by zoneResolver above never reaches the blocklist/policy
	// tiers.
	var forwarding resolvers.Resolver = fwd
	if cfg.Filtering.Enabled {
		policy := r.filteringPolicy(cfg)
		filterResolver := resolvers.NewFilteringResolver(policy, fwd)
		filterResolver.SetBlockPage(blockPageConfig(cfg))
		forwarding = filterResolver
		if r.logger != nil {
			r.logger.Info("filtering enabled",
				"whitelist_count", len(cfg.Filtering.WhitelistDomains),
				"blacklist_count", len(cfg.Filtering.BlacklistDomains),
				"blocklists", len(cfg.Filtering.Blocklists),
				"block_page", cfg.BlockPage.Enabled,
			)
		}
	}
	resList = append(resList, forwarding)

	return &resolvers.Chained{Resolvers: resList}
}

// filteringPolicy returns the policy engine registered via SetPolicyEngine,
// building a fresh one from cfg if none was set.
func (r *Runner) filteringPolicy(cfg *config.Config) *filtering.PolicyEngine {
	r.mu.Lock()
	pe := r.policyEngine
	r.mu.Unlock()
	if pe != nil {
		return pe
	}
	return BuildPolicyEngine(cfg, r.logger)
}

// BuildPolicyEngine creates a PolicyEngine from configuration. Exported so a
// single engine instance can be shared between the DNS resolver chain and
// the admin API before the DNS server starts.
func BuildPolicyEngine(cfg *config.Config, logger *slog.Logger) *filtering.PolicyEngine {
	// Convert blocklist configs to BlocklistURLs
	blocklists := make([]filtering.BlocklistURL, 0, len(cfg.Filtering.Blocklists))
	for _, bl := range cfg.Filtering.Blocklists {
		format := filtering.FormatAuto
		switch bl.Format {
		case "adblock":
			format = filtering.FormatAdblock
		case "hosts":
			format = filtering.FormatHosts
		case "domains":
			format = filtering.FormatDomains
		}
		blocklists = append(blocklists, filtering.BlocklistURL{
			Name:   bl.Name,
			URL:    bl.URL,
			Format: format,
		})
	}

	// Parse refresh interval
	refreshInterval := 24 * time.Hour
	if cfg.Filtering.RefreshInterval != "" {
		if d, err := time.ParseDuration(cfg.Filtering.RefreshInterval); err == nil {
			refreshInterval = d
		}
	}

	engine := filtering.NewPolicyEngine(filtering.PolicyEngineConfig{
		Enabled:          cfg.Filtering.Enabled,
		BlockAction:      filtering.ActionBlock,
		LogBlocked:       cfg.Filtering.LogBlocked,
		LogAllowed:       cfg.Filtering.LogAllowed,
		WhitelistDomains: cfg.Filtering.WhitelistDomains,
		BlacklistDomains: cfg.Filtering.BlacklistDomains,
		BlocklistURLs:    blocklists,
		RefreshInterval:  refreshInterval,
	})
	engine.SetGlobalDisabled(cfg.Filtering.GloballyDisabled)
	if cfg.Filtering.TempDisableSeconds > 0 {
		engine.DisableTemporarily(time.Duration(cfg.Filtering.TempDisableSeconds) * time.Second)
	}

	for _, c := range cfg.Filtering.Clients {
		cp := filtering.NewClientPolicy(c.IP)
		cp.Groups = c.Groups
		cp.BlockingDisabled = c.BlockingDisabled
		for _, d := range c.Allowlist {
			cp.Allow.Add(d, false)
		}
		for _, d := range c.Blocklist {
			cp.Block.Add(d, false)
		}
		engine.SetClientPolicy(cp)
	}

	for _, g := range cfg.Filtering.Groups {
		gp := filtering.NewGroupPolicy(g.Name)
		gp.BlockingDisabled = g.BlockingDisabled
		for _, d := range g.Allowlist {
			gp.Allow.Add(d, false)
		}
		for _, d := range g.Blocklist {
			gp.Block.Add(d, false)
		}
		engine.SetGroupPolicy(gp)
	}

	if len(cfg.Filtering.RegexFilters) > 0 {
		regexes := make([]filtering.RegexFilter, 0, len(cfg.Filtering.RegexFilters))
		for _, rf := range cfg.Filtering.RegexFilters {
			kind := filtering.RegexBlock
			if rf.Kind == "allow" {
				kind = filtering.RegexAllow
			}
			regexes = append(regexes, filtering.RegexFilter{Pattern: rf.Pattern, Kind: kind, Enabled: rf.Enabled})
		}
		engine.SetRegexFilters(regexes)
	}

	if logger != nil {
		logger.Info("policy engine built",
			"enabled", cfg.Filtering.Enabled,
			"blocklists", len(blocklists),
			"clients", len(cfg.Filtering.Clients),
			"groups", len(cfg.Filtering.Groups),
			"regex_filters", len(cfg.Filtering.RegexFilters),
		)
	}
	return engine
}

// blockPageConfig converts the configured sink addresses into the
// resolver-level BlockPageConfig, skipping unparsable addresses so
// block-page mode degrades to plain NXDOMAIN for that family instead of
// failing startup.
func blockPageConfig(cfg *config.Config) resolvers.BlockPageConfig {
	bp := resolvers.BlockPageConfig{Enabled: cfg.BlockPage.Enabled}
	if addr, err := netip.ParseAddr(cfg.BlockPage.IPv4); err == nil {
		bp.IPv4 = addr
	}
	if addr, err := netip.ParseAddr(cfg.BlockPage.IPv6); err == nil {
		bp.IPv6 = addr
	}
	return bp
}

// logStartup logs server configuration at startup.
func (r *Runner) logStartup(cfg *config.Config, addr string, maxConc, upPool int) {
	if r.logger != nil {
		r.logger.Info(
			"dns listening",
			"addr", addr,
			"udp", true,
			"tcp", cfg.Server.EnableTCP,
			"dot", cfg.Transport.DoT.Enabled,
			"doq", cfg.Transport.DoQ.Enabled,
			"doh", cfg.Transport.DoH.Enabled,
			"upstreams", cfg.Upstream.Servers,
			"max_concurrency", maxConc,
			"upstream_pool", upPool,
		)
	}
}

// loadTLSConfig loads a certificate/key pair for the encrypted transports
// (DoT, DoQ). Returns an error if either path is empty or the pair cannot
// be loaded, since these listeners cannot run without TLS material.
func loadTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

// discoverZoneFiles returns zone files to load, either from explicit config
// or by scanning the zones directory.
func discoverZoneFiles(zonesDir string, explicit []string) []string {
	// Use explicit list if provided
	if len(explicit) > 0 {
		out := make([]string, 0, len(explicit))
		for _, p := range explicit {
			p = filepath.Clean(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out
	}

	// Otherwise scan directory
	if zonesDir == "" {
		zonesDir = "zones"
	}
	entries, err := os.ReadDir(zonesDir)
	if err != nil {
		return nil
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if name == "" {
			continue
		}
		files = append(files, filepath.Join(zonesDir, name))
	}
	sort.Strings(files)
	return files
}

// dbCacheMirror adapts *database.DB to resolvers.CacheMirror, translating
// between the storage layer's row type and the resolver's narrower view of
// it so the resolvers package never needs to know the database schema.
type dbCacheMirror struct {
	db *database.DB
}

func (m dbCacheMirror) CacheSet(ctx context.Context, qname string, qtype, qclass uint16, response []byte, expiresAt time.Time, entryType int) error {
	return m.db.CacheSet(ctx, database.CacheRecord{
		QName:     qname,
		QType:     qtype,
		QClass:    qclass,
		Response:  response,
		ExpiresAt: expiresAt,
		EntryType: entryType,
	})
}

func (m dbCacheMirror) CacheGetAll(ctx context.Context) ([]resolvers.MirroredCacheEntry, error) {
	recs, err := m.db.CacheGetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]resolvers.MirroredCacheEntry, 0, len(recs))
	for _, r := range recs {
		out = append(out, resolvers.MirroredCacheEntry{
			QName:     r.QName,
			QType:     r.QType,
			QClass:    r.QClass,
			Response:  r.Response,
			ExpiresAt: r.ExpiresAt,
		})
	}
	return out, nil
}
