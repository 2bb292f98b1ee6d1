package server

import (
	"fmt"
	"net/netip"
	"sync"
	"time"
)

// This file implements pre-parse admission control using sliding-window
// rate limiting (spec.md §4.7: "Sliding window of length window-ms. Each
// client has a counter; on arrival, drop expired windows for all clients
// periodically. If count < max, increment and admit; else reject.").
//
// Rate limiting is applied at three levels:
//   - Global: Overall server-wide query rate limit
//   - Prefix: Per-network prefix limit (/24 for IPv4, /64 for IPv6)
//   - IP: Per source IP limit
//
// All three levels share the same windowed-counter idiom; a request must
// pass all three to be allowed.

// RateLimiter combines global, prefix, and per-IP rate limiters.
// A request must pass all three levels to be allowed.
type RateLimiter struct {
	global *SlidingWindowRateLimiter // Server-wide rate limit
	prefix *SlidingWindowRateLimiter // Per network prefix rate limit
	ip     *SlidingWindowRateLimiter // Per source IP rate limit
}

// RateLimitSettings configures the three-tier RateLimiter. It mirrors
// config.RateLimitConfig field-for-field so callers can pass the loaded
// configuration straight through.
//
// QPS fields are carried for the startup log and for config round-tripping;
// the sliding window itself admits up to Burst requests per WindowMs, so a
// tier is disabled by setting its QPS or Burst to zero.
type RateLimitSettings struct {
	WindowMs         int
	CleanupSeconds   float64
	MaxIPEntries     int
	MaxPrefixEntries int
	GlobalQPS        float64
	GlobalBurst      int
	PrefixQPS        float64
	PrefixBurst      int
	IPQPS            float64
	IPBurst          int
}

// NewRateLimiter creates a RateLimiter configured by settings, per spec.md
// §4.7's sliding-window admission control.
func NewRateLimiter(settings RateLimitSettings) *RateLimiter {
	window := time.Duration(settings.WindowMs) * time.Millisecond
	if window <= 0 {
		window = time.Second
	}
	cleanupInterval := time.Duration(settings.CleanupSeconds * float64(time.Second))
	if cleanupInterval <= 0 {
		cleanupInterval = 60 * time.Second
	}

	return &RateLimiter{
		global: NewSlidingWindowRateLimiter(SlidingWindowConfig{Window: window, Max: settings.GlobalBurst, CleanupInterval: cleanupInterval, MaxEntries: 1}),
		prefix: NewSlidingWindowRateLimiter(SlidingWindowConfig{Window: window, Max: settings.PrefixBurst, CleanupInterval: cleanupInterval, MaxEntries: settings.MaxPrefixEntries}),
		ip:     NewSlidingWindowRateLimiter(SlidingWindowConfig{Window: window, Max: settings.IPBurst, CleanupInterval: cleanupInterval, MaxEntries: settings.MaxIPEntries}),
	}
}

// Allow checks if a request from srcIP should be allowed.
// Returns true if the request passes all rate limit levels.
func (r *RateLimiter) Allow(srcIP string) bool {
	if r == nil {
		return true
	}
	// Check in order: global -> prefix -> IP
	// Fail fast: if global limit is exceeded, don't check others
	if !r.global.Allow("*") {
		return false
	}
	if !r.prefix.Allow(prefixKey(srcIP)) {
		return false
	}
	if !r.ip.Allow(srcIP) {
		return false
	}
	return true
}

// AllowAddr checks if a request from the given netip.Addr should be allowed.
// This is a faster path that avoids string allocation for the IP address.
func (r *RateLimiter) AllowAddr(ip netip.Addr) bool {
	if r == nil {
		return true
	}
	// Check in order: global -> prefix -> IP
	if !r.global.Allow("*") {
		return false
	}
	// For prefix, extract the prefix key without string allocation
	prefixKey := prefixKeyFromAddr(ip)
	if !r.prefix.Allow(prefixKey) {
		return false
	}
	// For IP, use the string representation (unavoidable for map key)
	ipKey := ip.String()
	if !r.ip.Allow(ipKey) {
		return false
	}
	return true
}

// prefixKeyFromAddr returns the prefix key for a netip.Addr.
// Uses /24 for IPv4 and /64 for IPv6.
func prefixKeyFromAddr(ip netip.Addr) string {
	if ip.Is4() {
		prefix, _ := ip.Prefix(24)
		return prefix.String()
	}
	prefix, _ := ip.Prefix(64)
	return prefix.String()
}

// FormatRateLimitsLog returns a human-readable summary of the rate limit
// configuration, suitable for a single startup log line.
func FormatRateLimitsLog(settings RateLimitSettings) string {
	fmtLimiter := func(name string, qps float64, burst int) string {
		if qps <= 0 || burst <= 0 {
			return name + "=disabled"
		}
		return fmt.Sprintf("%s=%gqps/%d", name, qps, burst)
	}

	return fmt.Sprintf(
		"%s %s %s cleanup_s=%g max_ip=%d max_prefix=%d",
		fmtLimiter("global", settings.GlobalQPS, settings.GlobalBurst),
		fmtLimiter("prefix", settings.PrefixQPS, settings.PrefixBurst),
		fmtLimiter("ip", settings.IPQPS, settings.IPBurst),
		settings.CleanupSeconds,
		settings.MaxIPEntries,
		settings.MaxPrefixEntries,
	)
}

// SlidingWindowConfig configures a SlidingWindowRateLimiter.
type SlidingWindowConfig struct {
	Window          time.Duration // Length of the admission window
	Max             int           // Maximum admitted requests per window
	CleanupInterval time.Duration // How often to clean up stale entries
	MaxEntries      int           // Maximum tracked keys (prevents memory exhaustion)
}

// windowCounter is one client's current window and how many requests it has
// admitted within it.
type windowCounter struct {
	windowStart time.Time
	count       int
}

// SlidingWindowRateLimiter implements the fixed-window counter approximation
// of sliding-window rate limiting described in spec.md §4.7: each key owns a
// `{window-start, count}` pair; a request arriving after the window has
// elapsed starts a fresh window instead of carrying over the count, and a
// request is admitted iff count < max within the current window.
type SlidingWindowRateLimiter struct {
	window          time.Duration
	max             int
	cleanupInterval time.Duration
	maxEntries      int

	mu          sync.Mutex
	lastCleanup time.Time
	counters    map[string]windowCounter
}

// NewSlidingWindowRateLimiter creates a new rate limiter with the given configuration.
func NewSlidingWindowRateLimiter(cfg SlidingWindowConfig) *SlidingWindowRateLimiter {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 1
	}
	window := cfg.Window
	if window <= 0 {
		window = time.Second
	}
	ci := cfg.CleanupInterval
	if ci <= 0 {
		ci = 60 * time.Second
	}
	return &SlidingWindowRateLimiter{
		window:          window,
		max:             cfg.Max,
		cleanupInterval: ci,
		maxEntries:      maxEntries,
		lastCleanup:     time.Now(),
		counters:        map[string]windowCounter{},
	}
}

// Allow checks if a request for the given key should be admitted under the
// current window, incrementing its counter if so.
//
// Rate limiting is disabled if max <= 0.
func (l *SlidingWindowRateLimiter) Allow(key string) bool {
	if l == nil || l.max <= 0 {
		return true
	}

	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	// Periodic cleanup of stale windows across all clients, per spec.md
	// §4.7 ("drop expired windows for all clients periodically").
	if now.Sub(l.lastCleanup) > l.cleanupInterval {
		l.cleanupLocked(now)
	}

	c, exists := l.counters[key]
	if !exists {
		if len(l.counters) >= l.maxEntries {
			l.cleanupLocked(now)
			if len(l.counters) >= l.maxEntries {
				return false
			}
		}
		l.counters[key] = windowCounter{windowStart: now, count: 1}
		return true
	}

	if now.Sub(c.windowStart) >= l.window {
		// Window has elapsed: start a fresh window instead of carrying the
		// count over.
		l.counters[key] = windowCounter{windowStart: now, count: 1}
		return true
	}

	if c.count < l.max {
		c.count++
		l.counters[key] = c
		return true
	}
	return false
}

// cleanupLocked removes entries whose window has expired and not been
// touched since. Must be called with l.mu held.
func (l *SlidingWindowRateLimiter) cleanupLocked(now time.Time) {
	for k, c := range l.counters {
		if now.Sub(c.windowStart) >= l.window {
			delete(l.counters, k)
		}
	}
	l.lastCleanup = now
}

// prefixKey converts an IP address to a network prefix key.
// IPv4 addresses are converted to /24 prefixes.
// IPv6 addresses are converted to /64 prefixes.
func prefixKey(ip string) string {
	// Scan once to determine IP type and find dot positions
	var dotPositions [3]int
	dotCount := 0
	hasColon := false

	for i := 0; i < len(ip); i++ {
		switch ip[i] {
		case '.':
			if dotCount < 3 {
				dotPositions[dotCount] = i
				dotCount++
			}
		case ':':
			hasColon = true
		}
	}

	// Fast path for IPv4 (has dots, no colons)
	if dotCount >= 3 && !hasColon {
		// Extract first 3 octets without allocation via Split
		return "v4:" + ip[:dotPositions[2]] + ".0/24"
	}

	// IPv6 handling
	if hasColon {
		addr, err := netip.ParseAddr(ip)
		if err == nil {
			pfx, err := addr.Prefix(64)
			if err == nil {
				return "v6:" + pfx.Masked().Addr().String() + "/64"
			}
		}
		return "v6:" + ip
	}

	// Unknown format
	return "ip:" + ip
}

