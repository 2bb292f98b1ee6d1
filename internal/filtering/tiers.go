package filtering

import (
	"regexp"
	"time"
)

// maxRegexPatternLength bounds regex filter patterns at ingestion, per
// spec.md §4.2 ("patterns are validated on ingestion (max length...)").
// RE2 (Go's regexp package) is linear-time, so this is a belt-and-braces
// size cap rather than the primary ReDoS defense.
const maxRegexPatternLength = 512

// RegexKind identifies whether a regex filter allows or blocks matches.
type RegexKind string

const (
	RegexAllow RegexKind = "allow"
	RegexBlock RegexKind = "block"
)

// RegexFilter is a single regex-based filter rule.
type RegexFilter struct {
	Pattern string
	Kind    RegexKind
	Enabled bool
}

// compiledRegex pairs a RegexFilter with its compiled matcher. A filter
// that fails to compile is dropped silently by SetRegexFilters, so it never
// reaches evaluation.
type compiledRegex struct {
	filter RegexFilter
	re     *regexp.Regexp
}

// ClientPolicy holds per-client overrides for filtering decisions.
type ClientPolicy struct {
	IP               string
	Groups           []string
	BlockingDisabled bool
	Allow            *DomainTrie
	Block            *DomainTrie
}

// GroupPolicy holds per-group overrides shared by the clients assigned to it.
type GroupPolicy struct {
	Name             string
	BlockingDisabled bool
	Allow            *DomainTrie
	Block            *DomainTrie
}

// NewClientPolicy returns an empty client policy ready for list population.
func NewClientPolicy(ip string) *ClientPolicy {
	return &ClientPolicy{IP: ip, Allow: NewDomainTrie(), Block: NewDomainTrie()}
}

// NewGroupPolicy returns an empty group policy ready for list population.
func NewGroupPolicy(name string) *GroupPolicy {
	return &GroupPolicy{Name: name, Allow: NewDomainTrie(), Block: NewDomainTrie()}
}

// SetGlobalDisabled toggles the admin-controlled global disable switch
// (spec.md §4.2 tier 1).
func (pe *PolicyEngine) SetGlobalDisabled(disabled bool) {
	pe.tiersMu.Lock()
	pe.globalDisabled = disabled
	pe.tiersMu.Unlock()
}

// DisableTemporarily suspends all blocking for the given duration, also
// tier 1 ("temporary-disable window active").
func (pe *PolicyEngine) DisableTemporarily(d time.Duration) {
	pe.tiersMu.Lock()
	pe.tempDisableUntil = time.Now().Add(d)
	pe.tiersMu.Unlock()
}

// SetClientPolicy installs or replaces a client's policy.
func (pe *PolicyEngine) SetClientPolicy(cp *ClientPolicy) {
	pe.tiersMu.Lock()
	pe.clients[cp.IP] = cp
	pe.tiersMu.Unlock()
}

// SetGroupPolicy installs or replaces a group's policy.
func (pe *PolicyEngine) SetGroupPolicy(gp *GroupPolicy) {
	pe.tiersMu.Lock()
	pe.groups[gp.Name] = gp
	pe.tiersMu.Unlock()
}

// SetRegexFilters atomically replaces the full regex filter set. Patterns
// that are empty, too long, or fail to compile are skipped rather than
// rejecting the whole batch.
func (pe *PolicyEngine) SetRegexFilters(filters []RegexFilter) {
	compiled := make([]*compiledRegex, 0, len(filters))
	for _, f := range filters {
		if f.Pattern == "" || len(f.Pattern) > maxRegexPatternLength {
			continue
		}
		re, err := regexp.Compile(f.Pattern)
		if err != nil {
			continue
		}
		compiled = append(compiled, &compiledRegex{filter: f, re: re})
	}

	pe.tiersMu.Lock()
	pe.regexes = compiled
	pe.tiersMu.Unlock()
}

// EvaluateForClient runs the full per-client decision tree from spec.md
// §4.2 and returns whether `domain` should be blocked for `clientIP`.
// clientIP may be empty when the caller has no client identity (e.g. a
// locally originated lookup); tiers 2/3/5/6/9/10 are then simply skipped.
func (pe *PolicyEngine) EvaluateForClient(domain, clientIP string) PolicyResult {
	pe.queriesTotal.Add(1)

	if !pe.enabled {
		pe.queriesAllowed.Add(1)
		return PolicyResult{Action: ActionAllow}
	}

	pe.tiersMu.RLock()
	globalDisabled := pe.globalDisabled
	tempDisabled := !pe.tempDisableUntil.IsZero() && time.Now().Before(pe.tempDisableUntil)
	client := pe.clients[clientIP]
	var clientGroups []*GroupPolicy
	if client != nil {
		for _, g := range client.Groups {
			if gp := pe.groups[g]; gp != nil {
				clientGroups = append(clientGroups, gp)
			}
		}
	}
	regexes := pe.regexes
	pe.tiersMu.RUnlock()

	// Tier 1: global disable or temporary-disable window.
	if globalDisabled || tempDisabled {
		pe.queriesAllowed.Add(1)
		return PolicyResult{Action: ActionAllow}
	}

	// Tier 2: per-client blocking disabled.
	if client != nil && client.BlockingDisabled {
		pe.queriesAllowed.Add(1)
		return PolicyResult{Action: ActionAllow}
	}

	// Tier 3: any of the client's groups has blocking disabled.
	for _, g := range clientGroups {
		if g.BlockingDisabled {
			pe.queriesAllowed.Add(1)
			return PolicyResult{Action: ActionAllow}
		}
	}

	// Tier 4: global allowlist.
	if pe.whitelist.Contains(domain) {
		pe.queriesAllowed.Add(1)
		return PolicyResult{Action: ActionAllow, Rule: domain, ListName: "whitelist"}
	}

	// Tier 5: per-client allowlist.
	if client != nil && client.Allow.Contains(domain) {
		pe.queriesAllowed.Add(1)
		return PolicyResult{Action: ActionAllow, Rule: domain, ListName: "client-allowlist"}
	}

	// Tier 6: any group allowlist.
	for _, g := range clientGroups {
		if g.Allow.Contains(domain) {
			pe.queriesAllowed.Add(1)
			return PolicyResult{Action: ActionAllow, Rule: domain, ListName: "group-allowlist:" + g.Name}
		}
	}

	// Tier 7/8: regex filters, allow before block.
	for _, cr := range regexes {
		if cr.filter.Enabled && cr.filter.Kind == RegexAllow && cr.re.MatchString(domain) {
			pe.queriesAllowed.Add(1)
			return PolicyResult{Action: ActionAllow, Rule: cr.filter.Pattern, ListName: "regex-allow"}
		}
	}
	for _, cr := range regexes {
		if cr.filter.Enabled && cr.filter.Kind == RegexBlock && cr.re.MatchString(domain) {
			pe.recordBlocked(domain)
			return PolicyResult{Action: pe.blockAction, Rule: cr.filter.Pattern, ListName: "regex-block", Reason: ReasonRegexFilter}
		}
	}

	// Tier 9: per-client blocklist.
	if client != nil && client.Block.Contains(domain) {
		pe.recordBlocked(domain)
		return PolicyResult{Action: pe.blockAction, Rule: domain, ListName: "client-blocklist", Reason: ReasonClientBlocklist}
	}

	// Tier 10: any group blocklist.
	for _, g := range clientGroups {
		if g.Block.Contains(domain) {
			pe.recordBlocked(domain)
			return PolicyResult{Action: pe.blockAction, Rule: domain, ListName: "group-blocklist:" + g.Name, Reason: ReasonGroupBlocklist}
		}
	}

	// Tier 11: global blocklist (name or parent domain).
	if pe.blacklist.Contains(domain) {
		pe.recordBlocked(domain)
		return PolicyResult{Action: pe.blockAction, Rule: domain, ListName: "blacklist", Reason: ReasonBlocklist}
	}

	// Tier 12: default allow.
	pe.queriesAllowed.Add(1)
	return PolicyResult{Action: ActionAllow}
}

// recordBlocked updates stats and logs a block decision consistently
// across tiers 8-11.
func (pe *PolicyEngine) recordBlocked(domain string) {
	pe.queriesBlocked.Add(1)
	if pe.logBlocked {
		pe.logger.Info("Domain blocked", "domain", domain)
	}
}
