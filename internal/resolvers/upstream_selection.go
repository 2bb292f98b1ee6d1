package resolvers

import (
	"context"
	"strings"

	"github.com/jroosing/hydradns/internal/dns"
)

// ConditionalForwardRule routes queries under a domain to a specific
// upstream list instead of the global one (spec.md §4.4 Selection).
// Pattern is either a bare domain ("corp.internal") or a wildcard of the
// form "*.corp.internal"; both match the domain itself and every
// subdomain, the same way the global upstream list always does — the
// wildcard form exists only so the admin surface can express "everything
// under X" without also implying "X itself" has its own distinct rule.
type ConditionalForwardRule struct {
	Pattern  string
	Priority int
	Servers  []string
}

// SetPerClientUpstreams installs the per-client upstream-list overrides,
// replacing any previous set atomically. A nil or empty map disables the
// per-client tier entirely.
func (f *ForwardingResolver) SetPerClientUpstreams(byClient map[string][]string) {
	f.selectionMu.Lock()
	f.perClientUpstreams = byClient
	f.selectionMu.Unlock()
}

// SetConditionalForwards installs the conditional-forward rule set,
// replacing any previous set atomically.
func (f *ForwardingResolver) SetConditionalForwards(rules []ConditionalForwardRule) {
	f.selectionMu.Lock()
	f.conditionalForwards = rules
	f.selectionMu.Unlock()
}

// resolveUpstreamList implements spec.md §4.4's selection order: a
// client-specific list wins outright; otherwise the longest-suffix
// conditional-forward match (ties broken by higher priority); otherwise
// the global list.
func (f *ForwardingResolver) resolveUpstreamList(ctx context.Context, qname string) []string {
	clientIP := ClientIPFromContext(ctx)

	f.selectionMu.RLock()
	perClient := f.perClientUpstreams
	rules := f.conditionalForwards
	f.selectionMu.RUnlock()

	if clientIP != "" && len(perClient) > 0 {
		if list, ok := perClient[clientIP]; ok && len(list) > 0 {
			return capUpstreamList(list)
		}
	}

	if qname != "" && len(rules) > 0 {
		if rule, ok := matchConditionalForward(rules, qname); ok && len(rule.Servers) > 0 {
			return capUpstreamList(rule.Servers)
		}
	}

	return f.upstreams
}

// matchConditionalForward finds the rule whose pattern is the longest
// suffix match of name. Ties (two rules matching the same base domain
// length) are broken by the higher admin-assigned Priority.
func matchConditionalForward(rules []ConditionalForwardRule, qname string) (ConditionalForwardRule, bool) {
	name := dns.NormalizeName(qname)

	var best ConditionalForwardRule
	bestLen := -1
	found := false

	for _, r := range rules {
		base := dns.NormalizeName(strings.TrimPrefix(r.Pattern, "*."))
		if base == "" {
			continue
		}
		if name != base && !strings.HasSuffix(name, "."+base) {
			continue
		}
		if len(base) > bestLen || (len(base) == bestLen && r.Priority > best.Priority) {
			best = r
			bestLen = len(base)
			found = true
		}
	}

	return best, found
}

// capUpstreamList truncates an override list to the same fan-out bound
// the global list is constructed with.
func capUpstreamList(list []string) []string {
	if len(list) > maxUpstreams {
		return list[:maxUpstreams]
	}
	return list
}
