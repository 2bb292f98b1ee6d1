package resolvers

import (
	"context"
	"net/netip"

	"github.com/jroosing/hydradns/internal/dns"
	"github.com/jroosing/hydradns/internal/filtering"
)

// BlockPageConfig configures the "return a sink IP" block response mode
// from spec.md §4.8 step 6, as an alternative to plain NXDOMAIN.
type BlockPageConfig struct {
	Enabled bool
	IPv4    netip.Addr
	IPv6    netip.Addr
}

// FilteringResolver applies domain filtering before passing queries to the next resolver.
// Blocked domains receive an NXDOMAIN response immediately.
//
// Filtering Decision Flow:
//
// The full per-client/per-group/regex decision tree lives in
// filtering.PolicyEngine.EvaluateForClient (spec.md §4.2); this resolver
// just extracts (qname, client-ip) from the request/context and acts on
// the verdict:
//
//  1. Blocked + block-page mode + qtype ∈ {A, AAAA} → sink IP answer
//  2. Blocked, otherwise → NXDOMAIN
//  3. Allowed → pass through to next resolver
//
// Per spec.md §4.8, filtering (C2) gates only the forwarding/upstream
// path (C4): a name answered by a locally hosted authoritative zone is
// never subject to the blocklist/policy tiers. Callers must therefore wrap
// only the forwarding resolver with FilteringResolver, placing it after
// (not in front of) any ZoneResolver in the chain.
type FilteringResolver struct {
	policy    *filtering.PolicyEngine
	next      Resolver
	blockPage BlockPageConfig
}

// NewFilteringResolver creates a filtering resolver with the given policy engine.
// The next resolver is called for domains that are not blocked.
func NewFilteringResolver(policy *filtering.PolicyEngine, next Resolver) *FilteringResolver {
	return &FilteringResolver{
		policy: policy,
		next:   next,
	}
}

// SetBlockPage configures the sink-IP block response mode.
func (f *FilteringResolver) SetBlockPage(cfg BlockPageConfig) {
	f.blockPage = cfg
}

// Resolve checks the domain against the filtering policy.
// Blocked domains return NXDOMAIN (or a configured sink IP) immediately;
// allowed domains pass through to the next resolver.
func (f *FilteringResolver) Resolve(ctx context.Context, req dns.Packet, reqBytes []byte) (Result, error) {
	// Extract the query name
	if len(req.Questions) == 0 {
		// No question, pass through
		return f.next.Resolve(ctx, req, reqBytes)
	}

	q := req.Questions[0]
	clientIP := ClientIPFromContext(ctx)
	result := f.policy.EvaluateForClient(q.Name, clientIP)

	switch result.Action {
	case filtering.ActionBlock:
		if f.blockPage.Enabled {
			if resp, ok := f.buildBlockPageResponse(req, q); ok {
				respBytes, err := resp.Marshal()
				if err != nil {
					return Result{}, err
				}
				return Result{ResponseBytes: respBytes, Source: "filtered-blockpage", Blocked: true, Reason: result.Reason}, nil
			}
		}
		resp := buildBlockedResponse(req)
		respBytes, err := resp.Marshal()
		if err != nil {
			return Result{}, err
		}
		return Result{
			ResponseBytes: respBytes,
			Source:        "filtered-blocked",
			Blocked:       true,
			Reason:        result.Reason,
		}, nil

	case filtering.ActionLog:
		// Log action allows the query but it was logged by the policy engine
		// Fall through to next resolver
		fallthrough

	case filtering.ActionAllow:
		// Pass through to next resolver
		return f.next.Resolve(ctx, req, reqBytes)

	default:
		// Unknown action, allow by default
		return f.next.Resolve(ctx, req, reqBytes)
	}
}

// buildBlockPageResponse returns a synthesized A/AAAA answer pointing at
// the configured sink address. ok is false for any other qtype, in which
// case the caller should fall back to plain NXDOMAIN.
func (f *FilteringResolver) buildBlockPageResponse(req dns.Packet, q dns.Question) (dns.Packet, bool) {
	var addr netip.Addr
	switch dns.RecordType(q.Type) {
	case dns.TypeA:
		addr = f.blockPage.IPv4
	case dns.TypeAAAA:
		addr = f.blockPage.IPv6
	default:
		return dns.Packet{}, false
	}
	if !addr.IsValid() {
		return dns.Packet{}, false
	}

	header := dns.NewRRHeader(q.Name, dns.RecordClass(q.Class), 300)
	answer := dns.NewIPRecord(header, addr.AsSlice())

	return dns.Packet{
		Header: dns.Header{
			ID:    req.Header.ID,
			Flags: buildCustomDNSFlags(req.Header.Flags),
		},
		Questions: []dns.Question{q},
		Answers:   []dns.Record{answer},
	}, true
}

// Close releases resources.
func (f *FilteringResolver) Close() error {
	var err error
	if f.policy != nil {
		err = f.policy.Close()
	}
	if f.next != nil {
		if nextErr := f.next.Close(); nextErr != nil && err == nil {
			err = nextErr
		}
	}
	return err
}

// Policy returns the underlying policy engine for stats/management.
func (f *FilteringResolver) Policy() *filtering.PolicyEngine {
	return f.policy
}

// buildBlockedResponse creates an NXDOMAIN response for a blocked domain.
func buildBlockedResponse(req dns.Packet) dns.Packet {
	return dns.Packet{
		Header: dns.Header{
			ID:    req.Header.ID,
			Flags: buildBlockedFlags(req.Header.Flags),
		},
		Questions: req.Questions,
		Answers:   nil,
	}
}

// buildBlockedFlags creates response flags for NXDOMAIN.
func buildBlockedFlags(reqFlags uint16) uint16 {
	// Set QR (response), copy opcode, set RA (recursion available)
	// Set RCODE to NXDOMAIN (3)
	flags := uint16(1 << 15)   // QR = 1 (response)
	flags |= reqFlags & 0x7800 // Copy opcode (bits 11-14)
	if reqFlags&(1<<8) != 0 {  // RD bit was set
		flags |= 1 << 8 // RD = 1
		flags |= 1 << 7 // RA = 1 (recursion available)
	}
	flags |= uint16(dns.RCodeNXDomain) // RCODE = NXDOMAIN (3)
	return flags
}
