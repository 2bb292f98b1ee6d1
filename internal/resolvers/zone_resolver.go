package resolvers

import (
	"context"
	"errors"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/jroosing/hydradns/internal/dns"
	"github.com/jroosing/hydradns/internal/dnssec"
	"github.com/jroosing/hydradns/internal/zone"
)

// ZoneResolver answers DNS queries from locally configured zone files.
// It is authoritative for all configured zones.
type ZoneResolver struct {
	Zones []*zone.Zone
}

// NewZoneResolver creates a ZoneResolver for the given zones.
func NewZoneResolver(zones []*zone.Zone) *ZoneResolver {
	// Sort zones by origin length descending to ensure most specific match
	sorted := make([]*zone.Zone, len(zones))
	copy(sorted, zones)
	sort.Slice(sorted, func(i, j int) bool {
		return len(sorted[i].Origin) > len(sorted[j].Origin)
	})
	return &ZoneResolver{Zones: sorted}
}

// Close is a no-op for ZoneResolver (satisfies Resolver interface).
func (z *ZoneResolver) Close() error { return nil }

// Resolve answers a DNS query from local zone data.
// Returns an error if the query name is not within any configured zone.
func (z *ZoneResolver) Resolve(_ context.Context, req dns.Packet, _ []byte) (Result, error) {
	if len(z.Zones) == 0 {
		return Result{}, errors.New("no zones configured")
	}
	if len(req.Questions) == 0 {
		return Result{}, errors.New("no question")
	}

	q := req.Questions[0]
	match := z.findMatchingZone(q.Name)
	if match == nil {
		return Result{}, errors.New("name not in any configured zone")
	}

	if q.Type == uint16(dns.TypeDNSKEY) {
		return z.buildDNSKEYResponse(req, q, match)
	}

	return z.buildResponse(req, q, match)
}

// buildDNSKEYResponse answers a DNSKEY query with the zone's active signing
// keys, per spec.md §4.5. A zone with no configured keys answers NOERROR
// with an empty answer section, same as any other name with no records of
// the requested type.
func (z *ZoneResolver) buildDNSKEYResponse(req dns.Packet, q dns.Question, match *zone.Zone) (Result, error) {
	keys := match.ActiveKeys()
	answers := make([]dns.Record, 0, len(keys))
	for _, k := range keys {
		answers = append(answers, k.DNSKEYRecord(q.Name, match.DefaultTTL))
	}

	flags := z.buildResponseFlags(req.Header.Flags, match, q, len(answers) > 0)
	authorities := z.buildAuthoritySection(match, q, len(answers) == 0)

	resp := dns.Packet{
		Header:      dns.Header{ID: req.Header.ID, Flags: flags},
		Questions:   []dns.Question{q},
		Answers:     answers,
		Authorities: authorities,
	}
	b, err := resp.Marshal()
	if err != nil {
		return Result{}, err
	}
	return Result{ResponseBytes: b, Source: "zone"}, nil
}

// findMatchingZone finds the zone that contains the given name.
func (z *ZoneResolver) findMatchingZone(qname string) *zone.Zone {
	for _, cand := range z.Zones {
		if cand.ContainsName(qname) {
			return cand
		}
	}
	return nil
}

// FindZoneForUpdate resolves the zone named by a DDNS UPDATE message's Zone
// section, satisfying internal/ddns.ZoneLookup. Zones are pre-sorted by
// origin length descending, so this returns the most specific match.
func (z *ZoneResolver) FindZoneForUpdate(name string) (*zone.Zone, bool) {
	match := z.findMatchingZone(name)
	if match == nil {
		return nil, false
	}
	return match, true
}

// buildResponse constructs a DNS response for the given question from zone data.
func (z *ZoneResolver) buildResponse(req dns.Packet, q dns.Question, match *zone.Zone) (Result, error) {
	answers := z.lookupRecords(match, q.Name, q.Type, q.Class)
	additionals := make([]dns.Record, 0)

	// Handle CNAME chasing for A/AAAA queries
	if len(answers) == 0 && isAddressQuery(q.Type) {
		answers, additionals = z.chaseCNAME(match, q)
	}

	flags := z.buildResponseFlags(req.Header.Flags, match, q, len(answers) > 0)
	authorities := z.buildAuthoritySection(match, q, len(answers) == 0)

	if len(answers) > 0 && wantsDNSSEC(req) {
		additionals = append(additionals, rrsigsFor(answers, match, match.Origin)...)
	}

	resp := dns.Packet{
		Header:      dns.Header{ID: req.Header.ID, Flags: flags},
		Questions:   []dns.Question{q},
		Answers:     answers,
		Authorities: authorities,
		Additionals: additionals,
	}

	b, err := resp.Marshal()
	if err != nil {
		return Result{}, err
	}
	return Result{ResponseBytes: b, Source: "zone"}, nil
}

// lookupRecords retrieves matching records from the zone.
func (z *ZoneResolver) lookupRecords(match *zone.Zone, qname string, qtype, qclass uint16) []dns.Record {
	answers := make([]dns.Record, 0)
	for _, rr := range match.Lookup(qname, qtype, qclass) {
		answers = append(answers, zoneRecordToDNSRecord(rr))
	}
	return answers
}

// isAddressQuery returns true for A or AAAA queries.
func isAddressQuery(qtype uint16) bool {
	return qtype == uint16(dns.TypeA) || qtype == uint16(dns.TypeAAAA)
}

// chaseCNAME follows CNAME records when no direct answer exists.
// If a CNAME exists, it returns the CNAME as the answer and looks up
// the target name for the additional section.
func (z *ZoneResolver) chaseCNAME(match *zone.Zone, q dns.Question) (answers, additionals []dns.Record) {
	cnames := match.Lookup(q.Name, uint16(dns.TypeCNAME), q.Class)
	if len(cnames) == 0 {
		return nil, nil
	}

	rr := cnames[0]
	target := rr.RData.(string)
	h := dns.NewRRHeader(rr.Name, dns.RecordClass(rr.Class), rr.TTL)
	answers = append(answers, dns.NewCNAMERecord(h, target))

	for _, a := range match.Lookup(target, q.Type, q.Class) {
		additionals = append(additionals, zoneRecordToDNSRecord(a))
	}
	return answers, additionals
}

// buildResponseFlags constructs the DNS header flags for the response.
//
// Flag construction for authoritative zone responses:
//   - QR (bit 15): Set to 1 (this is a response)
//   - AA (bit 10): Set to 1 (authoritative answer)
//   - RD (bit 8): Preserved from request (recursion desired)
//   - RCODE (bits 3-0): NOERROR or NXDOMAIN based on lookup result
func (z *ZoneResolver) buildResponseFlags(reqFlags uint16, match *zone.Zone, q dns.Question, hasAnswer bool) uint16 {
	// Start with request flags, then set response bits
	flags := reqFlags

	// Set QR (response) and AA (authoritative)
	flags |= dns.QRFlag | dns.AAFlag

	// Preserve RD if set in request
	flags |= (reqFlags & dns.RDFlag)

	// Determine RCODE
	if !hasAnswer {
		nameExists := match.NameExists(q.Name, q.Class)
		rcode := uint16(dns.RCodeNoError)
		if !nameExists {
			rcode = uint16(dns.RCodeNXDomain)
		}
		// Clear existing RCODE bits and set new value
		flags = (flags &^ dns.RCodeMask) | (rcode & dns.RCodeMask)
	}

	return flags
}

// buildAuthoritySection returns SOA record for negative responses.
func (z *ZoneResolver) buildAuthoritySection(match *zone.Zone, q dns.Question, isNegative bool) []dns.Record {
	if !isNegative {
		return nil
	}

	authorities := make([]dns.Record, 0)
	if soa := match.SOA(q.Class); soa != nil {
		authorities = append(authorities, zoneRecordToDNSRecord(*soa))
	}
	return authorities
}

// wantsDNSSEC reports whether the request carries EDNS0 with the DO
// (DNSSEC OK) bit set, per RFC 6891/4035.
func wantsDNSSEC(req dns.Packet) bool {
	opt := dns.ExtractOPT(req.Additionals)
	return opt != nil && opt.DNSSECOk
}

// rrsigsFor signs every distinct RRset in answers (grouped by owner name
// and type, since a single response can contain more than one RRset when
// CNAME chasing is involved) using the zone's active ZSK, and returns one
// RRSIG per RRset for the caller to place in the additional section, per
// spec.md §4.5 ("The RRSIG is appended in the additional section"). If the
// zone has no active keys, returns nil.
func rrsigsFor(answers []dns.Record, match *zone.Zone, zoneName string) []dns.Record {
	keys := match.ActiveKeys()
	if len(keys) == 0 {
		return nil
	}
	key, ok := dnssec.SelectSigningKey(keys)
	if !ok {
		return nil
	}

	type rrsetKey struct {
		name string
		typ  dns.RecordType
	}
	order := make([]rrsetKey, 0, len(answers))
	sets := make(map[rrsetKey][]dns.Record, len(answers))
	for _, rr := range answers {
		k := rrsetKey{name: strings.ToLower(dns.NormalizeName(rr.Header().Name)), typ: rr.Type()}
		if _, seen := sets[k]; !seen {
			order = append(order, k)
		}
		sets[k] = append(sets[k], rr)
	}

	now := time.Now().Unix()
	out := make([]dns.Record, 0, len(order))
	for _, k := range order {
		sig, err := dnssec.SignRRset(sets[k], zoneName, key, now)
		if err != nil {
			continue
		}
		out = append(out, sig)
	}
	return out
}

// zoneRecordToDNSRecord converts a zone.Record to the interface-based
// dns.Record family, parsing the zone's string-typed RData into the
// concrete wire representation each record type expects.
func zoneRecordToDNSRecord(rr zone.Record) dns.Record {
	h := dns.NewRRHeader(rr.Name, dns.RecordClass(rr.Class), rr.TTL)
	switch dns.RecordType(rr.Type) {
	case dns.TypeA, dns.TypeAAAA:
		return dns.NewIPRecord(h, parseZoneIP(rr.RData.(string)))
	case dns.TypeCNAME:
		return dns.NewCNAMERecord(h, rr.RData.(string))
	case dns.TypeNS:
		return dns.NewNSRecord(h, rr.RData.(string))
	case dns.TypePTR:
		return dns.NewPTRRecord(h, rr.RData.(string))
	case dns.TypeMX:
		mx := rr.RData.(zone.MX)
		return dns.NewMXRecord(h, mx.Preference, mx.Exchange)
	case dns.TypeSRV:
		srv := rr.RData.(zone.SRV)
		return dns.NewSRVRecord(h, srv.Priority, srv.Weight, srv.Port, srv.Target)
	case dns.TypeCAA:
		caa := rr.RData.(zone.CAA)
		return dns.NewCAARecord(h, caa.Flags, caa.Tag, caa.Value)
	case dns.TypeTXT:
		return dns.NewTXTRecord(h, rr.RData.(string))
	case dns.TypeSOA:
		b := rr.RData.([]byte)
		return mustParseSOAWire(h, b)
	default:
		var raw []byte
		if b, ok := rr.RData.([]byte); ok {
			raw = b
		} else if s, ok := rr.RData.(string); ok {
			raw = []byte(s)
		}
		return dns.NewOpaqueRecord(h, dns.RecordType(rr.Type), raw)
	}
}

// parseZoneIP parses a zone-file address string, falling back to the
// unspecified address if parsing ever fails (the string was already
// validated at zone-load time in zone.transformRData).
func parseZoneIP(s string) net.IP {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return net.IPv4zero
	}
	return ip
}

// mustParseSOAWire decodes the zone package's wire-format SOA RData (built
// by zone.parseSOARData) back into an *dns.SOARecord.
func mustParseSOAWire(h dns.RRHeader, wire []byte) dns.Record {
	off := 0
	rec, err := dns.ParseSOARData(wire, &off, 0, len(wire))
	if err != nil {
		return dns.NewSOARecord(h, "", "", 0, 0, 0, 0, 0)
	}
	rec.SetHeader(h)
	return rec
}
