// Package ddns implements RFC 2136 dynamic update processing: parsing the
// UPDATE message sections, verifying the TSIG signature, and applying
// record changes atomically against a zone.
package ddns

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jroosing/hydradns/internal/dns"
	"github.com/jroosing/hydradns/internal/tsig"
	"github.com/jroosing/hydradns/internal/zone"
)

// ZoneLookup resolves the zone named in the UPDATE message's Zone section.
type ZoneLookup interface {
	FindZoneForUpdate(name string) (*zone.Zone, bool)
}

// Processor handles OPCODE=5 DDNS UPDATE messages.
type Processor struct {
	Zones    ZoneLookup
	TSIGKeys tsig.KeyStore
	Logger   *slog.Logger
}

// Process parses, authenticates, and applies an UPDATE message. reqBytes
// must be the exact bytes received on the wire (TSIG verification needs
// them unmodified). It always returns a complete response packet; errors
// are surfaced only as the response's RCODE, per spec.md §4.6/§7.
func (p *Processor) Process(req dns.Packet, reqBytes []byte) dns.Packet {
	if len(req.Questions) == 0 {
		return p.errorResponse(req, dns.RCodeFormErr)
	}
	zoneName := req.Questions[0].Name

	target, ok := p.Zones.FindZoneForUpdate(zoneName)
	if !ok {
		return p.errorResponse(req, dns.RCodeNotZone)
	}

	tsigRR, messageBeforeTSIG, err := extractTSIG(reqBytes, len(req.Additionals))
	if err != nil {
		p.logf("ddns update missing/malformed TSIG", "zone", zoneName, "err", err)
		return p.errorResponse(req, dns.RCodeNotAuth)
	}

	if err := tsig.Verify(p.TSIGKeys, messageBeforeTSIG, tsigRR); err != nil {
		p.logf("ddns TSIG verification failed", "zone", zoneName, "err", err)
		return p.errorResponse(req, dns.RCodeNotAuth)
	}
	if tsig.Deprecated(tsigRR.AlgorithmName) {
		p.logf("ddns update signed with deprecated TSIG algorithm", "zone", zoneName, "algorithm", tsigRR.AlgorithmName)
	}

	changes, err := decodeUpdateSection(req.Authorities)
	if err != nil {
		p.logf("ddns update section malformed", "zone", zoneName, "err", err)
		return p.errorResponse(req, dns.RCodeFormErr)
	}

	if err := target.ApplyUpdate(changes); err != nil {
		p.logf("ddns update apply failed", "zone", zoneName, "err", err)
		return p.errorResponse(req, dns.RCodeServFail)
	}

	return p.response(req, dns.RCodeNoError)
}

func (p *Processor) logf(msg string, args ...any) {
	if p.Logger != nil {
		p.Logger.Warn(msg, args...)
	}
}

func (p *Processor) errorResponse(req dns.Packet, rcode dns.RCode) dns.Packet {
	return p.response(req, rcode)
}

func (p *Processor) response(req dns.Packet, rcode dns.RCode) dns.Packet {
	flags := req.Header.Flags | dns.QRFlag
	flags = (flags &^ dns.RCodeMask) | (uint16(rcode) & dns.RCodeMask)
	return dns.Packet{
		Header:    dns.Header{ID: req.Header.ID, Flags: flags},
		Questions: req.Questions,
	}
}

// extractTSIG locates the TSIG pseudo-record, which spec.md §4.6 requires
// to always be the last record in the additional section, and returns it
// along with the message bytes that precede it (with ARCOUNT decremented
// by one), as required by RFC 8945 Section 4.3.3 for MAC verification.
func extractTSIG(reqBytes []byte, arCount int) (*dns.TSIGRecord, []byte, error) {
	if arCount == 0 {
		return nil, nil, errors.New("no additional records")
	}

	off := 0
	h, err := dns.ParseHeader(reqBytes, &off)
	if err != nil {
		return nil, nil, err
	}
	for range h.QDCount {
		if _, err := dns.ParseQuestion(reqBytes, &off); err != nil {
			return nil, nil, err
		}
	}
	for range h.ANCount {
		if _, err := dns.ParseRecord(reqBytes, &off); err != nil {
			return nil, nil, err
		}
	}
	for range h.NSCount {
		if _, err := dns.ParseRecord(reqBytes, &off); err != nil {
			return nil, nil, err
		}
	}
	for i := 0; i < int(h.ARCount); i++ {
		recordStart := off
		rr, err := dns.ParseRecord(reqBytes, &off)
		if err != nil {
			return nil, nil, err
		}
		isLast := i == int(h.ARCount)-1
		if rr.Type() == dns.TypeTSIG {
			if !isLast {
				return nil, nil, errors.New("TSIG record is not the last additional record")
			}
			tsigRR, ok := rr.(*dns.TSIGRecord)
			if !ok {
				return nil, nil, errors.New("malformed TSIG record")
			}
			before := make([]byte, recordStart)
			copy(before, reqBytes[:recordStart])
			if len(before) >= 12 {
				binary.BigEndian.PutUint16(before[10:12], h.ARCount-1)
			}
			return tsigRR, before, nil
		}
	}
	return nil, nil, errors.New("no TSIG record present")
}

// decodeUpdateSection converts the wire-parsed Update section (carried in
// the Authority slot of the message, per RFC 2136 Section 3.2) into
// zone.UpdateChange values.
func decodeUpdateSection(rrs []dns.Record) ([]zone.UpdateChange, error) {
	out := make([]zone.UpdateChange, 0, len(rrs))
	for _, rr := range rrs {
		h := rr.Header()
		rdata, err := toZoneRData(rr)
		if err != nil {
			return nil, fmt.Errorf("record %s %s: %w", h.Name, rr.Type(), err)
		}
		out = append(out, zone.UpdateChange{
			Name:  dns.NormalizeName(h.Name),
			Type:  uint16(rr.Type()),
			Class: uint16(h.Class),
			TTL:   h.TTL,
			RData: rdata,
		})
	}
	return out, nil
}

// toZoneRData converts a parsed dns.Record's RDATA into the representation
// zone.Record stores for that type (the inverse of the zone package's
// zoneRecordToDNSRecord used when answering queries).
func toZoneRData(rr dns.Record) (any, error) {
	switch v := rr.(type) {
	case *dns.IPRecord:
		return v.Addr.String(), nil
	case *dns.NameRecord:
		return dns.NormalizeName(v.Target), nil
	case *dns.MXRecord:
		return zone.MX{Preference: v.Preference, Exchange: dns.NormalizeName(v.Exchange)}, nil
	case *dns.SRVRecord:
		return zone.SRV{Priority: v.Priority, Weight: v.Weight, Port: v.Port, Target: dns.NormalizeName(v.Target)}, nil
	case *dns.CAARecord:
		return zone.CAA{Flags: v.Flags, Tag: v.Tag, Value: v.Value}, nil
	case *dns.TXTRecord:
		if len(v.Strings) == 0 {
			return "", nil
		}
		return v.Strings[0], nil
	default:
		// SOA and any type without a dedicated zone.Record shape are
		// stored as raw wire RDATA, matching the fallback branch zone
		// answer-assembly already uses for unsupported types.
		return rr.MarshalRData()
	}
}
