package resolvers

import "github.com/jroosing/hydradns/internal/dns"

// ZoneTransferer is implemented by resolvers that can serve AXFR/IXFR
// requests, satisfying internal/server's need to stream a zone without
// depending on the concrete ZoneResolver type.
type ZoneTransferer interface {
	BuildTransfer(req dns.Packet) ([][]byte, bool)
}

// BuildTransfer constructs the message sequence for an AXFR (RFC 5936) or
// IXFR (RFC 1995) request, per spec.md §4.9: the responder streams all
// zone records terminated by a repeat of the SOA, each record framed as
// its own independent message. IXFR is answered with the same full-zone
// sequence as AXFR whenever the client's request serial is stale, which is
// always true here since this responder keeps no history of incremental
// diffs to serve a smaller delta from.
//
// Returns ok=false if the question's name does not fall within any
// configured zone, or the zone has no SOA record.
func (z *ZoneResolver) BuildTransfer(req dns.Packet) ([][]byte, bool) {
	if len(req.Questions) == 0 {
		return nil, false
	}
	q := req.Questions[0]
	match := z.findMatchingZone(q.Name)
	if match == nil {
		return nil, false
	}
	soaRR := match.SOA(q.Class)
	if soaRR == nil {
		return nil, false
	}
	soa := zoneRecordToDNSRecord(*soaRR)

	frame := func(rr dns.Record) ([]byte, bool) {
		resp := dns.Packet{
			Header: dns.Header{
				ID:    req.Header.ID,
				Flags: dns.QRFlag | dns.AAFlag | (req.Header.Flags & dns.RDFlag),
			},
			Questions: []dns.Question{q},
			Answers:   []dns.Record{rr},
		}
		b, err := resp.Marshal()
		if err != nil {
			return nil, false
		}
		return b, true
	}

	records := match.AllRecords()
	out := make([][]byte, 0, len(records)+2)

	b, ok := frame(soa)
	if !ok {
		return nil, false
	}
	out = append(out, b)

	for _, rr := range records {
		if dns.RecordType(rr.Type) == dns.TypeSOA || rr.Class != q.Class {
			continue // SOA is sent first and again as the terminator
		}
		if b, ok := frame(zoneRecordToDNSRecord(rr)); ok {
			out = append(out, b)
		}
	}

	b, ok = frame(soa)
	if !ok {
		return nil, false
	}
	out = append(out, b)

	return out, true
}
