package dns

import (
	"encoding/binary"

	"github.com/jroosing/hydradns/internal/helpers"
)

// UDP payload size bounds for EDNS(0), RFC 6891.
const (
	DefaultUDPPayloadSize     = 512  // classic pre-EDNS UDP limit, RFC 1035
	EDNSDefaultUDPPayloadSize = 1232 // fragmentation-safe default this server advertises
	EDNSMaxUDPPayloadSize     = 4096
	EDNSMinUDPPayloadSize     = 512
)

const ednsOptionHeaderLen = 4

// EDNSOption is one OPTION-CODE/OPTION-LENGTH/OPTION-DATA triple carried in
// an OPT record's RDATA.
type EDNSOption struct {
	Code uint16
	Data []byte
}

// ednsAllowedOptions is the set of option codes this server understands;
// anything else is skipped on parse rather than surfaced to callers.
var ednsAllowedOptions = map[uint16]bool{
	10: true, // COOKIE
	12: true, // PADDING
}

// Marshal writes o in OPTION-CODE(2)/OPTION-LENGTH(2)/OPTION-DATA(n) form.
func (o EDNSOption) Marshal() []byte {
	b := make([]byte, ednsOptionHeaderLen+len(o.Data))
	binary.BigEndian.PutUint16(b[0:2], o.Code)
	binary.BigEndian.PutUint16(b[2:4], helpers.ClampIntToUint16(len(o.Data)))
	copy(b[4:], o.Data)
	return b
}

// ParseEDNSOptions walks raw OPT RDATA and returns the recognized options.
// An oversized option is skipped (its data bytes are stepped over so the
// scan can keep going); an option whose stated length runs past the end of
// rdata can't be safely skipped, so it ends the scan instead.
func ParseEDNSOptions(rdata []byte) []EDNSOption {
	var opts []EDNSOption
	for cursor := 0; len(rdata)-cursor >= ednsOptionHeaderLen; {
		code := binary.BigEndian.Uint16(rdata[cursor : cursor+2])
		length := int(binary.BigEndian.Uint16(rdata[cursor+2 : cursor+4]))
		cursor += ednsOptionHeaderLen

		if length > EDNSMaxUDPPayloadSize {
			cursor += length
			if cursor > len(rdata) {
				break
			}
			continue
		}
		end := cursor + length
		if end > len(rdata) {
			break
		}
		if ednsAllowedOptions[code] {
			data := make([]byte, length)
			copy(data, rdata[cursor:end])
			opts = append(opts, EDNSOption{Code: code, Data: data})
		}
		cursor = end
	}
	return opts
}

// MarshalEDNSOptions concatenates opts into RDATA, silently dropping any
// option whose Data exceeds EDNSMaxUDPPayloadSize.
func MarshalEDNSOptions(opts []EDNSOption) []byte {
	var out []byte
	for _, o := range opts {
		if len(o.Data) > EDNSMaxUDPPayloadSize {
			continue
		}
		out = append(out, o.Marshal()...)
	}
	return out
}

// optTTLFields are the extended-RCODE/version/DO bits EDNS(0) packs into
// the OPT pseudo-record's TTL slot (RFC 6891 §6.1.3):
//
//	31        24 23       16 15                              0
//	+----------+-----------+--+-----------------------------+
//	| ExtRCODE | Version    |DO| Z (reserved, zero)          |
//	+----------+-----------+--+-----------------------------+
type optTTLFields struct {
	ExtendedRCode uint8
	Version       uint8
	DNSSECOk      bool
}

func (f optTTLFields) pack() uint32 {
	ttl := uint32(f.ExtendedRCode)<<24 | uint32(f.Version)<<16
	if f.DNSSECOk {
		ttl |= 1 << 15
	}
	return ttl
}

func unpackOptTTL(ttl uint32) optTTLFields {
	return optTTLFields{
		ExtendedRCode: helpers.ClampUint32ToUint8((ttl >> 24) & 0xFF),
		Version:       helpers.ClampUint32ToUint8((ttl >> 16) & 0xFF),
		DNSSECOk:      (ttl>>15)&0x1 == 1,
	}
}

// OPTRecord models an EDNS OPT pseudo-record. It doesn't follow the normal
// RR layout semantics: NAME is always root, CLASS carries the requester's
// UDP payload size rather than a DNS class, and TTL is the bit-packed
// optTTLFields above instead of a lifetime.
type OPTRecord struct {
	UDPPayloadSize uint16
	ExtendedRCode  uint8
	Version        uint8
	DNSSECOk       bool
	Options        []EDNSOption
}

// CreateOPT builds an OPT record advertising udpPayloadSize, clamped to the
// [EDNSMinUDPPayloadSize, 65535] range a 16-bit CLASS field can hold.
func CreateOPT(udpPayloadSize int) OPTRecord {
	clamped := helpers.ClampInt(udpPayloadSize, EDNSMinUDPPayloadSize, 65535)
	return OPTRecord{UDPPayloadSize: helpers.ClampIntToUint16(clamped)}
}

// Marshal encodes o as a full resource record: root name, TYPE=OPT, the
// payload size in CLASS, the packed TTL, and its option RDATA.
func (o OPTRecord) Marshal() []byte {
	rdata := MarshalEDNSOptions(o.Options)
	ttl := optTTLFields{o.ExtendedRCode, o.Version, o.DNSSECOk}.pack()

	b := make([]byte, 0, 1+10+len(rdata))
	b = append(b, 0) // root NAME
	fixed := make([]byte, 10)
	binary.BigEndian.PutUint16(fixed[0:2], uint16(TypeOPT))
	binary.BigEndian.PutUint16(fixed[2:4], o.UDPPayloadSize)
	binary.BigEndian.PutUint32(fixed[4:8], ttl)
	binary.BigEndian.PutUint16(fixed[8:10], helpers.ClampIntToUint16(len(rdata)))
	b = append(b, fixed...)
	return append(b, rdata...)
}

// ExtractOPT returns the first OPT record among additionals, or nil if the
// message carries no EDNS(0) pseudo-record.
func ExtractOPT(additionals []Record) *OPTRecord {
	for _, r := range additionals {
		if r.Type() != TypeOPT {
			continue
		}
		opaque, ok := r.(*OpaqueRecord)
		if !ok {
			continue
		}
		raw, ok := opaque.Data.([]byte)
		if !ok {
			continue
		}
		h := opaque.Header()
		fields := unpackOptTTL(h.TTL)
		return &OPTRecord{
			UDPPayloadSize: uint16(h.Class),
			ExtendedRCode:  fields.ExtendedRCode,
			Version:        fields.Version,
			DNSSECOk:       fields.DNSSECOk,
			Options:        ParseEDNSOptions(raw),
		}
	}
	return nil
}

// ClientMaxUDPSize reports the largest UDP response the requester of req
// will accept: its advertised EDNS payload size (never less than
// DefaultUDPPayloadSize), or DefaultUDPPayloadSize if it sent no OPT.
func ClientMaxUDPSize(req Packet) int {
	opt := ExtractOPT(req.Additionals)
	if opt == nil {
		return DefaultUDPPayloadSize
	}
	if opt.UDPPayloadSize < DefaultUDPPayloadSize {
		return DefaultUDPPayloadSize
	}
	return int(opt.UDPPayloadSize)
}

// IsTruncated reports whether an encoded DNS message has its TC bit set.
func IsTruncated(responseBytes []byte) bool {
	if len(responseBytes) < 4 {
		return false
	}
	flags := binary.BigEndian.Uint16(responseBytes[2:4])
	return flags&TCFlag != 0
}

// AddEDNSToRequestBytes appends a fresh OPT record advertising udpSize to
// the raw bytes of req and bumps ARCOUNT, unless req already carries one
// (in which case reqBytes is returned unchanged; the caller's existing DO
// bit is preserved simply by not touching the message).
func AddEDNSToRequestBytes(req Packet, reqBytes []byte, udpSize int) []byte {
	if ExtractOPT(req.Additionals) != nil {
		return reqBytes
	}
	if len(reqBytes) < HeaderSize {
		return reqBytes
	}

	optBytes := CreateOPT(udpSize).Marshal()

	arCount := binary.BigEndian.Uint16(reqBytes[10:12])
	if arCount < 65535 {
		arCount++
	}

	out := make([]byte, 0, len(reqBytes)+len(optBytes))
	out = append(out, reqBytes...)
	binary.BigEndian.PutUint16(out[10:12], arCount)
	return append(out, optBytes...)
}
