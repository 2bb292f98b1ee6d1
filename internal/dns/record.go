package dns

import (
	"encoding/binary"
	"fmt"
)

// Record is the interface implemented by every resource-record type this
// package knows how to encode and decode. Each concrete type (IPRecord,
// NameRecord, MXRecord, ...) owns its own RDATA layout; the wire framing
// common to every RR (owner name, type, class, ttl, rdlength) is handled
// once by MarshalRR and ParseRecord.
type Record interface {
	Type() RecordType
	Header() RRHeader
	SetHeader(RRHeader)
	MarshalRData() ([]byte, error)
}

// MarshalRR serializes a Record to DNS wire format: owner name, fixed
// fields, then type-specific RDATA (RFC 1035 Section 4.1.3).
//
// An OPT pseudo-record (RFC 6891) carried as a Record is special-cased only
// in its owner name, which is always written as the root label; its CLASS
// (UDP payload size) and TTL (packed flags) are written from the header as-is.
func MarshalRR(rr Record) ([]byte, error) {
	h := rr.Header()

	nameWire := []byte{0}
	if rr.Type() != TypeOPT {
		b, err := EncodeName(h.Name)
		if err != nil {
			return nil, err
		}
		nameWire = b
	}

	rdata, err := rr.MarshalRData()
	if err != nil {
		return nil, err
	}
	if len(rdata) > 0xFFFF {
		return nil, fmt.Errorf("%w: RDATA too long (%d > 65535)", ErrDNSError, len(rdata))
	}

	out := make([]byte, 0, len(nameWire)+10+len(rdata))
	out = append(out, nameWire...)
	fixed := make([]byte, 10)
	binary.BigEndian.PutUint16(fixed[0:2], uint16(rr.Type()))
	binary.BigEndian.PutUint16(fixed[2:4], uint16(h.Class))
	binary.BigEndian.PutUint32(fixed[4:8], h.TTL)
	binary.BigEndian.PutUint16(fixed[8:10], uint16(len(rdata)))
	out = append(out, fixed...)
	out = append(out, rdata...)
	return out, nil
}

// ParseRecord decodes a single resource record at *off, advancing *off past
// it, and dispatches to the type-specific RDATA parser for rt.
func ParseRecord(msg []byte, off *int) (Record, error) {
	name, err := DecodeName(msg, off)
	if err != nil {
		return nil, err
	}
	if *off+10 > len(msg) {
		return nil, fmt.Errorf("%w: unexpected EOF while reading DNS record", ErrDNSError)
	}
	rrType := RecordType(binary.BigEndian.Uint16(msg[*off : *off+2]))
	rrClass := RecordClass(binary.BigEndian.Uint16(msg[*off+2 : *off+4]))
	ttl := binary.BigEndian.Uint32(msg[*off+4 : *off+8])
	rdlen := int(binary.BigEndian.Uint16(msg[*off+8 : *off+10]))
	*off += 10
	start := *off
	if start+rdlen > len(msg) {
		return nil, fmt.Errorf("%w: unexpected EOF while reading DNS record rdata", ErrDNSError)
	}

	h := NewRRHeader(name, rrClass, ttl)

	var rec Record
	switch rrType {
	case TypeA, TypeAAAA:
		rec, err = ParseIPRData(msg, off, rdlen)
	case TypeCNAME, TypeNS, TypePTR:
		rec, err = ParseNameRData(msg, off, start, rdlen, rrType)
	case TypeMX:
		rec, err = ParseMXRData(msg, off, start, rdlen)
	case TypeSOA:
		rec, err = ParseSOARData(msg, off, start, rdlen)
	case TypeTXT:
		rec, err = ParseTXTRData(msg, off, rdlen)
	case TypeSRV:
		rec, err = ParseSRVRData(msg, off, start, rdlen)
	case TypeNAPTR:
		rec, err = ParseNAPTRRData(msg, off, start, rdlen)
	case TypeCAA:
		rec, err = ParseCAARData(msg, off, rdlen)
	case TypeSSHFP:
		rec, err = ParseSSHFPRData(msg, off, rdlen)
	case TypeTLSA:
		rec, err = ParseTLSARData(msg, off, rdlen)
	case TypeSVCB, TypeHTTPS:
		rec, err = ParseSVCBRData(msg, off, start, rdlen, rrType)
	case TypeDNSKEY:
		rec, err = ParseDNSKEYRData(msg, off, rdlen)
	case TypeRRSIG:
		rec, err = ParseRRSIGRData(msg, off, start, rdlen)
	case TypeTSIG:
		rec, err = ParseTSIGRData(msg, off, start, rdlen)
	default:
		rec, err = ParseOpaqueRData(msg, off, rdlen, rrType)
	}
	if err != nil {
		return nil, err
	}
	rec.SetHeader(h)
	return rec, nil
}

// marshalTXT encodes TXT RDATA (a sequence of length-prefixed character
// strings) from a string, []string, or pre-encoded []byte.
func marshalTXT(v any) ([]byte, error) {
	switch t := v.(type) {
	case string:
		return marshalTXTString(t), nil
	case []string:
		out := make([]byte, 0, len(t)*4)
		for _, s := range t {
			out = append(out, marshalTXTString(s)...)
		}
		return out, nil
	case []byte:
		return t, nil
	default:
		return nil, fmt.Errorf("%w: TXT record data must be string, []string, or []byte", ErrDNSError)
	}
}

// marshalTXTString encodes a single TXT string, splitting into 255-byte
// character-string chunks if necessary.
func marshalTXTString(s string) []byte {
	b := []byte(s)
	if len(b) <= 255 {
		out := make([]byte, 1+len(b))
		out[0] = byte(len(b))
		copy(out[1:], b)
		return out
	}
	numChunks := (len(b) + 254) / 255
	out := make([]byte, 0, len(b)+numChunks)
	for i := 0; i < len(b); i += 255 {
		chunk := b[i:]
		if len(chunk) > 255 {
			chunk = chunk[:255]
		}
		out = append(out, byte(len(chunk)))
		out = append(out, chunk...)
	}
	return out
}

// parseTXTStrings splits raw TXT RDATA into its constituent character
// strings.
func parseTXTStrings(rdata []byte) ([]string, error) {
	var out []string
	i := 0
	for i < len(rdata) {
		ln := int(rdata[i])
		i++
		if i+ln > len(rdata) {
			return nil, fmt.Errorf("%w: truncated TXT character-string", ErrDNSError)
		}
		out = append(out, string(rdata[i:i+ln]))
		i += ln
	}
	return out, nil
}
