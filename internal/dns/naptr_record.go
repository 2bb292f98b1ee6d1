package dns

import (
	"encoding/binary"
	"fmt"
)

// NAPTRRecord represents a Naming Authority Pointer record (RFC 3403).
type NAPTRRecord struct {
	H           RRHeader
	Order       uint16
	Preference  uint16
	Flags       string
	Services    string
	Regexp      string
	Replacement string
}

// NewNAPTRRecord builds a NAPTRRecord.
func NewNAPTRRecord(h RRHeader, order, preference uint16, flags, services, regexp, replacement string) *NAPTRRecord {
	return &NAPTRRecord{
		H: h, Order: order, Preference: preference,
		Flags: flags, Services: services, Regexp: regexp, Replacement: replacement,
	}
}

func (r *NAPTRRecord) Type() RecordType     { return TypeNAPTR }
func (r *NAPTRRecord) Header() RRHeader     { return r.H }
func (r *NAPTRRecord) SetHeader(h RRHeader) { r.H = h }

func marshalCharString(s string) ([]byte, error) {
	b := []byte(s)
	if len(b) > 255 {
		return nil, fmt.Errorf("%w: NAPTR character-string cannot exceed 255 bytes", ErrDNSError)
	}
	out := make([]byte, 1+len(b))
	out[0] = byte(len(b))
	copy(out[1:], b)
	return out, nil
}

// MarshalRData encodes ORDER, PREFERENCE, then the FLAGS/SERVICES/REGEXP
// character-strings and the REPLACEMENT domain name (uncompressed, per
// RFC 3403 Section 4).
func (r *NAPTRRecord) MarshalRData() ([]byte, error) {
	out := make([]byte, 4)
	binary.BigEndian.PutUint16(out[0:2], r.Order)
	binary.BigEndian.PutUint16(out[2:4], r.Preference)
	for _, s := range []string{r.Flags, r.Services, r.Regexp} {
		cs, err := marshalCharString(s)
		if err != nil {
			return nil, err
		}
		out = append(out, cs...)
	}
	replWire, err := EncodeName(r.Replacement)
	if err != nil {
		return nil, err
	}
	out = append(out, replWire...)
	return out, nil
}

func readCharString(msg []byte, off *int) (string, error) {
	if *off+1 > len(msg) {
		return "", fmt.Errorf("%w: truncated character-string length", ErrDNSError)
	}
	ln := int(msg[*off])
	*off++
	if *off+ln > len(msg) {
		return "", fmt.Errorf("%w: truncated character-string", ErrDNSError)
	}
	s := string(msg[*off : *off+ln])
	*off += ln
	return s, nil
}

// ParseNAPTRRData parses NAPTR RDATA starting at *off, which must equal start.
func ParseNAPTRRData(msg []byte, off *int, start, rdlen int) (*NAPTRRecord, error) {
	if *off+4 > len(msg) {
		return nil, fmt.Errorf("%w: truncated NAPTR RDATA", ErrDNSError)
	}
	order := binary.BigEndian.Uint16(msg[*off : *off+2])
	preference := binary.BigEndian.Uint16(msg[*off+2 : *off+4])
	*off += 4
	flags, err := readCharString(msg, off)
	if err != nil {
		return nil, err
	}
	services, err := readCharString(msg, off)
	if err != nil {
		return nil, err
	}
	regexp, err := readCharString(msg, off)
	if err != nil {
		return nil, err
	}
	replacement, err := DecodeName(msg, off)
	if err != nil {
		return nil, err
	}
	if *off > start+rdlen {
		return nil, fmt.Errorf("%w: NAPTR RDATA overruns rdlength", ErrDNSError)
	}
	*off = start + rdlen
	return &NAPTRRecord{Order: order, Preference: preference, Flags: flags, Services: services, Regexp: regexp, Replacement: replacement}, nil
}
