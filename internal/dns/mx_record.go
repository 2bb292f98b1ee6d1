package dns

import (
	"encoding/binary"
	"fmt"
)

// MXRecord represents a mail exchange record (RFC 1035 Section 3.3.9).
type MXRecord struct {
	H          RRHeader
	Preference uint16
	Exchange   string
}

// NewMXRecord builds an MXRecord pointing at exchange with the given
// preference (lower values are preferred).
func NewMXRecord(h RRHeader, preference uint16, exchange string) *MXRecord {
	return &MXRecord{H: h, Preference: preference, Exchange: exchange}
}

func (r *MXRecord) Type() RecordType       { return TypeMX }
func (r *MXRecord) Header() RRHeader       { return r.H }
func (r *MXRecord) SetHeader(h RRHeader)   { r.H = h }

// MarshalRData encodes PREFERENCE followed by the exchange domain name.
func (r *MXRecord) MarshalRData() ([]byte, error) {
	exchangeWire, err := EncodeName(r.Exchange)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 2, 2+len(exchangeWire))
	binary.BigEndian.PutUint16(out[0:2], r.Preference)
	out = append(out, exchangeWire...)
	return out, nil
}

// ParseMXRData parses MX RDATA starting at *off, which must equal start.
func ParseMXRData(msg []byte, off *int, start, rdlen int) (*MXRecord, error) {
	if *off+2 > len(msg) {
		return nil, fmt.Errorf("%w: truncated MX RDATA", ErrDNSError)
	}
	preference := binary.BigEndian.Uint16(msg[*off : *off+2])
	*off += 2
	exchange, err := DecodeName(msg, off)
	if err != nil {
		return nil, err
	}
	if *off > start+rdlen {
		return nil, fmt.Errorf("%w: MX RDATA overruns rdlength", ErrDNSError)
	}
	*off = start + rdlen
	return &MXRecord{Preference: preference, Exchange: exchange}, nil
}
