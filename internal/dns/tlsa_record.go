package dns

import "fmt"

// TLSARecord represents a TLS certificate association record (RFC 6698).
type TLSARecord struct {
	H            RRHeader
	CertUsage    uint8
	Selector     uint8
	MatchingType uint8
	CertAssocData []byte
}

// NewTLSARecord builds a TLSARecord.
func NewTLSARecord(h RRHeader, certUsage, selector, matchingType uint8, data []byte) *TLSARecord {
	return &TLSARecord{H: h, CertUsage: certUsage, Selector: selector, MatchingType: matchingType, CertAssocData: data}
}

func (r *TLSARecord) Type() RecordType     { return TypeTLSA }
func (r *TLSARecord) Header() RRHeader     { return r.H }
func (r *TLSARecord) SetHeader(h RRHeader) { r.H = h }

// MarshalRData encodes CERT USAGE, SELECTOR, MATCHING TYPE, then the
// certificate association data.
func (r *TLSARecord) MarshalRData() ([]byte, error) {
	out := make([]byte, 3+len(r.CertAssocData))
	out[0] = r.CertUsage
	out[1] = r.Selector
	out[2] = r.MatchingType
	copy(out[3:], r.CertAssocData)
	return out, nil
}

// ParseTLSARData parses TLSA RDATA.
func ParseTLSARData(msg []byte, off *int, rdlen int) (*TLSARecord, error) {
	if rdlen < 3 || *off+rdlen > len(msg) {
		return nil, fmt.Errorf("%w: truncated TLSA RDATA", ErrDNSError)
	}
	rdata := msg[*off : *off+rdlen]
	data := make([]byte, rdlen-3)
	copy(data, rdata[3:])
	*off += rdlen
	return &TLSARecord{CertUsage: rdata[0], Selector: rdata[1], MatchingType: rdata[2], CertAssocData: data}, nil
}
