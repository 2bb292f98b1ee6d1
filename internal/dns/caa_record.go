package dns

import "fmt"

// CAARecord represents a Certification Authority Authorization record
// (RFC 8659).
type CAARecord struct {
	H     RRHeader
	Flags uint8
	Tag   string
	Value string
}

// NewCAARecord builds a CAARecord.
func NewCAARecord(h RRHeader, flags uint8, tag, value string) *CAARecord {
	return &CAARecord{H: h, Flags: flags, Tag: tag, Value: value}
}

func (r *CAARecord) Type() RecordType     { return TypeCAA }
func (r *CAARecord) Header() RRHeader     { return r.H }
func (r *CAARecord) SetHeader(h RRHeader) { r.H = h }

// MarshalRData encodes FLAGS, TAG-LENGTH, TAG, then the issuer VALUE.
func (r *CAARecord) MarshalRData() ([]byte, error) {
	tagBytes := []byte(r.Tag)
	if len(tagBytes) > 255 {
		return nil, fmt.Errorf("%w: CAA tag cannot exceed 255 bytes", ErrDNSError)
	}
	out := make([]byte, 0, 2+len(tagBytes)+len(r.Value))
	out = append(out, r.Flags, byte(len(tagBytes)))
	out = append(out, tagBytes...)
	out = append(out, []byte(r.Value)...)
	return out, nil
}

// ParseCAARData parses CAA RDATA.
func ParseCAARData(msg []byte, off *int, rdlen int) (*CAARecord, error) {
	if rdlen < 2 || *off+rdlen > len(msg) {
		return nil, fmt.Errorf("%w: truncated CAA RDATA", ErrDNSError)
	}
	rdata := msg[*off : *off+rdlen]
	flags := rdata[0]
	tagLen := int(rdata[1])
	if 2+tagLen > len(rdata) {
		return nil, fmt.Errorf("%w: CAA tag length overruns RDATA", ErrDNSError)
	}
	tag := string(rdata[2 : 2+tagLen])
	value := string(rdata[2+tagLen:])
	*off += rdlen
	return &CAARecord{Flags: flags, Tag: tag, Value: value}, nil
}
