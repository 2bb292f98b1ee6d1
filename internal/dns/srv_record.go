package dns

import (
	"encoding/binary"
	"fmt"
)

// SRVRecord represents a service locator record (RFC 2782).
type SRVRecord struct {
	H        RRHeader
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   string
}

// NewSRVRecord builds an SRVRecord.
func NewSRVRecord(h RRHeader, priority, weight, port uint16, target string) *SRVRecord {
	return &SRVRecord{H: h, Priority: priority, Weight: weight, Port: port, Target: target}
}

func (r *SRVRecord) Type() RecordType     { return TypeSRV }
func (r *SRVRecord) Header() RRHeader     { return r.H }
func (r *SRVRecord) SetHeader(h RRHeader) { r.H = h }

// MarshalRData encodes PRIORITY, WEIGHT, PORT, then the target domain name.
func (r *SRVRecord) MarshalRData() ([]byte, error) {
	targetWire, err := EncodeName(r.Target)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 6, 6+len(targetWire))
	binary.BigEndian.PutUint16(out[0:2], r.Priority)
	binary.BigEndian.PutUint16(out[2:4], r.Weight)
	binary.BigEndian.PutUint16(out[4:6], r.Port)
	out = append(out, targetWire...)
	return out, nil
}

// ParseSRVRData parses SRV RDATA starting at *off, which must equal start.
func ParseSRVRData(msg []byte, off *int, start, rdlen int) (*SRVRecord, error) {
	if *off+6 > len(msg) {
		return nil, fmt.Errorf("%w: truncated SRV RDATA", ErrDNSError)
	}
	priority := binary.BigEndian.Uint16(msg[*off : *off+2])
	weight := binary.BigEndian.Uint16(msg[*off+2 : *off+4])
	port := binary.BigEndian.Uint16(msg[*off+4 : *off+6])
	*off += 6
	target, err := DecodeName(msg, off)
	if err != nil {
		return nil, err
	}
	if *off > start+rdlen {
		return nil, fmt.Errorf("%w: SRV RDATA overruns rdlength", ErrDNSError)
	}
	*off = start + rdlen
	return &SRVRecord{Priority: priority, Weight: weight, Port: port, Target: target}, nil
}
