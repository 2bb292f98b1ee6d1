package dns

import (
	"encoding/binary"
	"fmt"
)

// SVCBParam is a single key/value parameter in SVCB/HTTPS RDATA (RFC 9460).
type SVCBParam struct {
	Key   uint16
	Value []byte
}

// SVCBRecord represents a general-purpose service binding record (RFC 9460).
// The same RDATA layout is shared by SVCB (type 64) and HTTPS (type 65);
// RT distinguishes which one this record is.
type SVCBRecord struct {
	H          RRHeader
	RT         RecordType
	Priority   uint16
	Target     string
	Params     []SVCBParam
}

// NewSVCBRecord builds an SVCB or HTTPS record depending on rt.
func NewSVCBRecord(h RRHeader, rt RecordType, priority uint16, target string, params []SVCBParam) *SVCBRecord {
	return &SVCBRecord{H: h, RT: rt, Priority: priority, Target: target, Params: params}
}

func (r *SVCBRecord) Type() RecordType     { return r.RT }
func (r *SVCBRecord) Header() RRHeader     { return r.H }
func (r *SVCBRecord) SetHeader(h RRHeader) { r.H = h }

// MarshalRData encodes PRIORITY, the uncompressed TARGET name, then each
// parameter as KEY, LENGTH, VALUE in ascending key order (RFC 9460 requires
// ascending order but does not require this package to sort on behalf of
// callers; callers are expected to supply Params already sorted).
func (r *SVCBRecord) MarshalRData() ([]byte, error) {
	targetWire, err := EncodeName(r.Target)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 2, 2+len(targetWire))
	binary.BigEndian.PutUint16(out[0:2], r.Priority)
	out = append(out, targetWire...)
	for _, p := range r.Params {
		if len(p.Value) > 0xFFFF {
			return nil, fmt.Errorf("%w: SVCB param value too long", ErrDNSError)
		}
		field := make([]byte, 4+len(p.Value))
		binary.BigEndian.PutUint16(field[0:2], p.Key)
		binary.BigEndian.PutUint16(field[2:4], uint16(len(p.Value)))
		copy(field[4:], p.Value)
		out = append(out, field...)
	}
	return out, nil
}

// ParseSVCBRData parses SVCB/HTTPS RDATA starting at *off, which must equal
// start.
func ParseSVCBRData(msg []byte, off *int, start, rdlen int, rt RecordType) (*SVCBRecord, error) {
	if *off+2 > len(msg) {
		return nil, fmt.Errorf("%w: truncated SVCB RDATA", ErrDNSError)
	}
	priority := binary.BigEndian.Uint16(msg[*off : *off+2])
	*off += 2
	target, err := DecodeName(msg, off)
	if err != nil {
		return nil, err
	}
	end := start + rdlen
	var params []SVCBParam
	for *off < end {
		if *off+4 > len(msg) || *off+4 > end {
			return nil, fmt.Errorf("%w: truncated SVCB parameter header", ErrDNSError)
		}
		key := binary.BigEndian.Uint16(msg[*off : *off+2])
		ln := int(binary.BigEndian.Uint16(msg[*off+2 : *off+4]))
		*off += 4
		if *off+ln > len(msg) || *off+ln > end {
			return nil, fmt.Errorf("%w: truncated SVCB parameter value", ErrDNSError)
		}
		val := make([]byte, ln)
		copy(val, msg[*off:*off+ln])
		*off += ln
		params = append(params, SVCBParam{Key: key, Value: val})
	}
	if *off > end {
		return nil, fmt.Errorf("%w: SVCB RDATA overruns rdlength", ErrDNSError)
	}
	*off = end
	return &SVCBRecord{RT: rt, Priority: priority, Target: target, Params: params}, nil
}
