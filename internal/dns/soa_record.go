package dns

import (
	"encoding/binary"
	"fmt"
)

// SOARecord represents a Start of Authority record (RFC 1035 Section 3.3.13).
type SOARecord struct {
	H       RRHeader
	MName   string // primary master name server
	RName   string // responsible party mailbox, encoded as a domain name
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32 // negative-caching TTL (RFC 2308)
}

// NewSOARecord builds an SOARecord with the given zone fields.
func NewSOARecord(h RRHeader, mname, rname string, serial, refresh, retry, expire, minimum uint32) *SOARecord {
	return &SOARecord{
		H: h, MName: mname, RName: rname,
		Serial: serial, Refresh: refresh, Retry: retry, Expire: expire, Minimum: minimum,
	}
}

func (r *SOARecord) Type() RecordType     { return TypeSOA }
func (r *SOARecord) Header() RRHeader     { return r.H }
func (r *SOARecord) SetHeader(h RRHeader) { r.H = h }

// MarshalRData encodes MNAME, RNAME, then the five 32-bit timer fields.
func (r *SOARecord) MarshalRData() ([]byte, error) {
	mnameWire, err := EncodeName(r.MName)
	if err != nil {
		return nil, err
	}
	rnameWire, err := EncodeName(r.RName)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(mnameWire)+len(rnameWire)+20)
	out = append(out, mnameWire...)
	out = append(out, rnameWire...)
	tail := make([]byte, 20)
	binary.BigEndian.PutUint32(tail[0:4], r.Serial)
	binary.BigEndian.PutUint32(tail[4:8], r.Refresh)
	binary.BigEndian.PutUint32(tail[8:12], r.Retry)
	binary.BigEndian.PutUint32(tail[12:16], r.Expire)
	binary.BigEndian.PutUint32(tail[16:20], r.Minimum)
	out = append(out, tail...)
	return out, nil
}

// ParseSOARData parses SOA RDATA starting at *off, which must equal start.
func ParseSOARData(msg []byte, off *int, start, rdlen int) (*SOARecord, error) {
	mname, err := DecodeName(msg, off)
	if err != nil {
		return nil, err
	}
	rname, err := DecodeName(msg, off)
	if err != nil {
		return nil, err
	}
	if *off+20 > len(msg) {
		return nil, fmt.Errorf("%w: truncated SOA RDATA", ErrDNSError)
	}
	r := &SOARecord{
		MName:   mname,
		RName:   rname,
		Serial:  binary.BigEndian.Uint32(msg[*off : *off+4]),
		Refresh: binary.BigEndian.Uint32(msg[*off+4 : *off+8]),
		Retry:   binary.BigEndian.Uint32(msg[*off+8 : *off+12]),
		Expire:  binary.BigEndian.Uint32(msg[*off+12 : *off+16]),
		Minimum: binary.BigEndian.Uint32(msg[*off+16 : *off+20]),
	}
	*off += 20
	if *off > start+rdlen {
		return nil, fmt.Errorf("%w: SOA RDATA overruns rdlength", ErrDNSError)
	}
	*off = start + rdlen
	return r, nil
}
