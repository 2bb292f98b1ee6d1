package dns

import (
	"encoding/binary"
	"fmt"
)

// TSIGRecord represents a transaction signature pseudo-record (RFC 8945
// Section 4.2). It is never cached and carries CLASS=ANY, TTL=0.
type TSIGRecord struct {
	H            RRHeader
	AlgorithmName string
	TimeSigned   uint64 // 48-bit seconds since epoch
	Fudge        uint16
	MAC          []byte
	OriginalID   uint16
	Error        uint16
	OtherData    []byte
}

// NewTSIGRecord builds a TSIGRecord for owner name (the TSIG key name),
// with CLASS=ANY and TTL=0 per RFC 8945 Section 4.2.
func NewTSIGRecord(name string, algorithmName string, timeSigned uint64, fudge uint16, mac []byte, originalID, errCode uint16, otherData []byte) *TSIGRecord {
	return &TSIGRecord{
		H: NewRRHeader(name, ClassANY, 0), AlgorithmName: algorithmName, TimeSigned: timeSigned,
		Fudge: fudge, MAC: mac, OriginalID: originalID, Error: errCode, OtherData: otherData,
	}
}

func (r *TSIGRecord) Type() RecordType     { return TypeTSIG }
func (r *TSIGRecord) Header() RRHeader     { return r.H }
func (r *TSIGRecord) SetHeader(h RRHeader) { r.H = h }

// MarshalRData encodes the TSIG RDATA fields per RFC 8945 Section 4.2.
func (r *TSIGRecord) MarshalRData() ([]byte, error) {
	algWire, err := EncodeName(r.AlgorithmName)
	if err != nil {
		return nil, err
	}
	if len(r.MAC) > 0xFFFF || len(r.OtherData) > 0xFFFF {
		return nil, fmt.Errorf("%w: TSIG MAC or other-data too long", ErrDNSError)
	}
	out := make([]byte, 0, len(algWire)+16+len(r.MAC)+len(r.OtherData))
	out = append(out, algWire...)

	timeField := make([]byte, 6)
	timeField[0] = byte(r.TimeSigned >> 40)
	timeField[1] = byte(r.TimeSigned >> 32)
	binary.BigEndian.PutUint32(timeField[2:6], uint32(r.TimeSigned))
	out = append(out, timeField...)

	fudgeAndMACLen := make([]byte, 4)
	binary.BigEndian.PutUint16(fudgeAndMACLen[0:2], r.Fudge)
	binary.BigEndian.PutUint16(fudgeAndMACLen[2:4], uint16(len(r.MAC)))
	out = append(out, fudgeAndMACLen...)
	out = append(out, r.MAC...)

	tail := make([]byte, 6)
	binary.BigEndian.PutUint16(tail[0:2], r.OriginalID)
	binary.BigEndian.PutUint16(tail[2:4], r.Error)
	binary.BigEndian.PutUint16(tail[4:6], uint16(len(r.OtherData)))
	out = append(out, tail...)
	out = append(out, r.OtherData...)
	return out, nil
}

// ParseTSIGRData parses TSIG RDATA starting at *off, which must equal start.
func ParseTSIGRData(msg []byte, off *int, start, rdlen int) (*TSIGRecord, error) {
	algName, err := DecodeName(msg, off)
	if err != nil {
		return nil, err
	}
	if *off+10 > len(msg) {
		return nil, fmt.Errorf("%w: truncated TSIG RDATA", ErrDNSError)
	}
	timeSigned := uint64(msg[*off])<<40 | uint64(msg[*off+1])<<32 | uint64(binary.BigEndian.Uint32(msg[*off+2:*off+6]))
	fudge := binary.BigEndian.Uint16(msg[*off+6 : *off+8])
	macLen := int(binary.BigEndian.Uint16(msg[*off+8 : *off+10]))
	*off += 10
	if *off+macLen > len(msg) {
		return nil, fmt.Errorf("%w: truncated TSIG MAC", ErrDNSError)
	}
	mac := make([]byte, macLen)
	copy(mac, msg[*off:*off+macLen])
	*off += macLen

	if *off+6 > len(msg) {
		return nil, fmt.Errorf("%w: truncated TSIG trailer", ErrDNSError)
	}
	originalID := binary.BigEndian.Uint16(msg[*off : *off+2])
	errCode := binary.BigEndian.Uint16(msg[*off+2 : *off+4])
	otherLen := int(binary.BigEndian.Uint16(msg[*off+4 : *off+6]))
	*off += 6
	end := start + rdlen
	if *off+otherLen > len(msg) || *off+otherLen > end {
		return nil, fmt.Errorf("%w: truncated TSIG other-data", ErrDNSError)
	}
	other := make([]byte, otherLen)
	copy(other, msg[*off:*off+otherLen])
	*off += otherLen
	if *off != end {
		return nil, fmt.Errorf("%w: TSIG RDATA length mismatch", ErrDNSError)
	}
	return &TSIGRecord{
		AlgorithmName: algName, TimeSigned: timeSigned, Fudge: fudge, MAC: mac,
		OriginalID: originalID, Error: errCode, OtherData: other,
	}, nil
}
