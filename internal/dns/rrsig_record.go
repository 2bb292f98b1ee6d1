package dns

import (
	"encoding/binary"
	"fmt"
)

// RRSIGRecord represents a DNSSEC signature record (RFC 4034 Section 3).
type RRSIGRecord struct {
	H           RRHeader
	TypeCovered RecordType
	Algorithm   uint8
	Labels      uint8
	OrigTTL     uint32
	Expiration  uint32 // seconds since epoch
	Inception   uint32 // seconds since epoch
	KeyTag      uint16
	SignerName  string
	Signature   []byte
}

// NewRRSIGRecord builds an RRSIGRecord.
func NewRRSIGRecord(h RRHeader, typeCovered RecordType, algorithm, labels uint8, origTTL, expiration, inception uint32, keyTag uint16, signerName string, signature []byte) *RRSIGRecord {
	return &RRSIGRecord{
		H: h, TypeCovered: typeCovered, Algorithm: algorithm, Labels: labels,
		OrigTTL: origTTL, Expiration: expiration, Inception: inception, KeyTag: keyTag,
		SignerName: signerName, Signature: signature,
	}
}

func (r *RRSIGRecord) Type() RecordType     { return TypeRRSIG }
func (r *RRSIGRecord) Header() RRHeader     { return r.H }
func (r *RRSIGRecord) SetHeader(h RRHeader) { r.H = h }

// MarshalRData encodes the fixed RRSIG fields followed by the uncompressed
// signer name and the raw signature, per RFC 4034 Section 3.1.
func (r *RRSIGRecord) MarshalRData() ([]byte, error) {
	signerWire, err := EncodeName(r.SignerName)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 18, 18+len(signerWire)+len(r.Signature))
	binary.BigEndian.PutUint16(out[0:2], uint16(r.TypeCovered))
	out[2] = r.Algorithm
	out[3] = r.Labels
	binary.BigEndian.PutUint32(out[4:8], r.OrigTTL)
	binary.BigEndian.PutUint32(out[8:12], r.Expiration)
	binary.BigEndian.PutUint32(out[12:16], r.Inception)
	binary.BigEndian.PutUint16(out[16:18], r.KeyTag)
	out = append(out, signerWire...)
	out = append(out, r.Signature...)
	return out, nil
}

// ParseRRSIGRData parses RRSIG RDATA starting at *off, which must equal
// start.
func ParseRRSIGRData(msg []byte, off *int, start, rdlen int) (*RRSIGRecord, error) {
	if *off+18 > len(msg) {
		return nil, fmt.Errorf("%w: truncated RRSIG RDATA", ErrDNSError)
	}
	typeCovered := RecordType(binary.BigEndian.Uint16(msg[*off : *off+2]))
	algorithm := msg[*off+2]
	labels := msg[*off+3]
	origTTL := binary.BigEndian.Uint32(msg[*off+4 : *off+8])
	expiration := binary.BigEndian.Uint32(msg[*off+8 : *off+12])
	inception := binary.BigEndian.Uint32(msg[*off+12 : *off+16])
	keyTag := binary.BigEndian.Uint16(msg[*off+16 : *off+18])
	*off += 18
	// RFC 4034 Section 3.1.7: the signer's name must not use compression,
	// but some implementations encode it anyway; DecodeName handles both.
	signerName, err := DecodeName(msg, off)
	if err != nil {
		return nil, err
	}
	end := start + rdlen
	if *off > end {
		return nil, fmt.Errorf("%w: RRSIG RDATA overruns rdlength", ErrDNSError)
	}
	sig := make([]byte, end-*off)
	copy(sig, msg[*off:end])
	*off = end
	return &RRSIGRecord{
		TypeCovered: typeCovered, Algorithm: algorithm, Labels: labels, OrigTTL: origTTL,
		Expiration: expiration, Inception: inception, KeyTag: keyTag, SignerName: signerName, Signature: sig,
	}, nil
}
