package dns

import (
	"encoding/binary"
	"fmt"
)

// DNSKEY flags (RFC 4034 Section 2.1.1).
const (
	DNSKEYFlagZoneKey    uint16 = 0x0100
	DNSKEYFlagSecureEntry uint16 = 0x0001 // SEP (Secure Entry Point), conventionally the KSK
)

// DNSSEC signing algorithm numbers this package supports (RFC 8624).
const (
	AlgorithmRSASHA256 uint8 = 8
	AlgorithmRSASHA512 uint8 = 10
	AlgorithmED25519   uint8 = 15
	AlgorithmED448     uint8 = 16
)

// DNSKEYRecord represents a DNSSEC public key record (RFC 4034 Section 2).
type DNSKEYRecord struct {
	H         RRHeader
	Flags     uint16
	Protocol  uint8 // always 3
	Algorithm uint8
	PublicKey []byte
}

// NewDNSKEYRecord builds a DNSKEYRecord.
func NewDNSKEYRecord(h RRHeader, flags uint16, algorithm uint8, publicKey []byte) *DNSKEYRecord {
	return &DNSKEYRecord{H: h, Flags: flags, Protocol: 3, Algorithm: algorithm, PublicKey: publicKey}
}

func (r *DNSKEYRecord) Type() RecordType     { return TypeDNSKEY }
func (r *DNSKEYRecord) Header() RRHeader     { return r.H }
func (r *DNSKEYRecord) SetHeader(h RRHeader) { r.H = h }

// IsSEP reports whether the Secure Entry Point bit is set (conventionally
// marks a key-signing key rather than a zone-signing key).
func (r *DNSKEYRecord) IsSEP() bool { return r.Flags&DNSKEYFlagSecureEntry != 0 }

// MarshalRData encodes FLAGS, PROTOCOL, ALGORITHM, then the raw public key.
func (r *DNSKEYRecord) MarshalRData() ([]byte, error) {
	out := make([]byte, 4+len(r.PublicKey))
	binary.BigEndian.PutUint16(out[0:2], r.Flags)
	out[2] = r.Protocol
	out[3] = r.Algorithm
	copy(out[4:], r.PublicKey)
	return out, nil
}

// ParseDNSKEYRData parses DNSKEY RDATA.
func ParseDNSKEYRData(msg []byte, off *int, rdlen int) (*DNSKEYRecord, error) {
	if rdlen < 4 || *off+rdlen > len(msg) {
		return nil, fmt.Errorf("%w: truncated DNSKEY RDATA", ErrDNSError)
	}
	rdata := msg[*off : *off+rdlen]
	key := make([]byte, rdlen-4)
	copy(key, rdata[4:])
	*off += rdlen
	return &DNSKEYRecord{
		Flags:     binary.BigEndian.Uint16(rdata[0:2]),
		Protocol:  rdata[2],
		Algorithm: rdata[3],
		PublicKey: key,
	}, nil
}

// KeyTag computes the RFC 4034 Appendix B key tag used to reference this
// key from RRSIG and DS records.
func (r *DNSKEYRecord) KeyTag() (uint16, error) {
	rdata, err := r.MarshalRData()
	if err != nil {
		return 0, err
	}
	var ac uint32
	for i, b := range rdata {
		if i&1 == 0 {
			ac += uint32(b) << 8
		} else {
			ac += uint32(b)
		}
	}
	ac += (ac >> 16) & 0xFFFF
	return uint16(ac & 0xFFFF), nil
}
