// Package dnssec builds and verifies RRSIG signatures over locally served
// RRsets per RFC 4034. It signs positive answers only; authenticated denial
// (NSEC/NSEC3) is out of scope, matching the zone responder's signing
// contract.
package dnssec

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/jroosing/hydradns/internal/dns"
)

// Algorithm numbers this package signs and verifies with, per RFC 8624 /
// RFC 4034 Appendix A.1 and the registered IANA DNSSEC algorithm numbers
// (8/10/15/16). These match the numbers already wired into internal/dns's
// DNSKEY record (AlgorithmRSASHA256 etc); see DESIGN.md's "DNSSEC algorithm
// numbering" Open Question entry for why 15/16 are kept over the spec's
// literal 13/15 prose.
const (
	AlgorithmRSASHA256 = dns.AlgorithmRSASHA256
	AlgorithmRSASHA512 = dns.AlgorithmRSASHA512
	AlgorithmED25519   = dns.AlgorithmED25519
	AlgorithmED448     = dns.AlgorithmED448
)

// Key is a DNSSEC signing key bound to a zone. PrivateKey is either an
// ed25519.PrivateKey or *rsa.PrivateKey depending on Algorithm.
type Key struct {
	Algorithm  uint8
	Flags      uint16 // 256 = ZSK, 257 = KSK
	KeyTag     uint16
	PrivateKey crypto.Signer
	PublicKey  []byte // DNSKEY-wire public key bytes
}

// IsZSK reports whether this key is a zone-signing key (flags == 256).
func (k Key) IsZSK() bool { return k.Flags == dns.DNSKEYFlagZoneKey }

// NewKey wraps a private key and flags into a Key, deriving PublicKey
// (DNSKEY wire format) and KeyTag. algorithm must be one of the
// Algorithm* constants and priv's concrete type must match it.
func NewKey(algorithm uint8, flags uint16, priv crypto.Signer) (Key, error) {
	pub, err := publicKeyWire(algorithm, priv)
	if err != nil {
		return Key{}, err
	}
	tag, err := keyTag(flags, algorithm, pub)
	if err != nil {
		return Key{}, err
	}
	return Key{Algorithm: algorithm, Flags: flags, KeyTag: tag, PrivateKey: priv, PublicKey: pub}, nil
}

// GenerateEd25519Key creates a fresh Ed25519 signing key (algorithm 15),
// the default algorithm for newly created zones.
func GenerateEd25519Key(flags uint16) (Key, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Key{}, err
	}
	_ = pub
	return NewKey(AlgorithmED25519, flags, priv)
}

func publicKeyWire(algorithm uint8, priv crypto.Signer) ([]byte, error) {
	switch algorithm {
	case AlgorithmED25519:
		p, ok := priv.(ed25519.PrivateKey)
		if !ok {
			return nil, errors.New("dnssec: algorithm 15 requires an ed25519.PrivateKey")
		}
		pub, ok := p.Public().(ed25519.PublicKey)
		if !ok {
			return nil, errors.New("dnssec: could not derive Ed25519 public key")
		}
		return []byte(pub), nil
	case AlgorithmRSASHA256, AlgorithmRSASHA512:
		p, ok := priv.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("dnssec: RSA algorithms require an *rsa.PrivateKey")
		}
		return encodeRSAPublicKey(&p.PublicKey), nil
	default:
		return nil, fmt.Errorf("dnssec: unsupported algorithm %d", algorithm)
	}
}

// encodeRSAPublicKey encodes an RSA public key in the RFC 3110 wire format
// used by DNSKEY RDATA.
func encodeRSAPublicKey(pub *rsa.PublicKey) []byte {
	e := big.NewInt(int64(pub.E)).Bytes()
	n := pub.N.Bytes()
	var out []byte
	if len(e) < 256 {
		out = append(out, byte(len(e)))
	} else {
		out = append(out, 0, byte(len(e)>>8), byte(len(e)))
	}
	out = append(out, e...)
	out = append(out, n...)
	return out
}

// keyTag computes the RFC 4034 Appendix B key tag for a DNSKEY built from
// the given flags/algorithm/public-key wire bytes.
func keyTag(flags uint16, algorithm uint8, pubKey []byte) (uint16, error) {
	rec := dns.NewDNSKEYRecord(dns.RRHeader{}, flags, algorithm, pubKey)
	return rec.KeyTag()
}

// DNSKEYRecord builds the dns.Record form of this key, owned by zoneName.
func (k Key) DNSKEYRecord(zoneName string, ttl uint32) *dns.DNSKEYRecord {
	h := dns.NewRRHeader(zoneName, dns.ClassIN, ttl)
	return dns.NewDNSKEYRecord(h, k.Flags, k.Algorithm, k.PublicKey)
}

// SelectSigningKey picks the key used to sign ordinary RRsets: the first
// ZSK (flags=256) if one exists, otherwise the first active key of any
// kind, per spec.md §4.5 ("select the ZSK, or the first active key").
func SelectSigningKey(keys []Key) (Key, bool) {
	for _, k := range keys {
		if k.IsZSK() {
			return k, true
		}
	}
	if len(keys) > 0 {
		return keys[0], true
	}
	return Key{}, false
}

// Clock abstracts time.Now so callers can pin it in tests; production code
// passes time.Now().Unix().
type Clock func() int64

// SignRRset builds an RRSIG covering rrset (all records must share owner,
// class, and type), owned by zoneName, signed with key, using now as the
// signing time. inception = now-3600, expiration = now+30d per spec.md
// §4.5.
func SignRRset(rrset []dns.Record, zoneName string, key Key, now int64) (*dns.RRSIGRecord, error) {
	if len(rrset) == 0 {
		return nil, errors.New("dnssec: cannot sign an empty RRset")
	}
	typeCovered := rrset[0].Type()
	class := rrset[0].Header().Class
	origTTL := rrset[0].Header().TTL
	owner := rrset[0].Header().Name
	for _, r := range rrset {
		if r.Type() != typeCovered || r.Header().Class != class {
			return nil, errors.New("dnssec: RRset must share owner, class and type")
		}
	}

	const (
		inceptionSkewSeconds = 3600
		validitySeconds      = 30 * 24 * 3600
	)
	inception := uint32(now - inceptionSkewSeconds)
	expiration := uint32(now + validitySeconds)

	canon := canonicalizeRRset(rrset, origTTL)
	labels := labelCount(owner)

	sig := &dns.RRSIGRecord{
		H:           dns.NewRRHeader(owner, class, origTTL),
		TypeCovered: typeCovered,
		Algorithm:   key.Algorithm,
		Labels:      labels,
		OrigTTL:     origTTL,
		Expiration:  expiration,
		Inception:   inception,
		KeyTag:      key.KeyTag,
		SignerName:  dns.NormalizeName(zoneName),
	}

	preimage, err := buildPreimage(sig, canon)
	if err != nil {
		return nil, err
	}

	signature, err := signBytes(key, preimage)
	if err != nil {
		return nil, fmt.Errorf("dnssec: sign: %w", err)
	}
	sig.Signature = signature
	return sig, nil
}

// Verify checks sig against rrset using the given DNSKEY. It recomputes the
// preimage and calls the algorithm-appropriate verifier.
func Verify(rrset []dns.Record, sig *dns.RRSIGRecord, pub *dns.DNSKEYRecord) error {
	if len(rrset) == 0 {
		return errors.New("dnssec: cannot verify an empty RRset")
	}
	canon := canonicalizeRRset(rrset, sig.OrigTTL)
	preimage, err := buildPreimage(sig, canon)
	if err != nil {
		return err
	}
	return verifyBytes(pub.Algorithm, pub.PublicKey, preimage, sig.Signature)
}

// canonicalRR is an RRset member reduced to its canonical wire form per
// RFC 4034 Section 6.2: owner lowercased, TTL replaced by the RRset's
// original TTL, RDATA left as encoded wire bytes (names inside RDATA are
// NOT additionally lowercased by this package; every RR type this system
// signs stores rdata already normalized at ingestion).
type canonicalRR struct {
	ownerWire []byte
	rrType    uint16
	class     uint16
	ttl       uint32
	rdata     []byte
}

func canonicalizeRRset(rrset []dns.Record, ttl uint32) []canonicalRR {
	out := make([]canonicalRR, 0, len(rrset))
	for _, r := range rrset {
		h := r.Header()
		ownerWire, _ := dns.EncodeName(strings.ToLower(dns.NormalizeName(h.Name)))
		rdata, _ := r.MarshalRData()
		out = append(out, canonicalRR{
			ownerWire: ownerWire,
			rrType:    uint16(r.Type()),
			class:     uint16(h.Class),
			ttl:       ttl,
			rdata:     rdata,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return compareRData(out[i].rdata, out[j].rdata) < 0
	})
	return out
}

func compareRData(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}

// labelCount returns the number of labels in name, excluding the root
// label, per RFC 4034 Section 3.1.3 (used for wildcard-expansion checks,
// which this system does not synthesize, but the field is still required
// on the wire).
func labelCount(name string) uint8 {
	name = dns.NormalizeName(name)
	if name == "" {
		return 0
	}
	return uint8(strings.Count(name, ".") + 1)
}

// buildPreimage builds the RFC 4034 Section 3.1.8.1 signature input: the
// RRSIG RDATA with the Signature field emptied, followed by each canonical
// RR's wire form (owner, type, class, orig-ttl, rdlength, rdata).
func buildPreimage(sig *dns.RRSIGRecord, canon []canonicalRR) ([]byte, error) {
	unsigned := *sig
	unsigned.Signature = nil
	rrsigRData, err := unsigned.MarshalRData()
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(rrsigRData)+len(canon)*32)
	out = append(out, rrsigRData...)

	for _, rr := range canon {
		out = append(out, rr.ownerWire...)
		fixed := make([]byte, 10)
		fixed[0] = byte(rr.rrType >> 8)
		fixed[1] = byte(rr.rrType)
		fixed[2] = byte(rr.class >> 8)
		fixed[3] = byte(rr.class)
		fixed[4] = byte(rr.ttl >> 24)
		fixed[5] = byte(rr.ttl >> 16)
		fixed[6] = byte(rr.ttl >> 8)
		fixed[7] = byte(rr.ttl)
		fixed[8] = byte(len(rr.rdata) >> 8)
		fixed[9] = byte(len(rr.rdata))
		out = append(out, fixed...)
		out = append(out, rr.rdata...)
	}
	return out, nil
}

func signBytes(key Key, preimage []byte) ([]byte, error) {
	switch key.Algorithm {
	case AlgorithmED25519:
		priv, ok := key.PrivateKey.(ed25519.PrivateKey)
		if !ok {
			return nil, errors.New("dnssec: algorithm 15 (Ed25519) requires an ed25519.PrivateKey")
		}
		return ed25519.Sign(priv, preimage), nil
	case AlgorithmRSASHA256:
		priv, ok := key.PrivateKey.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("dnssec: algorithm 8 (RSASHA256) requires an *rsa.PrivateKey")
		}
		digest := sha256.Sum256(preimage)
		return rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	case AlgorithmRSASHA512:
		priv, ok := key.PrivateKey.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("dnssec: algorithm 10 (RSASHA512) requires an *rsa.PrivateKey")
		}
		digest := sha512.Sum512(preimage)
		return rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA512, digest[:])
	case AlgorithmED448:
		return nil, errors.New("dnssec: algorithm 16 (Ed448) is not supported by the Go standard library")
	default:
		return nil, fmt.Errorf("dnssec: unsupported signing algorithm %d", key.Algorithm)
	}
}

func verifyBytes(algorithm uint8, pubKey, preimage, signature []byte) error {
	switch algorithm {
	case AlgorithmED25519:
		if len(pubKey) != ed25519.PublicKeySize {
			return errors.New("dnssec: malformed Ed25519 public key")
		}
		if !ed25519.Verify(ed25519.PublicKey(pubKey), preimage, signature) {
			return errors.New("dnssec: Ed25519 signature verification failed")
		}
		return nil
	case AlgorithmRSASHA256:
		pub, err := parseRSAPublicKey(pubKey)
		if err != nil {
			return err
		}
		digest := sha256.Sum256(preimage)
		return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature)
	case AlgorithmRSASHA512:
		pub, err := parseRSAPublicKey(pubKey)
		if err != nil {
			return err
		}
		digest := sha512.Sum512(preimage)
		return rsa.VerifyPKCS1v15(pub, crypto.SHA512, digest[:], signature)
	default:
		return fmt.Errorf("dnssec: unsupported verification algorithm %d", algorithm)
	}
}

// parseRSAPublicKey decodes the RFC 3110 wire format used by DNSKEY RDATA
// for RSA keys: a one-byte exponent length (or 0 followed by a 2-byte
// length for exponents >= 256), the exponent, then the modulus.
func parseRSAPublicKey(wire []byte) (*rsa.PublicKey, error) {
	if len(wire) < 3 {
		return nil, errors.New("dnssec: truncated RSA public key")
	}
	expLen := int(wire[0])
	off := 1
	if expLen == 0 {
		if len(wire) < 3 {
			return nil, errors.New("dnssec: truncated RSA public key exponent length")
		}
		expLen = int(wire[1])<<8 | int(wire[2])
		off = 3
	}
	if off+expLen > len(wire) {
		return nil, errors.New("dnssec: truncated RSA public key exponent")
	}
	e := 0
	for _, b := range wire[off : off+expLen] {
		e = e<<8 | int(b)
	}
	off += expLen
	n := new(big.Int).SetBytes(wire[off:])
	return &rsa.PublicKey{N: n, E: e}, nil
}
