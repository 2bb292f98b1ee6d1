// Package tsig implements RFC 8945 transaction signature computation and
// verification for DDNS UPDATE messages.
package tsig

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"errors"
	"fmt"
	"hash"

	"github.com/jroosing/hydradns/internal/dns"
)

// Algorithm name strings as they appear on the wire (case-insensitive,
// conventionally lowercase dotted names per RFC 8945 Appendix A).
const (
	AlgHMACSHA256 = "hmac-sha256"
	AlgHMACSHA384 = "hmac-sha384"
	AlgHMACSHA512 = "hmac-sha512"
	AlgHMACSHA1   = "hmac-sha1"
	AlgHMACMD5    = "hmac-md5.sig-alg.reg.int"
)

// Key is a named shared secret used to authenticate DDNS updates.
type Key struct {
	Name      string
	Algorithm string
	Secret    []byte // raw secret bytes (already base64-decoded by the store)
}

// ErrUnknownKey means the TSIG key-name on the wire has no configured secret.
var ErrUnknownKey = errors.New("tsig: unknown key name")

// ErrRejectedAlgorithm means the algorithm is not accepted at all (hmac-md5).
var ErrRejectedAlgorithm = errors.New("tsig: hmac-md5 is rejected")

// ErrBadSignature means the MAC did not verify.
var ErrBadSignature = errors.New("tsig: signature verification failed")

// KeyStore resolves a TSIG key by name. Implemented by the persistence
// layer (internal/database).
type KeyStore interface {
	GetByName(name string) (Key, bool, error)
}

// hashFor returns the hash constructor for a TSIG algorithm name, and
// whether the algorithm is accepted for verification at all. hmac-sha1 is
// accepted but should be logged as deprecated by the caller; hmac-md5 is
// never accepted.
func hashFor(algorithm string) (func() hash.Hash, bool, error) {
	switch algorithm {
	case AlgHMACSHA256:
		return sha256.New, false, nil
	case AlgHMACSHA384:
		return sha512.New384, false, nil
	case AlgHMACSHA512:
		return sha512.New, false, nil
	case AlgHMACSHA1:
		return sha1.New, true, nil
	case AlgHMACMD5:
		return nil, false, ErrRejectedAlgorithm
	default:
		return nil, false, fmt.Errorf("tsig: unsupported algorithm %q", algorithm)
	}
}

// Deprecated reports whether algorithm should be logged as weak-but-accepted
// (currently only hmac-sha1).
func Deprecated(algorithm string) bool {
	_, deprecated, err := hashFor(algorithm)
	return err == nil && deprecated
}

// Sign computes the MAC over messageBeforeTSIG || TSIG-RDATA-with-MAC-omitted
// using key.Secret, per RFC 8945 Section 4.3.3.
//
// tsigRR must have MAC already cleared (nil/empty) by the caller; Sign does
// not mutate tsigRR.
func Sign(key Key, messageBeforeTSIG []byte, tsigRR *dns.TSIGRecord) ([]byte, error) {
	mac, _, err := hashFor(key.Algorithm)
	if err != nil {
		return nil, err
	}
	h := hmac.New(mac, key.Secret)
	h.Write(messageBeforeTSIG)

	rdataForMAC, err := macSigningRData(tsigRR)
	if err != nil {
		return nil, err
	}
	h.Write(rdataForMAC)
	return h.Sum(nil), nil
}

// Verify recomputes the MAC over messageBeforeTSIG and the TSIG RDATA (with
// the MAC field cleared) and compares it against tsigRR.MAC in constant
// time. It looks the key up by tsigRR.Header().Name via store.
func Verify(store KeyStore, messageBeforeTSIG []byte, tsigRR *dns.TSIGRecord) error {
	keyName := dns.NormalizeName(tsigRR.Header().Name)
	key, ok, err := store.GetByName(keyName)
	if err != nil {
		return fmt.Errorf("tsig: key lookup: %w", err)
	}
	if !ok {
		return ErrUnknownKey
	}
	if _, _, err := hashFor(key.Algorithm); err != nil {
		return err
	}

	received := tsigRR.MAC
	unsigned := *tsigRR
	unsigned.MAC = nil

	expected, err := Sign(key, messageBeforeTSIG, &unsigned)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(expected, received) != 1 {
		return ErrBadSignature
	}
	return nil
}

// macSigningRData builds the "TSIG Variables" input per RFC 8945 Section
// 4.3.3: NAME, CLASS, TTL (all from the RR itself), then the algorithm
// name, time-signed, fudge, error, other-data (MAC and MAC-length are
// excluded — that is the thing being authenticated).
func macSigningRData(r *dns.TSIGRecord) ([]byte, error) {
	h := r.Header()
	ownerWire, err := dns.EncodeName(h.Name)
	if err != nil {
		return nil, err
	}
	algWire, err := dns.EncodeName(r.AlgorithmName)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(ownerWire)+8+len(algWire)+16+len(r.OtherData))
	out = append(out, ownerWire...)
	out = append(out, byte(h.Class>>8), byte(h.Class))
	out = append(out, byte(h.TTL>>24), byte(h.TTL>>16), byte(h.TTL>>8), byte(h.TTL))
	out = append(out, algWire...)
	out = append(out,
		byte(r.TimeSigned>>40), byte(r.TimeSigned>>32),
		byte(r.TimeSigned>>24), byte(r.TimeSigned>>16), byte(r.TimeSigned>>8), byte(r.TimeSigned),
	)
	out = append(out, byte(r.Fudge>>8), byte(r.Fudge))
	out = append(out, byte(r.Error>>8), byte(r.Error))
	out = append(out, byte(len(r.OtherData)>>8), byte(len(r.OtherData)))
	out = append(out, r.OtherData...)
	return out, nil
}
