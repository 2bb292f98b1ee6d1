package zone

import (
	"errors"
	"strings"

	"github.com/jroosing/hydradns/internal/dns"
	"github.com/jroosing/hydradns/internal/dnssec"
)

// ErrNoSOA is returned by ApplyUpdate when the zone has no SOA record whose
// serial it can bump.
var ErrNoSOA = errors.New("zone: no SOA record")

// upsertRecordLocked implements the RFC 2136 UPDATE "add" rule (spec.md §4.6):
// if a record with the same owner name, type and class already exists, its
// RData and TTL are replaced; otherwise a new record is appended. The caller
// must already hold z.mu for writing, as ApplyUpdate does, so the whole
// UPDATE applies atomically.
func (z *Zone) upsertRecordLocked(name string, typ uint16, class uint16, ttl uint32, rdata any) {
	key := strings.ToLower(strings.TrimSuffix(name, "."))
	for i, rr := range z.Records {
		if strings.ToLower(strings.TrimSuffix(rr.Name, ".")) == key && rr.Type == typ && rr.Class == class {
			z.Records[i].TTL = ttl
			z.Records[i].RData = rdata
			return
		}
	}
	z.Records = append(z.Records, Record{Name: name, Type: typ, Class: class, TTL: ttl, RData: rdata})
	z.nameIndex[key] = append(z.nameIndex[key], len(z.Records)-1)
}

// bumpSerialLocked increments the zone's SOA serial by exactly one. Must be
// called while the caller holds the zone's exclusive lock.
func (z *Zone) bumpSerialLocked() error {
	key := z.originLower
	for i, rr := range z.Records {
		if strings.ToLower(strings.TrimSuffix(rr.Name, ".")) != key || rr.Type != uint16(dns.TypeSOA) {
			continue
		}
		wire, ok := rr.RData.([]byte)
		if !ok {
			return ErrNoSOA
		}
		off := 0
		soa, err := dns.ParseSOARData(wire, &off, 0, len(wire))
		if err != nil {
			return err
		}
		soa.Serial++
		newWire, err := soa.MarshalRData()
		if err != nil {
			return err
		}
		z.Records[i].RData = newWire
		return nil
	}
	return ErrNoSOA
}

// ApplyUpdate applies a batch of UPDATE-section record changes and bumps
// the SOA serial exactly once, under the zone's exclusive lock, so a
// concurrent reader never observes a partially-applied UPDATE. changes
// that fail validation abort the whole batch with no mutation applied,
// per spec.md §4.6 ("the whole operation is logically atomic").
func (z *Zone) ApplyUpdate(changes []UpdateChange) error {
	z.mu.Lock()
	defer z.mu.Unlock()

	for _, c := range changes {
		if c.Name == "" {
			return errors.New("zone: update record missing owner name")
		}
	}
	for _, c := range changes {
		z.upsertRecordLocked(c.Name, c.Type, c.Class, c.TTL, c.RData)
	}
	return z.bumpSerialLocked()
}

// UpdateChange is one RFC 2136 UPDATE-section record addition/replacement,
// already decoded into the zone's native RData representation.
type UpdateChange struct {
	Name  string
	Type  uint16
	Class uint16
	TTL   uint32
	RData any
}

// SetKeys installs the zone's DNSSEC signing keys, replacing any previous
// set. Safe to call concurrently with Lookup/SOA/ActiveKeys.
func (z *Zone) SetKeys(keys []dnssec.Key) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.Keys = keys
}
