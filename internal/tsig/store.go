package tsig

import (
	"encoding/base64"
	"fmt"

	"github.com/jroosing/hydradns/internal/dns"
)

// MemoryKeyStore is a fixed, in-memory KeyStore loaded once at startup from
// configuration. It matches the teacher's pattern of building small
// read-mostly lookup maps for config-sourced data (see the custom-DNS host
// map in internal/resolvers).
type MemoryKeyStore struct {
	keys map[string]Key
}

// NewMemoryKeyStore decodes name/algorithm/base64-secret triples into a
// ready-to-use KeyStore. Entries with an undecodable secret are skipped and
// returned in the error so the caller can log them without aborting startup.
func NewMemoryKeyStore(entries []KeyConfig) (*MemoryKeyStore, error) {
	store := &MemoryKeyStore{keys: make(map[string]Key, len(entries))}

	var skipped []error
	for _, e := range entries {
		secret, err := base64.StdEncoding.DecodeString(e.Secret)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("tsig key %q: invalid base64 secret: %w", e.Name, err))
			continue
		}
		name := dns.NormalizeName(e.Name)
		store.keys[name] = Key{Name: name, Algorithm: e.Algorithm, Secret: secret}
	}

	if len(skipped) > 0 {
		return store, fmt.Errorf("%d tsig key(s) skipped: %v", len(skipped), skipped)
	}
	return store, nil
}

// KeyConfig is the minimal shape NewMemoryKeyStore needs from a configured
// TSIG key, decoupling this package from internal/config.
type KeyConfig struct {
	Name      string
	Algorithm string
	Secret    string
}

// GetByName implements KeyStore.
func (s *MemoryKeyStore) GetByName(name string) (Key, bool, error) {
	if s == nil {
		return Key{}, false, nil
	}
	k, ok := s.keys[dns.NormalizeName(name)]
	if !ok {
		return Key{}, false, nil
	}
	return k, true, nil
}
