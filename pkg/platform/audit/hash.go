package audit

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Hasher pseudonymises subject identifiers before they reach a sink.
type Hasher struct {
	key []byte
}

// NewHasher returns a hasher keyed with key. Keys longer than BLAKE2b allows
// are compressed to 32 bytes first. An empty key yields a plain digest.
func NewHasher(key string) *Hasher {
	k := []byte(key)
	if len(k) > blake2b.Size {
		sum := blake2b.Sum256(k)
		k = sum[:]
	}
	return &Hasher{key: k}
}

// Hash returns the hex BLAKE2b-256 digest of value, or "" for an empty value.
func (h *Hasher) Hash(value string) string {
	if value == "" {
		return ""
	}
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// unreachable: NewHasher bounds the key length
		sum := blake2b.Sum256([]byte(value))
		return hex.EncodeToString(sum[:])
	}
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}
