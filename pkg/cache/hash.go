package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"math"
)

// hashKey generates a cache key by hashing the components.
// The key format is: prefix:hash(parts...)
func hashKey(prefix string, parts ...any) string {
	data, _ := json.Marshal(parts)
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s:%s", prefix, hex.EncodeToString(sum[:]))
}

// Hash returns the hex SHA-256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Digest streams numbers into a SHA-256 without buffering them, for
// fingerprinting large inputs such as sampled grids. Floats are hashed by
// their exact bits, so -0 and 0 differ.
type Digest struct {
	h   hash.Hash
	buf [8]byte
}

// NewDigest returns an empty digest.
func NewDigest() *Digest { return &Digest{h: sha256.New()} }

// Uint64 adds v in little-endian order.
func (d *Digest) Uint64(v uint64) *Digest {
	binary.LittleEndian.PutUint64(d.buf[:], v)
	d.h.Write(d.buf[:])
	return d
}

// Float64 adds the bits of each value.
func (d *Digest) Float64(vs ...float64) *Digest {
	for _, v := range vs {
		d.Uint64(math.Float64bits(v))
	}
	return d
}

// Sum returns the hex digest.
func (d *Digest) Sum() string { return hex.EncodeToString(d.h.Sum(nil)) }
