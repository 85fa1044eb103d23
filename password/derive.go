package password

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/argon2"
)

// Derivation cost is deliberately lighter than the interactive hashing
// profile: the derived value is itself fed into the backend's own password
// hashing, so it only needs to be deterministic and non-guessable from the
// phone number without the pepper.
const (
	deriveTime    uint32 = 1
	deriveMemory  uint32 = 16 * 1024
	deriveThreads uint8  = 1
	deriveKeyLen  uint32 = 32
)

// Deriver produces the deterministic synthetic password for a phone number.
// The same (phone, pepper) pair always yields the same password, which makes
// backend authentication idempotent across devices and sessions without
// storing anything.
type Deriver struct {
	pepper []byte
}

// NewDeriver returns a Deriver. An empty pepper is accepted but ties account
// access solely to possession of the phone number.
func NewDeriver(pepper []byte) *Deriver {
	return &Deriver{pepper: append([]byte(nil), pepper...)}
}

// Derive returns the synthetic password for a normalized phone number.
func (d *Deriver) Derive(phone string) (string, error) {
	if phone == "" {
		return "", errors.New("empty phone number")
	}

	// Salt is bound to both pepper and phone so two numbers never share a
	// derivation, even with an empty pepper.
	h := sha256.New()
	h.Write(d.pepper)
	h.Write([]byte(phone))
	salt := h.Sum(nil)

	key := argon2.IDKey([]byte(phone), salt, deriveTime, deriveMemory, deriveThreads, deriveKeyLen)
	return base64.RawURLEncoding.EncodeToString(key), nil
}
