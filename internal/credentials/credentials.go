// Package credentials holds the stateless primitives the auth engines build on:
// secret hashing, opaque token generation, and numeric one-time codes.
package credentials

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hasher hashes and verifies secrets (passwords and OTP codes) with bcrypt.
type Hasher struct {
	cost int
}

func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) Hash(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether secret matches the stored hash. Any bcrypt error
// (malformed hash included) counts as a mismatch.
func (h *Hasher) Verify(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// GenerateToken returns 32 random bytes hex-encoded, used for remember/verify
// tokens and for the unguessable refresh-token placeholder on revoke.
func GenerateToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("credentials: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// GenerateCode returns a 6-digit numeric one-time code drawn from crypto/rand.
func GenerateCode() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		panic("credentials: crypto/rand unavailable: " + err.Error())
	}
	n := binary.BigEndian.Uint32(b)
	return fmt.Sprintf("%06d", n%900000+100000)
}
