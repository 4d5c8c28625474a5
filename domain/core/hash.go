package core

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Short returns the first 12 hex characters, enough for display.
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// Hasher accumulates input for a Hash.
type Hasher struct {
	w interface {
		io.Writer
		Sum([]byte) []byte
	}
}

// NewHasher returns an empty SHA-256 accumulator.
func NewHasher() *Hasher {
	return &Hasher{w: sha256.New()}
}

// Write appends p to the hashed input.
func (h *Hasher) Write(p []byte) (int, error) {
	return h.w.Write(p)
}

// WriteString appends s to the hashed input.
func (h *Hasher) WriteString(s string) {
	_, _ = h.w.Write([]byte(s))
}

// Sum returns the hash of everything written so far.
func (h *Hasher) Sum() Hash {
	return Hash(hex.EncodeToString(h.w.Sum(nil)))
}
