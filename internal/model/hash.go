package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SourceIDsHash computes the primary key of a map row.
//
// Format: hex(SHA256(serialize([strval(v1), strval(v2), ...])))
//
// The input may be Keyed or Positional; both normalise to declared field
// order first, so the two calling conventions always agree. Every value is
// stringified before serialising, which makes 5 and "5" hash identically.
//
// Returns an error wrapping ErrPartialKey when a declared field is missing or
// nil; callers needing partial matches must use per-column conditions.
func SourceIDsHash(fields []FieldSpec, ids IDs) (string, error) {
	ordered, err := Ordered(fields, ids)
	if err != nil {
		return "", fmt.Errorf("source ids hash: %w", err)
	}
	return HashValues(ordered), nil
}

// HashValues hashes a complete, already ordered tuple.
func HashValues(values []any) string {
	strs := make([]any, len(values))
	for i, v := range values {
		strs[i] = Strval(v)
	}
	// Keys are ints and values strings, so serialisation cannot fail.
	data, _ := SerializeList(strs)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MustSourceIDsHash is like SourceIDsHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustSourceIDsHash(fields []FieldSpec, ids IDs) string {
	h, err := SourceIDsHash(fields, ids)
	if err != nil {
		panic(err)
	}
	return h
}
