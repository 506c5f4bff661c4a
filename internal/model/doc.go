// Package model provides the data model and key codec for migration id maps.
//
// This package contains type definitions and pure functions only. Every other
// internal package imports model; model imports nothing internal.
//
// Key design constraints:
//   - Enum values (Status, RollbackAction, MessageLevel) keep the numeric
//     encoding already present in existing map tables
//   - Source id hashes are byte-compatible with tables written by earlier
//     tooling: SHA-256 over the PHP serialize() form of the stringified tuple
//   - Identifier tuples are accepted positionally (Positional) or by field
//     name (Keyed); both normalise to declared field order
package model
