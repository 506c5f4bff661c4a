// Package store is the id map of a single migration: the persistent record
// linking every processed source row to the destination row it produced.
//
// Each migration owns two tables:
//   - Map table: one row per source key, with its destination key, status,
//     rollback action, last-imported time and content hash
//   - Message table: diagnostics attached to a source key
//
// # Keys
//
// The map table's primary key is source_ids_hash, the SHA-256 of the
// serialised source key (see model.SourceIDsHash). It is always derived from
// the sourceid columns and never written independently. Saving the same
// source key twice replaces the row in a single upsert, so concurrent saves
// of one key converge on the last writer.
//
// # Failure Modes
//
// Caller mistakes (an empty key on Delete or SetUpdate, undeclared fields on
// a lookup, HighestID on a non-integer destination) return a *Error.
// Malformed rows on save are skipped with a diagnostic to the Messenger
// rather than failing the batch. Counters report 0 for tables that do not
// exist yet and never create them.
//
// # Tables
//
// Tables are created on first use by EnsureTables and upgraded in place when
// an older layout lacks rollback_action, hash or source_ids_hash. Supported
// engines are those in package dialect.
package store
