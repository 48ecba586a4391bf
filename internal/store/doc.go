// Package store provides SQLite-backed single-table storage for all
// meeting entities.
//
// Every entity kind (room state, presence, poll state, votes, meeting
// markers, result snapshots, settings, deadlines) shares one physical
// table of records keyed by (pk, sk), with a free-form kind column as
// the discriminator and an open attribute map as the value. A secondary
// index on (sk, kind) serves inverted lookups ("all records of kind K
// attached to X") without a second table.
//
// # Access Patterns
//
//   - Put/Get/Delete: single-item operations addressed by (pk, sk)
//   - QueryPrimary: all records under one pk, ordered by sk
//   - QuerySecondary: all records under one sk, optionally one kind
//   - QueryPrimaryKindRange: time-bounded scans where sk is a sortable
//     timestamp (meeting result windows)
//
// # Empty-String Sentinel
//
// Genuine empty strings cannot be represented by the original backing
// store, so empty attribute values are remapped to a single space on
// write and reversed on read. Callers see empty strings round-trip.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Each write is a single atomic put; there are no cross-partition
// transactions. Any I/O error is wrapped and reported to the caller.
package store
