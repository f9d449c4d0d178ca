/*
Package storage provides BoltDB-backed persistence for dcc's scheduling data:
Project, Build, Bucket and LogFragment records.

# Architecture

	┌──────────────────── BOLTDB STORAGE ──────────────────────┐
	│  BoltStore                                                │
	│   - File: <dataDir>/dcc.db                                │
	│   - Buckets: projects, builds, buckets, log_fragments     │
	│   - Read: db.View()   Write: db.Update()                  │
	└────────────────────────────────────────────────────────────┘

Each bucket is keyed by the entity's ID with a JSON-serialized value. There
are no foreign-key joins: Bucket.BuildID and Bucket.ProjectID are plain
strings, and callers walk from one entity to another via Store lookups
rather than following in-memory pointers.

# Non-terminal bucket invariant

NonTerminalBucketsByProject backs the invariant that at most one
non-terminal Bucket per (project, name) is live across a project's builds. It
is a full scan filtered in memory — acceptable at the scale this system
targets (a handful of concurrent builds per project, not a data warehouse).

# Upsert pattern

Create and Update share the same underlying Put; BoltDB requires no
existence check before an overwrite, so UpdateProject/UpdateBuild/UpdateBucket
are implemented as calls to their Create counterpart.

# Concurrency

BoltDB serializes writers and allows concurrent MVCC-snapshot readers. The
scanner and executor may call the store concurrently from different
goroutines (and different peer processes against independent copies of the
database file in a real deployment); neither relies on in-process locking
here — see pkg/envelope for the reconnect-retry wrapper a peer's bucket
runs go through; the scanner and RPC server call the store directly.
*/
package storage
