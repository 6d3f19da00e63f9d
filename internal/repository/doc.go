// Package repository defines the data access interfaces for lanwatch.
//
// Published inventory snapshots are persisted so that history survives
// restarts and the last inventory can be served before the first round of
// a new process finishes. The implementation is in the sqlite subpackage.
//
// # Schema
//
// Snapshots are stored whole, with devices as a JSON column. A separate
// sightings table keeps one row per address with first and last seen
// times, updated in the same transaction as each snapshot.
//
// # Retention
//
// The store keeps at most the configured number of snapshots and prunes
// older ones on every save. Sightings are never pruned.
package repository
