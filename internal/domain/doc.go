// Package domain defines the core types of the lanwatch network inventory.
//
// # Records
//
// RawRecord is what discovery learns about one IPv4 address: hardware
// address, hostname, OS fingerprint, open ports and a vendor hint. Every
// optional field is a Field, which separates "not attempted" (absent) from
// "attempted and failed" (unknown, rendered as "Unknown") from a known value.
// The probe outcome is written once per record.
//
// Device is a RawRecord after classification, carrying a device type, an OS
// label and a vendor label.
//
// # Snapshots
//
// Snapshot is the unit of publication. A new snapshot wholly replaces the
// previous one; snapshots are never mutated after they are published.
//
// # Errors
//
// The discovery error taxonomy lives here as sentinel errors so that every
// layer can wrap and match them without importing each other.
package domain
