// Package adapter wraps the upstream collaborators of a discovery round.
//
// Every collaborator is fallible and carries its own timeout; none of them
// decides what a failure means for a record. That is left to the discovery
// package.
//
// # Sweepers
//
// A Sweeper lists live addresses in a range and, as a side effect, fills the
// kernel neighbor cache. NmapAdapter runs a ping scan, ARPAdapter broadcasts
// raw ARP requests through pcap, and NeighborTable only reads what the cache
// already holds.
//
// # Per-host probes
//
// PortProber decides reachability with TCP connects, ReverseResolver does PTR
// lookups, Pinger nudges the neighbor cache for a single address and
// OUIDatabase maps hardware address prefixes to vendors.
//
// # Fingerprinters
//
// A Fingerprinter produces an OS guess. FingerprintChain tries nmap OS
// detection, the SNMP system group and SSH facts in that order and stops at
// the first answer.
//
// Registry builds all of the above from configuration.
package adapter
