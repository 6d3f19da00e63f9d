// Package discovery runs one discovery round: the prewarm sweep, a bounded
// pool of per-host probes and a single residual retry pass.
//
// The Prober never fails a record. Each sub-step (port probe, OS fingerprint,
// reverse DNS, hardware address, vendor) yields a domain.Field that is either
// known or unknown, and the probe outcome is written exactly once.
package discovery
