package adapter

import (
	"context"
	"net/netip"
	"os/exec"
)

// SweepHit is one live address reported by a liveness sweep
type SweepHit struct {
	Addr         netip.Addr
	HardwareAddr string // raw, as reported by the source
	Hostname     string
	Vendor       string
}

// commandRunner runs an external command and returns its stdout
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// filterHits keeps hits inside prefix and drops duplicate addresses, keeping the first
func filterHits(hits []SweepHit, prefix netip.Prefix) []SweepHit {
	seen := make(map[netip.Addr]bool, len(hits))
	out := hits[:0]
	for _, h := range hits {
		if !h.Addr.IsValid() || !prefix.Contains(h.Addr) || seen[h.Addr] {
			continue
		}
		seen[h.Addr] = true
		out = append(out, h)
	}
	return out
}
