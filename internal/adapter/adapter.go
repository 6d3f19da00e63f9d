package adapter

import (
	"context"
	"io"
	"net/netip"

	"github.com/sirupsen/logrus"
)

// Sweeper finds live addresses in a range. Running a sweep also leaves the
// kernel neighbor cache populated for the addresses that answered.
type Sweeper interface {
	// Name returns the unique identifier for this sweeper
	Name() string

	// Sweep reports live hosts inside prefix
	Sweep(ctx context.Context, prefix netip.Prefix) ([]SweepHit, error)
}

// NeighborCache reads link-layer addresses the operating system has learned
type NeighborCache interface {
	Entries(ctx context.Context) (map[netip.Addr]string, error)
	Lookup(ctx context.Context, addr netip.Addr) (string, bool)
}

// Name returns the adapter identifier
func (n *NeighborTable) Name() string {
	return "neighbor"
}

var (
	_ Sweeper       = (*NmapAdapter)(nil)
	_ Sweeper       = (*ARPAdapter)(nil)
	_ Sweeper       = (*NeighborTable)(nil)
	_ NeighborCache = (*NeighborTable)(nil)
	_ Fingerprinter = (*NmapAdapter)(nil)
	_ Fingerprinter = (*SNMPAdapter)(nil)
	_ Fingerprinter = (*SSHProbeAdapter)(nil)
	_ Fingerprinter = FingerprintChain(nil)
)

// fieldLogger returns log, or a logger that discards everything when log is nil
func fieldLogger(log logrus.FieldLogger) logrus.FieldLogger {
	if log != nil {
		return log
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
