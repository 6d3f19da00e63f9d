package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"lanwatch/internal/adapter"
	"lanwatch/internal/domain"
	"lanwatch/internal/subnet"
)

// Pinger sends a single reachability probe. The reply is irrelevant; the
// point is the neighbor cache entry the exchange leaves behind.
type Pinger interface {
	Ping(ctx context.Context, addr netip.Addr) (time.Duration, error)
}

// PrewarmResult is what the sweep learned about the range
type PrewarmResult struct {
	Hits     []adapter.SweepHit
	Fallback bool  // hits come from the neighbor cache because the sweep failed
	Err      error // wraps domain.ErrPrewarmFailed when Fallback is set
}

// Prewarmer populates the neighbor cache ahead of active probing and
// retries hardware address lookups for single hosts.
type Prewarmer struct {
	sweeper   adapter.Sweeper
	neighbors adapter.NeighborCache
	pinger    Pinger
	log       logrus.FieldLogger
}

// NewPrewarmer creates a prewarmer
func NewPrewarmer(sweeper adapter.Sweeper, neighbors adapter.NeighborCache, pinger Pinger, log logrus.FieldLogger) *Prewarmer {
	return &Prewarmer{
		sweeper:   sweeper,
		neighbors: neighbors,
		pinger:    pinger,
		log:       fieldLogger(log),
	}
}

// Prewarm sweeps rng. A sweep failure is not fatal: the result then holds
// whatever the neighbor cache already knows about the range.
func (p *Prewarmer) Prewarm(ctx context.Context, rng subnet.Range) PrewarmResult {
	log := p.log.WithFields(logrus.Fields{"range": rng.String(), "sweeper": p.sweeper.Name()})
	start := time.Now()

	hits, err := p.sweeper.Sweep(ctx, rng.Prefix())
	if err == nil {
		hits = p.fillHardwareAddrs(ctx, hits)
		log.WithFields(logrus.Fields{
			"hosts":    len(hits),
			"duration": time.Since(start).Round(time.Millisecond),
		}).Info("Prewarm sweep complete")
		return PrewarmResult{Hits: hits}
	}

	res := PrewarmResult{
		Fallback: true,
		Err:      fmt.Errorf("%w: %s: %v", domain.ErrPrewarmFailed, p.sweeper.Name(), err),
	}

	entries, cacheErr := p.neighbors.Entries(ctx)
	if cacheErr != nil {
		res.Err = errors.Join(res.Err, fmt.Errorf("neighbor cache: %w", cacheErr))
	}
	for addr, mac := range entries {
		if rng.Contains(addr) {
			res.Hits = append(res.Hits, adapter.SweepHit{Addr: addr, HardwareAddr: mac})
		}
	}
	slices.SortFunc(res.Hits, func(a, b adapter.SweepHit) int { return a.Addr.Compare(b.Addr) })

	log.WithError(res.Err).WithField("hosts", len(res.Hits)).Warn("Prewarm failed, continuing with neighbor cache")
	return res
}

// fillHardwareAddrs copies MACs from the neighbor cache into hits the
// sweeper returned without one
func (p *Prewarmer) fillHardwareAddrs(ctx context.Context, hits []adapter.SweepHit) []adapter.SweepHit {
	missing := slices.ContainsFunc(hits, func(h adapter.SweepHit) bool { return h.HardwareAddr == "" })
	if !missing {
		return hits
	}
	entries, err := p.neighbors.Entries(ctx)
	if err != nil {
		p.log.WithError(err).Debug("neighbor cache unreadable after sweep")
		return hits
	}
	for i := range hits {
		if hits[i].HardwareAddr == "" {
			hits[i].HardwareAddr = entries[hits[i].Addr]
		}
	}
	return hits
}

// Retry pings addr once and reads its hardware address back from the
// neighbor cache
func (p *Prewarmer) Retry(ctx context.Context, addr netip.Addr) (string, bool) {
	if p.pinger != nil {
		if _, err := p.pinger.Ping(ctx, addr); err != nil {
			p.log.WithError(err).WithField("addr", addr.String()).Debug("retry ping failed")
		}
	}
	return p.neighbors.Lookup(ctx, addr)
}

func fieldLogger(log logrus.FieldLogger) logrus.FieldLogger {
	if log != nil {
		return log
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
