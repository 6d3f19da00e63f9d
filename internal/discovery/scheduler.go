package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"lanwatch/internal/adapter"
	"lanwatch/internal/domain"
	"lanwatch/internal/subnet"
)

// HostProber produces the raw record for one address. The record for the
// local address must be built without network I/O.
type HostProber interface {
	Probe(ctx context.Context, addr netip.Addr) domain.RawRecord
}

// Warmer runs the prewarm sweep
type Warmer interface {
	Prewarm(ctx context.Context, rng subnet.Range) PrewarmResult
}

// Round is the unmerged output of one discovery round
type Round struct {
	Range      subnet.Range
	Sweep      []domain.RawRecord // one per sweep hit, source sweep
	Probes     []domain.RawRecord // one per live address, source probe
	Stats      domain.RoundStats
	PrewarmErr error
}

// Scheduler fans probes for the live part of a range out over a bounded pool
type Scheduler struct {
	warmer       Warmer
	prober       HostProber
	workers      int
	retryWorkers int
	log          logrus.FieldLogger
}

// NewScheduler creates a scheduler. workers bounds the first pass,
// retryWorkers the residual pass (1 runs it sequentially).
func NewScheduler(warmer Warmer, prober HostProber, workers, retryWorkers int, log logrus.FieldLogger) *Scheduler {
	if workers < 1 {
		workers = 50
	}
	if retryWorkers < 1 {
		retryWorkers = 1
	}
	return &Scheduler{
		warmer:       warmer,
		prober:       prober,
		workers:      workers,
		retryWorkers: retryWorkers,
		log:          fieldLogger(log),
	}
}

// Run sweeps res.Range, probes every live address, then probes the addresses
// that did not succeed exactly once more. ctx carries the round deadline;
// probes still running when it fires are recorded as timed out. A cancelled
// ctx fails the round with domain.ErrRoundFailed, as does a deadline that
// expires before any remote probe finished.
func (s *Scheduler) Run(ctx context.Context, res subnet.Resolution) (Round, error) {
	round := Round{Range: res.Range}
	log := s.log.WithField("range", res.Range.String())

	pre := s.warmer.Prewarm(ctx, res.Range)
	round.PrewarmErr = pre.Err
	if pre.Fallback && len(pre.Hits) == 0 {
		return round, fmt.Errorf("%w: %w", domain.ErrRoundFailed, pre.Err)
	}

	live := make(map[netip.Addr]struct{}, len(pre.Hits)+1)
	for _, hit := range pre.Hits {
		if _, dup := live[hit.Addr]; dup || !res.Range.Contains(hit.Addr) {
			continue
		}
		live[hit.Addr] = struct{}{}
		round.Sweep = append(round.Sweep, sweepRecord(hit))
	}
	round.Stats.Swept = len(round.Sweep)

	// The local host never waits in the pool, so the round deadline cannot
	// turn it into a timed-out placeholder
	var self *domain.RawRecord
	if res.LocalAddr.IsValid() && res.Range.Contains(res.LocalAddr) {
		rec := s.prober.Probe(ctx, res.LocalAddr)
		self = &rec
		delete(live, res.LocalAddr)
	}

	remote := make([]netip.Addr, 0, len(live))
	for addr := range live {
		remote = append(remote, addr)
	}
	slices.SortFunc(remote, netip.Addr.Compare)

	start := time.Now()
	first, expired := s.pass(ctx, remote, s.workers)
	log.WithFields(logrus.Fields{
		"hosts":    len(remote),
		"expired":  len(expired),
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("First probe pass complete")

	if err := abandoned(ctx, remote, first); err != nil {
		return round, err
	}

	addrs := remote
	if self != nil {
		first[res.LocalAddr] = *self
		addrs = append(addrs, res.LocalAddr)
		slices.SortFunc(addrs, netip.Addr.Compare)
	}
	round.Stats.Probed = len(addrs)

	residual := Residual(addrs, first, expired)
	round.Stats.Retried = len(residual)
	if len(residual) > 0 && ctx.Err() == nil {
		retried, _ := s.pass(ctx, residual, s.retryWorkers)
		for addr, rec := range retried {
			if rec.Outcome.Successful() {
				first[addr] = rec
			}
		}
		log.WithField("hosts", len(residual)).Debug("Residual probe pass complete")
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return round, fmt.Errorf("%w: %w", domain.ErrRoundFailed, ctx.Err())
	}

	round.Probes = make([]domain.RawRecord, 0, len(addrs))
	for _, addr := range addrs {
		rec := first[addr]
		switch rec.Outcome {
		case domain.OutcomeSucceeded, domain.OutcomeHostIsSelf:
			round.Stats.Succeeded++
		case domain.OutcomeTimedOut:
			round.Stats.TimedOut++
		case domain.OutcomeUnreachable:
			round.Stats.Unreachable++
		}
		round.Probes = append(round.Probes, rec)
	}
	return round, nil
}

// abandoned reports a round that must not be published: its context was
// cancelled, or the deadline expired before any remote probe got an answer.
func abandoned(ctx context.Context, remote []netip.Addr, first map[netip.Addr]domain.RawRecord) error {
	if ctx.Err() == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%w: %w", domain.ErrRoundFailed, ctx.Err())
	}
	if len(remote) == 0 {
		return nil
	}
	for _, addr := range remote {
		if first[addr].Outcome != domain.OutcomeTimedOut {
			return nil
		}
	}
	return fmt.Errorf("%w: no host answered before the deadline: %w", domain.ErrRoundFailed, ctx.Err())
}

// Residual returns the live addresses whose first-pass record did not
// succeed, leaving out those that ran into the round deadline
func Residual(live []netip.Addr, first map[netip.Addr]domain.RawRecord, expired []netip.Addr) []netip.Addr {
	var out []netip.Addr
	for _, addr := range live {
		if slices.Contains(expired, addr) {
			continue
		}
		if rec, ok := first[addr]; ok && rec.Outcome.Successful() {
			continue
		}
		out = append(out, addr)
	}
	return out
}

// pass probes addrs with at most width probes in flight. It returns when all
// probes finish or ctx is done, whichever comes first; addresses without a
// result by then get a timed-out placeholder and are listed in expired.
func (s *Scheduler) pass(ctx context.Context, addrs []netip.Addr, width int) (map[netip.Addr]domain.RawRecord, []netip.Addr) {
	var (
		mu      sync.Mutex
		closed  bool
		results = make(map[netip.Addr]domain.RawRecord, len(addrs))
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		g := new(errgroup.Group)
		g.SetLimit(width)
		for _, addr := range addrs {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				rec := s.prober.Probe(ctx, addr)
				mu.Lock()
				defer mu.Unlock()
				if !closed {
					results[addr] = rec
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	closed = true

	out := make(map[netip.Addr]domain.RawRecord, len(addrs))
	var expired []netip.Addr
	for _, addr := range addrs {
		rec, ok := results[addr]
		if !ok {
			rec = domain.NewRawRecord(addr, domain.SourceProbe)
			rec.SetOutcome(domain.OutcomeTimedOut)
			expired = append(expired, addr)
		}
		out[addr] = rec
	}
	return out, expired
}

// sweepRecord turns a sweep hit into a low-rank record. Fields the sweep did
// not report stay absent.
func sweepRecord(hit adapter.SweepHit) domain.RawRecord {
	rec := domain.NewRawRecord(hit.Addr, domain.SourceSweep)
	if hit.HardwareAddr != "" {
		rec.HardwareAddr = domain.HardwareAddrField(hit.HardwareAddr)
	}
	if hit.Hostname != "" {
		rec.Hostname = domain.Known(hit.Hostname)
	}
	if hit.Vendor != "" {
		rec.VendorHint = domain.Known(hit.Vendor)
	}
	return rec
}
