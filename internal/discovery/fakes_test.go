package discovery

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"lanwatch/internal/adapter"
	"lanwatch/internal/domain"
	"lanwatch/internal/subnet"
)

var errUnreachable = errors.New("unreachable")

type fakeSweeper struct {
	hits []adapter.SweepHit
	err  error
}

func (f *fakeSweeper) Name() string { return "fake" }

func (f *fakeSweeper) Sweep(ctx context.Context, prefix netip.Prefix) ([]adapter.SweepHit, error) {
	return f.hits, f.err
}

type fakeNeighbors struct {
	mu      sync.Mutex
	entries map[netip.Addr]string
	err     error
	// learn is merged into entries when a ping happens
	learn map[netip.Addr]string
}

func (f *fakeNeighbors) Entries(ctx context.Context) (map[netip.Addr]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[netip.Addr]string, len(f.entries))
	for k, v := range f.entries {
		out[k] = v
	}
	return out, nil
}

func (f *fakeNeighbors) Lookup(ctx context.Context, addr netip.Addr) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mac, ok := f.entries[addr]
	return mac, ok
}

// Ping implements Pinger by moving learned entries into the cache
func (f *fakeNeighbors) Ping(ctx context.Context, addr netip.Addr) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mac, ok := f.learn[addr]
	if !ok {
		return 0, errUnreachable
	}
	if f.entries == nil {
		f.entries = make(map[netip.Addr]string)
	}
	f.entries[addr] = mac
	return time.Millisecond, nil
}

type fakePorts struct {
	scans map[netip.Addr]adapter.PortScan
	calls atomic.Int32
}

func (f *fakePorts) Probe(ctx context.Context, addr netip.Addr) adapter.PortScan {
	f.calls.Add(1)
	if scan, ok := f.scans[addr]; ok {
		return scan
	}
	return adapter.PortScan{Outcome: domain.OutcomeTimedOut}
}

type fakeFingerprinter struct {
	results map[netip.Addr]adapter.Fingerprint
	calls   atomic.Int32
}

func (f *fakeFingerprinter) Name() string { return "fake" }

func (f *fakeFingerprinter) Fingerprint(ctx context.Context, target adapter.Target) (adapter.Fingerprint, error) {
	f.calls.Add(1)
	if fp, ok := f.results[target.Addr]; ok {
		return fp, nil
	}
	return adapter.Fingerprint{}, adapter.ErrNoFingerprint
}

type fakeDNS map[netip.Addr]string

func (f fakeDNS) Lookup(ctx context.Context, addr netip.Addr) (string, error) {
	if name, ok := f[addr]; ok {
		return name, nil
	}
	return "", adapter.ErrNoPTR
}

type fakeVendors map[string]string

func (f fakeVendors) Lookup(mac string) (string, bool) {
	v, ok := f[mac[:8]]
	return v, ok
}

type fakeWarmer struct {
	result PrewarmResult
}

func (f fakeWarmer) Prewarm(ctx context.Context, rng subnet.Range) PrewarmResult {
	return f.result
}

// scriptedProber returns the outcomes listed per address, one per attempt.
// Addresses listed in block wait for the context instead.
type scriptedProber struct {
	mu       sync.Mutex
	script   map[netip.Addr][]domain.RawRecord
	attempts map[netip.Addr]int
	block    map[netip.Addr]bool

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	delay       time.Duration
}

func newScriptedProber() *scriptedProber {
	return &scriptedProber{
		script:   make(map[netip.Addr][]domain.RawRecord),
		attempts: make(map[netip.Addr]int),
		block:    make(map[netip.Addr]bool),
	}
}

func (p *scriptedProber) add(addr string, outcomes ...domain.ProbeOutcome) {
	a := netip.MustParseAddr(addr)
	for _, o := range outcomes {
		rec := domain.NewRawRecord(a, domain.SourceProbe)
		rec.SetOutcome(o)
		p.script[a] = append(p.script[a], rec)
	}
}

func (p *scriptedProber) Probe(ctx context.Context, addr netip.Addr) domain.RawRecord {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		m := p.maxInFlight.Load()
		if n <= m || p.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	p.mu.Lock()
	attempt := p.attempts[addr]
	p.attempts[addr]++
	blocked := p.block[addr]
	var rec domain.RawRecord
	if script := p.script[addr]; attempt < len(script) {
		rec = script[attempt]
	} else {
		rec = domain.NewRawRecord(addr, domain.SourceProbe)
		rec.SetOutcome(domain.OutcomeSucceeded)
	}
	p.mu.Unlock()

	if blocked {
		<-ctx.Done()
		rec = domain.NewRawRecord(addr, domain.SourceProbe)
		rec.SetOutcome(domain.OutcomeTimedOut)
		return rec
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	return rec
}

func (p *scriptedProber) attemptsFor(addr string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts[netip.MustParseAddr(addr)]
}

func hits(addrs ...string) []adapter.SweepHit {
	out := make([]adapter.SweepHit, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, adapter.SweepHit{Addr: netip.MustParseAddr(a)})
	}
	return out
}
