package discovery

import (
	"context"
	"net/netip"
	"time"

	"github.com/sirupsen/logrus"

	"lanwatch/internal/adapter"
	"lanwatch/internal/domain"
)

// PortScanner runs the liveness probe for one host
type PortScanner interface {
	Probe(ctx context.Context, addr netip.Addr) adapter.PortScan
}

// HostnameResolver performs reverse lookups
type HostnameResolver interface {
	Lookup(ctx context.Context, addr netip.Addr) (string, error)
}

// VendorLookup maps a hardware address to its manufacturer
type VendorLookup interface {
	Lookup(mac string) (string, bool)
}

// HardwareRetry re-learns the hardware address of a single host
type HardwareRetry interface {
	Retry(ctx context.Context, addr netip.Addr) (string, bool)
}

// Self describes the machine running discovery
type Self struct {
	Addr         netip.Addr
	HardwareAddr string
	Identity     adapter.LocalIdentity
}

// ProberDeps are the collaborators a Prober queries. Fingerprints and
// Vendors may be nil.
type ProberDeps struct {
	Ports        PortScanner
	Fingerprints adapter.Fingerprinter
	DNS          HostnameResolver
	Neighbors    adapter.NeighborCache
	Retry        HardwareRetry
	Vendors      VendorLookup
}

// Prober builds a raw record for one address
type Prober struct {
	self    Self
	deps    ProberDeps
	timeout time.Duration
	log     logrus.FieldLogger
}

// NewProber creates a prober. timeout bounds all network work for one host.
func NewProber(self Self, deps ProberDeps, timeout time.Duration, log logrus.FieldLogger) *Prober {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Prober{
		self:    self,
		deps:    deps,
		timeout: timeout,
		log:     fieldLogger(log),
	}
}

// Probe interrogates addr. It always returns a record with the outcome set;
// failed sub-steps leave their field unknown.
func (p *Prober) Probe(ctx context.Context, addr netip.Addr) domain.RawRecord {
	if p.self.Addr.IsValid() && addr == p.self.Addr {
		return p.selfRecord()
	}

	hostCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rec := domain.NewRawRecord(addr, domain.SourceProbe)
	log := p.log.WithField("addr", addr.String())

	scan := p.deps.Ports.Probe(hostCtx, addr)
	var fp adapter.Fingerprint
	if scan.Alive() {
		rec.OpenPorts = domain.Known(scan.Open)
		rec.OSFingerprint, fp = p.fingerprint(hostCtx, adapter.Target{Addr: addr, OpenPorts: scan.Open})
	} else {
		rec.OpenPorts = domain.Unknown[domain.PortSet]()
	}

	rec.Hostname = p.hostname(hostCtx, addr, fp.Hostname)
	rec.HardwareAddr = p.hardwareAddr(hostCtx, addr, fp.HardwareAddr)
	rec.VendorHint = p.vendor(rec.HardwareAddr, fp.Vendor)

	outcome := scan.Outcome
	if ctx.Err() != nil {
		outcome = domain.OutcomeTimedOut
	}
	rec.SetOutcome(outcome)

	log.WithFields(logrus.Fields{
		"outcome": rec.Outcome,
		"ports":   scan.Open.String(),
		"os":      rec.OSFingerprint.OrElse(domain.OSFingerprint{}).Name,
	}).Debug("Probed host")
	return rec
}

func (p *Prober) selfRecord() domain.RawRecord {
	rec := domain.NewRawRecord(p.self.Addr, domain.SourceProbe)
	rec.HardwareAddr = domain.HardwareAddrField(p.self.HardwareAddr)
	if name := p.self.Identity.Hostname; name != "" {
		rec.Hostname = domain.Known(name)
	} else {
		rec.Hostname = domain.Unknown[string]()
	}
	if p.self.Identity.OS.Name != "" {
		rec.OSFingerprint = domain.Known(p.self.Identity.OS)
	}
	rec.VendorHint = p.vendor(rec.HardwareAddr, "")
	rec.SetOutcome(domain.OutcomeHostIsSelf)
	return rec
}

func (p *Prober) fingerprint(ctx context.Context, target adapter.Target) (domain.Field[domain.OSFingerprint], adapter.Fingerprint) {
	if p.deps.Fingerprints == nil {
		return domain.Field[domain.OSFingerprint]{}, adapter.Fingerprint{}
	}
	fp, err := p.deps.Fingerprints.Fingerprint(ctx, target)
	if err != nil {
		p.log.WithError(err).WithField("addr", target.Addr.String()).Debug("no OS fingerprint")
		return domain.Unknown[domain.OSFingerprint](), fp
	}
	return domain.Known(fp.OS), fp
}

// hostname prefers reverse DNS and falls back to a name the fingerprint
// source reported
func (p *Prober) hostname(ctx context.Context, addr netip.Addr, learned string) domain.Field[string] {
	if p.deps.DNS != nil {
		name, err := p.deps.DNS.Lookup(ctx, addr)
		if err == nil && name != "" {
			return domain.Known(name)
		}
	}
	if learned != "" {
		return domain.Known(learned)
	}
	return domain.Unknown[string]()
}

func (p *Prober) hardwareAddr(ctx context.Context, addr netip.Addr, learned string) domain.Field[string] {
	if mac := domain.HardwareAddrField(learned); mac.IsKnown() {
		return mac
	}
	if p.deps.Neighbors != nil {
		if mac, ok := p.deps.Neighbors.Lookup(ctx, addr); ok {
			if f := domain.HardwareAddrField(mac); f.IsKnown() {
				return f
			}
		}
	}
	if p.deps.Retry != nil && ctx.Err() == nil {
		if mac, ok := p.deps.Retry.Retry(ctx, addr); ok {
			return domain.HardwareAddrField(mac)
		}
	}
	return domain.Unknown[string]()
}

func (p *Prober) vendor(mac domain.Field[string], learned string) domain.Field[string] {
	if hw, ok := mac.Get(); ok && p.deps.Vendors != nil {
		if v, ok := p.deps.Vendors.Lookup(hw); ok {
			return domain.Known(v)
		}
	}
	if learned != "" {
		return domain.Known(learned)
	}
	return domain.Unknown[string]()
}
