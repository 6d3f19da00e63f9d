package adapter

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"
	"github.com/sirupsen/logrus"

	"lanwatch/internal/domain"
)

// NmapAdapter drives the nmap binary for two jobs: a ping sweep that
// prewarms the neighbor cache, and per-host OS fingerprinting.
type NmapAdapter struct {
	timing           int
	maxRetries       int
	hostTimeout      time.Duration
	ports            []int
	serviceDetection bool
	osDetection      bool
	log              logrus.FieldLogger
	run              func(ctx context.Context, opts ...nmap.Option) (*nmap.Run, []string, error)
}

// NewNmapAdapter creates a new nmap-based adapter
func NewNmapAdapter(opts ...NmapOption) *NmapAdapter {
	adapter := &NmapAdapter{
		timing:           int(nmap.TimingAggressive),
		maxRetries:       3,
		hostTimeout:      2 * time.Minute,
		ports:            []int{22, 80, 443, 445, 3389, 9100},
		serviceDetection: true,
		osDetection:      false, // Requires root
		log:              fieldLogger(nil),
		run:              runNmap,
	}

	for _, opt := range opts {
		opt(adapter)
	}

	return adapter
}

// Name returns the adapter identifier
func (n *NmapAdapter) Name() string {
	return "nmap"
}

// Available checks if the nmap binary exists and runs
func (n *NmapAdapter) Available(ctx context.Context) bool {
	_, _, err := n.run(ctx, nmap.WithTargets("localhost"), nmap.WithListScan())
	return err == nil
}

// Sweep runs a ping scan (-sn) over prefix. Besides listing live hosts this
// makes the kernel learn their hardware addresses.
func (n *NmapAdapter) Sweep(ctx context.Context, prefix netip.Prefix) ([]SweepHit, error) {
	opts := []nmap.Option{
		nmap.WithTargets(prefix.String()),
		nmap.WithPingScan(),
		nmap.WithTimingTemplate(nmap.Timing(n.timing)),
		nmap.WithMaxRetries(n.maxRetries),
	}

	n.log.WithField("range", prefix.String()).Debug("nmap: starting ping sweep")
	result, warnings, err := n.run(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("nmap sweep %s: %w", prefix, err)
	}
	if len(warnings) > 0 {
		n.log.WithField("range", prefix.String()).Debugf("nmap: warnings: %v", warnings)
	}

	return filterHits(sweepHits(result), prefix), nil
}

// Fingerprint runs OS and service detection against a single host. Ports
// already known to be open are scanned; otherwise the configured list is used.
func (n *NmapAdapter) Fingerprint(ctx context.Context, target Target) (Fingerprint, error) {
	if !n.osDetection && !n.serviceDetection {
		return Fingerprint{}, ErrNotApplicable
	}

	ports := []int(target.OpenPorts)
	if len(ports) == 0 {
		ports = n.ports
	}

	opts := []nmap.Option{
		nmap.WithTargets(target.Addr.String()),
		nmap.WithPorts(joinPorts(ports)),
		nmap.WithSkipHostDiscovery(),
		nmap.WithTimingTemplate(nmap.Timing(n.timing)),
		nmap.WithMaxRetries(n.maxRetries),
		nmap.WithHostTimeout(n.hostTimeout),
	}
	if n.serviceDetection {
		opts = append(opts, nmap.WithServiceInfo())
	}
	if n.osDetection {
		opts = append(opts, nmap.WithOSDetection())
	}

	result, warnings, err := n.run(ctx, opts...)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("nmap fingerprint %s: %w", target.Addr, err)
	}
	if len(warnings) > 0 {
		n.log.WithField("addr", target.Addr.String()).Debugf("nmap: warnings: %v", warnings)
	}
	if result == nil {
		return Fingerprint{}, fmt.Errorf("nmap fingerprint %s: nil scan result", target.Addr)
	}

	for _, host := range result.Hosts {
		if hostIPv4(host) != target.Addr {
			continue
		}
		if fp, ok := fingerprintFromHost(host); ok {
			return fp, nil
		}
	}
	return Fingerprint{}, ErrNoFingerprint
}

func runNmap(ctx context.Context, opts ...nmap.Option) (*nmap.Run, []string, error) {
	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create scanner: %w", err)
	}

	result, warnings, err := scanner.Run()
	var w []string
	if warnings != nil {
		w = *warnings
	}
	if err != nil {
		return nil, w, fmt.Errorf("scan failed: %w", err)
	}
	return result, w, nil
}

// sweepHits converts ping scan results to sweep hits, skipping hosts that are not up
func sweepHits(result *nmap.Run) []SweepHit {
	if result == nil {
		return nil
	}

	var hits []SweepHit
	for _, host := range result.Hosts {
		if host.Status.State != "up" {
			continue
		}
		addr := hostIPv4(host)
		if !addr.IsValid() {
			continue
		}

		hit := SweepHit{Addr: addr}
		hit.HardwareAddr, hit.Vendor = hostMAC(host)
		if len(host.Hostnames) > 0 {
			hit.Hostname = strings.TrimSuffix(host.Hostnames[0].Name, ".")
		}
		hits = append(hits, hit)
	}
	return hits
}

// fingerprintFromHost extracts the OS guess from a scanned host. OS detection
// matches are preferred; the service-reported OS type is a weaker fallback.
func fingerprintFromHost(host nmap.Host) (Fingerprint, bool) {
	var fp Fingerprint
	fp.HardwareAddr, fp.Vendor = hostMAC(host)
	if len(host.Hostnames) > 0 {
		fp.Hostname = strings.TrimSuffix(host.Hostnames[0].Name, ".")
	}

	if len(host.OS.Matches) > 0 {
		best := host.OS.Matches[0]
		fp.OS = osFromMatches(host.OS.Matches)
		for _, class := range best.Classes {
			if class.Vendor != "" {
				fp.OS.Vendor = class.Vendor
				break
			}
		}
		return fp, fp.OS.Name != ""
	}

	for _, port := range host.Ports {
		if port.State.State != "open" || port.Service.OSType == "" {
			continue
		}
		fp.OS = osFromService(port.Service)
		return fp, true
	}

	return fp, false
}

// osFromMatches keeps nmap's match order, which is by decreasing accuracy
func osFromMatches(matches []nmap.OSMatch) domain.OSFingerprint {
	guess := domain.OSFingerprint{
		Name:     matches[0].Name,
		Accuracy: matches[0].Accuracy,
		Source:   "nmap",
	}
	for _, m := range matches {
		if m.Name != "" {
			guess.Candidates = append(guess.Candidates, m.Name)
		}
		// Families such as "Android" or "iOS" often only appear in the class
		for _, class := range m.Classes {
			if class.Family != "" && !strings.Contains(strings.ToLower(m.Name), strings.ToLower(class.Family)) {
				guess.Candidates = append(guess.Candidates, class.Family)
			}
		}
	}
	return guess
}

func osFromService(svc nmap.Service) domain.OSFingerprint {
	name := svc.OSType
	if svc.Product != "" {
		name = fmt.Sprintf("%s (%s)", svc.OSType, svc.Product)
	}
	return domain.OSFingerprint{
		Name:       name,
		Candidates: []string{svc.OSType},
		Source:     "nmap-service",
	}
}

// hostIPv4 returns the host's IPv4 address, or the zero Addr
func hostIPv4(host nmap.Host) netip.Addr {
	for _, addr := range host.Addresses {
		if addr.AddrType == "ipv4" {
			if a, err := netip.ParseAddr(addr.Addr); err == nil {
				return a
			}
		}
	}
	return netip.Addr{}
}

// hostMAC returns the host's MAC address and nmap's vendor guess for it
func hostMAC(host nmap.Host) (string, string) {
	for _, addr := range host.Addresses {
		if addr.AddrType == "mac" {
			return addr.Addr, addr.Vendor
		}
	}
	return "", ""
}

func joinPorts(ports []int) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}
