package adapter

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"regexp"
	"strings"

	"lanwatch/internal/domain"
)

// DefaultProcARPPath is the Linux neighbor table
const DefaultProcARPPath = "/proc/net/arp"

// NeighborTable reads the operating system's IPv4 neighbor (ARP) cache.
// It prefers /proc/net/arp and falls back to `arp -an` where procfs is missing.
type NeighborTable struct {
	procPath string
	run      commandRunner
}

// NewNeighborTable creates a reader for the system neighbor cache
func NewNeighborTable() *NeighborTable {
	return &NeighborTable{
		procPath: DefaultProcARPPath,
		run:      execRunner,
	}
}

// Entries returns every complete neighbor entry keyed by address.
// Hardware addresses are normalized to lower-case colon-hex.
func (n *NeighborTable) Entries(ctx context.Context) (map[netip.Addr]string, error) {
	data, procErr := os.ReadFile(n.procPath)
	if procErr == nil {
		return parseProcARP(data), nil
	}

	out, err := n.run(ctx, "arp", "-an")
	if err != nil {
		return nil, fmt.Errorf("read neighbor cache: %w", errors.Join(procErr, err))
	}
	return parseARPOutput(out), nil
}

// Lookup returns the hardware address cached for addr
func (n *NeighborTable) Lookup(ctx context.Context, addr netip.Addr) (string, bool) {
	entries, err := n.Entries(ctx)
	if err != nil {
		return "", false
	}
	mac, ok := entries[addr]
	return mac, ok
}

// Sweep reports cached neighbors inside prefix without sending any traffic
func (n *NeighborTable) Sweep(ctx context.Context, prefix netip.Prefix) ([]SweepHit, error) {
	entries, err := n.Entries(ctx)
	if err != nil {
		return nil, err
	}
	hits := make([]SweepHit, 0, len(entries))
	for addr, mac := range entries {
		hits = append(hits, SweepHit{Addr: addr, HardwareAddr: mac})
	}
	return filterHits(hits, prefix), nil
}

// parseProcARP parses /proc/net/arp:
//
//	IP address       HW type     Flags       HW address            Mask     Device
//	192.168.1.1      0x1         0x2         aa:bb:cc:dd:ee:ff     *        eth0
func parseProcARP(data []byte) map[netip.Addr]string {
	entries := make(map[netip.Addr]string)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		addr, err := netip.ParseAddr(fields[0])
		if err != nil {
			continue // header
		}
		// Flags 0x0 marks an incomplete entry
		if fields[2] == "0x0" {
			continue
		}
		if mac, ok := domain.NormalizeHardwareAddr(fields[3]); ok {
			entries[addr] = mac
		}
	}
	return entries
}

// arpLine matches BSD and net-tools output: "? (192.168.1.1) at aa:bb:cc:dd:ee:ff [ether] on eth0"
var arpLine = regexp.MustCompile(`\((\d+\.\d+\.\d+\.\d+)\)\s+at\s+([0-9A-Fa-f:.-]+)`)

// parseARPOutput parses `arp -an` output, skipping "(incomplete)" entries
func parseARPOutput(data []byte) map[netip.Addr]string {
	entries := make(map[netip.Addr]string)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		m := arpLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		addr, err := netip.ParseAddr(m[1])
		if err != nil {
			continue
		}
		if mac, ok := domain.NormalizeHardwareAddr(m[2]); ok {
			entries[addr] = mac
		}
	}
	return entries
}
