// Package preflight probes what the current process is allowed to do on the
// network and adjusts the discovery configuration to match.
//
// Probes are cheap and local: they never touch another host. A failed probe
// downgrades a feature instead of stopping discovery, so an unprivileged run
// still produces an inventory, just with less detail.
package preflight

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"lanwatch/internal/config"
)

// Check names
const (
	CheckRoot          = "root"
	CheckRawSocket     = "raw_socket"
	CheckNmap          = "nmap"
	CheckPing          = "ping"
	CheckNeighborTable = "neighbor_table"
)

// Check is the result of one probe
type Check struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

// Report collects every check from one preflight run
type Report struct {
	Checks []Check `json:"checks"`
}

// OK reports whether the named check passed. Unknown names count as failed.
func (r Report) OK(name string) bool {
	for _, c := range r.Checks {
		if c.Name == name {
			return c.OK
		}
	}
	return false
}

// Probes holds the probe functions. Tests replace them.
type Probes struct {
	Root          func() Check
	RawSocket     func() Check
	Nmap          func(ctx context.Context) Check
	Ping          func() Check
	NeighborTable func() Check
}

// SystemProbes returns probes that inspect the running host
func SystemProbes() Probes {
	return Probes{
		Root:          probeRoot,
		RawSocket:     probeRawSocket,
		Nmap:          probeNmap,
		Ping:          probePing,
		NeighborTable: probeNeighborTable,
	}
}

// Run executes every probe
func (p Probes) Run(ctx context.Context) Report {
	return Report{Checks: []Check{
		p.Root(),
		p.RawSocket(),
		p.Nmap(ctx),
		p.Ping(),
		p.NeighborTable(),
	}}
}

// Adjust turns off configured features the report says cannot work and
// returns a note for each change. The sweep falls back to nmap, and to the
// neighbor table when nmap is missing too.
func (r Report) Adjust(cfg *config.Config) []string {
	var notes []string
	hasNmap := r.OK(CheckNmap)

	fallback := config.SweepNeighbor
	if hasNmap {
		fallback = config.SweepNmap
	}

	switch cfg.Discovery.Sweep {
	case config.SweepARP:
		if !r.OK(CheckRawSocket) {
			cfg.Discovery.Sweep = fallback
			notes = append(notes, "arp sweep needs raw socket access, using "+string(fallback)+" sweep")
		}
	case config.SweepNmap:
		if !hasNmap {
			cfg.Discovery.Sweep = config.SweepNeighbor
			notes = append(notes, "nmap not found, sweeping from the neighbor table only")
		}
	}

	if cfg.Fingerprint.Nmap.Enabled && !hasNmap {
		cfg.Fingerprint.Nmap.Enabled = false
		notes = append(notes, "nmap not found, nmap fingerprinting disabled")
	}
	if cfg.Fingerprint.Nmap.Enabled && cfg.Fingerprint.Nmap.OSDetection && !r.OK(CheckRoot) {
		cfg.Fingerprint.Nmap.OSDetection = false
		notes = append(notes, "nmap OS detection needs root, using service detection only")
	}
	return notes
}

// Apply runs the probes, adjusts cfg and logs every change
func Apply(ctx context.Context, probes Probes, cfg *config.Config, log logrus.FieldLogger) Report {
	report := probes.Run(ctx)
	for _, c := range report.Checks {
		log.WithFields(logrus.Fields{"check": c.Name, "ok": c.OK}).Debug(c.Detail)
	}
	for _, note := range report.Adjust(cfg) {
		log.Warn(note)
	}
	return report
}

func probeRoot() Check {
	euid := os.Geteuid()
	if euid == 0 {
		return Check{Name: CheckRoot, OK: true, Detail: "running as root"}
	}
	if euid < 0 {
		return Check{Name: CheckRoot, Detail: "effective uid not available on " + runtime.GOOS}
	}
	return Check{Name: CheckRoot, Detail: "running unprivileged"}
}

func probeRawSocket() Check {
	// Needs CAP_NET_RAW or root
	fd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_RAW, syscall.IPPROTO_ICMP)
	if err != nil {
		return Check{Name: CheckRawSocket, Detail: "cannot create raw socket: " + err.Error()}
	}
	syscall.Close(fd)
	return Check{Name: CheckRawSocket, OK: true, Detail: "created ICMP raw socket"}
}

func probeNmap(ctx context.Context) Check {
	path, err := exec.LookPath("nmap")
	if err != nil {
		return Check{Name: CheckNmap, Detail: "nmap not in PATH"}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return Check{Name: CheckNmap, Detail: path + " --version failed: " + err.Error()}
	}
	version, _, _ := strings.Cut(string(output), "\n")
	return Check{Name: CheckNmap, OK: true, Detail: strings.TrimSpace(version)}
}

func probePing() Check {
	path, err := exec.LookPath("ping")
	if err != nil {
		return Check{Name: CheckPing, Detail: "ping not in PATH, hardware address retry disabled"}
	}
	return Check{Name: CheckPing, OK: true, Detail: path}
}

func probeNeighborTable() Check {
	if runtime.GOOS == "linux" {
		if _, err := os.ReadFile("/proc/net/arp"); err != nil {
			return Check{Name: CheckNeighborTable, Detail: "cannot read /proc/net/arp: " + err.Error()}
		}
		return Check{Name: CheckNeighborTable, OK: true, Detail: "/proc/net/arp"}
	}
	if _, err := exec.LookPath("arp"); err != nil {
		return Check{Name: CheckNeighborTable, Detail: "arp not in PATH"}
	}
	return Check{Name: CheckNeighborTable, OK: true, Detail: "arp -an"}
}
