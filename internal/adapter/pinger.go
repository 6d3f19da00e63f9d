package adapter

import (
	"context"
	"fmt"
	"net/netip"
	"regexp"
	"runtime"
	"strconv"
	"time"
)

var latencyRe = regexp.MustCompile(`time[=<](\d+\.?\d*)\s*ms`)

// Pinger sends a single ICMP echo through the system ping binary. It is used
// to make the kernel resolve and cache a neighbor's hardware address.
type Pinger struct {
	timeout time.Duration
	run     commandRunner
}

// NewPinger creates a pinger that waits at most timeout for a reply
func NewPinger(timeout time.Duration) *Pinger {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Pinger{timeout: timeout, run: execRunner}
}

// Ping sends one echo request and returns the round-trip time, or 0 when
// the reply could not be parsed.
func (p *Pinger) Ping(ctx context.Context, addr netip.Addr) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout+time.Second)
	defer cancel()

	output, err := p.run(ctx, "ping", pingArgs(runtime.GOOS, p.timeout, addr)...)
	if err != nil {
		return 0, fmt.Errorf("ping %s: %w", addr, err)
	}

	if m := latencyRe.FindSubmatch(output); len(m) >= 2 {
		if ms, err := strconv.ParseFloat(string(m[1]), 64); err == nil {
			return time.Duration(ms * float64(time.Millisecond)), nil
		}
	}
	return 0, nil
}

func pingArgs(goos string, timeout time.Duration, addr netip.Addr) []string {
	sec := int(timeout.Seconds())
	if sec < 1 {
		sec = 1
	}
	switch goos {
	case "windows":
		return []string{"-n", "1", "-w", strconv.Itoa(int(timeout.Milliseconds())), addr.String()}
	case "darwin", "freebsd", "openbsd", "netbsd":
		return []string{"-c", "1", "-t", strconv.Itoa(sec), addr.String()}
	default:
		return []string{"-c", "1", "-W", strconv.Itoa(sec), addr.String()}
	}
}
