package adapter

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"lanwatch/internal/domain"
)

// dialResult is the reachability verdict for a single port
type dialResult int

const (
	dialOpen dialResult = iota
	dialRefused
	dialTimeout
	dialUnreachable
)

// PortScan is the result of a TCP connect probe over a port list
type PortScan struct {
	Open    domain.PortSet
	Outcome domain.ProbeOutcome
}

// Alive reports whether any port answered, open or refused
func (s PortScan) Alive() bool { return s.Outcome == domain.OutcomeSucceeded }

// PortProber checks reachability with plain TCP connects. An open port or a
// refused connection both prove the host is up.
type PortProber struct {
	ports       []int
	timeout     time.Duration
	parallelism int
	dial        func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewPortProber creates a prober over ports with a per-dial timeout
func NewPortProber(ports []int, timeout time.Duration) *PortProber {
	if timeout <= 0 {
		timeout = time.Second
	}
	dialer := &net.Dialer{Timeout: timeout}
	return &PortProber{
		ports:       append([]int(nil), ports...),
		timeout:     timeout,
		parallelism: 8,
		dial:        dialer.DialContext,
	}
}

// Probe dials every configured port. The outcome is Succeeded when any port
// answered, Unreachable when the network reported the host unreachable, and
// TimedOut otherwise.
func (p *PortProber) Probe(ctx context.Context, addr netip.Addr) PortScan {
	var (
		mu          sync.Mutex
		open        []int
		answered    bool
		unreachable bool
	)

	g := new(errgroup.Group)
	g.SetLimit(p.parallelism)
	for _, port := range p.ports {
		g.Go(func() error {
			res := p.dialPort(ctx, addr, port)
			mu.Lock()
			defer mu.Unlock()
			switch res {
			case dialOpen:
				open = append(open, port)
				answered = true
			case dialRefused:
				answered = true
			case dialUnreachable:
				unreachable = true
			}
			return nil
		})
	}
	_ = g.Wait()

	scan := PortScan{Open: domain.NewPortSet(open...)}
	switch {
	case answered:
		scan.Outcome = domain.OutcomeSucceeded
	case unreachable && ctx.Err() == nil:
		scan.Outcome = domain.OutcomeUnreachable
	default:
		scan.Outcome = domain.OutcomeTimedOut
	}
	return scan
}

func (p *PortProber) dialPort(ctx context.Context, addr netip.Addr, port int) dialResult {
	if ctx.Err() != nil {
		return dialTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dial(ctx, "tcp", net.JoinHostPort(addr.String(), strconv.Itoa(port)))
	if err == nil {
		conn.Close()
		return dialOpen
	}
	return classifyDialError(err)
}

func classifyDialError(err error) dialResult {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET):
		return dialRefused
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH), errors.Is(err, syscall.EHOSTDOWN):
		return dialUnreachable
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return dialTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return dialTimeout
	}
	return dialUnreachable
}
