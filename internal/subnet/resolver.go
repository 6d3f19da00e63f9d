package subnet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"lanwatch/internal/domain"
)

// probeTarget is only used to pick the outbound route; no packets are sent for a UDP dial.
const probeTarget = "8.8.8.8:53"

// Resolution is the outcome of range detection
type Resolution struct {
	Range        Range
	LocalAddr    netip.Addr // invalid when the local address could not be found
	Interface    string     // interface holding LocalAddr, if known
	HardwareAddr string     // MAC of Interface, if known
	Fallback     bool       // DefaultRange was used
}

// InterfaceAddr is one IPv4 address bound to a local interface
type InterfaceAddr struct {
	Name         string
	Addr         netip.Prefix
	HardwareAddr string
	Up           bool
	Loopback     bool
}

// Resolver finds the local IPv4 address and the range around it
type Resolver struct {
	override   netip.Prefix
	log        logrus.FieldLogger
	outbound   func(ctx context.Context) (netip.Addr, error)
	interfaces func() ([]InterfaceAddr, error)
}

// NewResolver creates a resolver. A valid override replaces the detected range
// but the local address is still detected so the host can recognise itself.
func NewResolver(override netip.Prefix, log logrus.FieldLogger) *Resolver {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Resolver{
		override:   override,
		log:        log,
		outbound:   outboundAddr,
		interfaces: systemInterfaces,
	}
}

// Resolve determines the range to sweep. The returned Resolution is always
// usable: on failure it carries DefaultRange and the error wraps
// domain.ErrRangeResolutionFailed.
func (r *Resolver) Resolve(ctx context.Context) (Resolution, error) {
	var res Resolution

	local, iface, detectErr := r.detectLocal(ctx)
	if detectErr == nil {
		res.LocalAddr = local
		res.Interface = iface.Name
		res.HardwareAddr = iface.HardwareAddr
	}

	switch {
	case r.override.IsValid():
		res.Range = NewRange(r.override)
		if detectErr != nil {
			r.log.WithError(detectErr).Debug("local address unknown, self detection disabled")
		}
		return res, nil
	case detectErr == nil:
		res.Range = RangeAround(local)
		r.log.WithFields(logrus.Fields{
			"range":     res.Range.String(),
			"local":     local.String(),
			"interface": res.Interface,
		}).Debug("resolved local subnet")
		return res, nil
	default:
		res.Range = DefaultRange
		res.Fallback = true
		err := fmt.Errorf("%w: %v", domain.ErrRangeResolutionFailed, detectErr)
		r.log.WithError(err).WithField("range", DefaultRange.String()).Warn("using default range")
		return res, err
	}
}

// detectLocal tries the outbound-route address first, then scans interfaces
func (r *Resolver) detectLocal(ctx context.Context) (netip.Addr, InterfaceAddr, error) {
	ifaces, ifaceErr := r.interfaces()

	addr, err := r.outbound(ctx)
	if err == nil && addr.Is4() && !addr.IsLoopback() {
		for _, ia := range ifaces {
			if ia.Addr.Addr() == addr {
				return addr, ia, nil
			}
		}
		return addr, InterfaceAddr{}, nil
	}

	if ifaceErr != nil {
		return netip.Addr{}, InterfaceAddr{}, errors.Join(err, ifaceErr)
	}

	// Prefer private addresses on physical-looking interfaces
	var candidate *InterfaceAddr
	for i := range ifaces {
		ia := ifaces[i]
		if !ia.Up || ia.Loopback || isVirtual(ia.Name) || !ia.Addr.Addr().Is4() {
			continue
		}
		if ia.Addr.Addr().IsPrivate() {
			return ia.Addr.Addr(), ia, nil
		}
		if candidate == nil {
			candidate = &ia
		}
	}
	if candidate != nil {
		return candidate.Addr.Addr(), *candidate, nil
	}

	if err == nil {
		err = errors.New("outbound address is not a usable IPv4 address")
	}
	return netip.Addr{}, InterfaceAddr{}, fmt.Errorf("no usable IPv4 interface: %w", err)
}

// isVirtual skips interfaces commonly created by container runtimes
func isVirtual(name string) bool {
	for _, prefix := range []string{"veth", "docker", "br-", "cni", "flannel", "virbr", "tun", "tap"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func outboundAddr(ctx context.Context) (netip.Addr, error) {
	d := net.Dialer{Timeout: 2 * time.Second}
	conn, err := d.DialContext(ctx, "udp", probeTarget)
	if err != nil {
		return netip.Addr{}, err
	}
	defer conn.Close()

	udp, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return netip.Addr{}, fmt.Errorf("unexpected local address type %T", conn.LocalAddr())
	}
	addr, ok := netip.AddrFromSlice(udp.IP)
	if !ok {
		return netip.Addr{}, fmt.Errorf("invalid local address %s", udp.IP)
	}
	return addr.Unmap(), nil
}

func systemInterfaces() ([]InterfaceAddr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var out []InterfaceAddr
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			ip, _ := netip.AddrFromSlice(ipnet.IP.To4())
			ones, _ := ipnet.Mask.Size()
			out = append(out, InterfaceAddr{
				Name:         iface.Name,
				Addr:         netip.PrefixFrom(ip, ones),
				HardwareAddr: iface.HardwareAddr.String(),
				Up:           iface.Flags&net.FlagUp != 0,
				Loopback:     iface.Flags&net.FlagLoopback != 0,
			})
		}
	}
	return out, nil
}
