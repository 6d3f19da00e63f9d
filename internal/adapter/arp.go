package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/sirupsen/logrus"

	"lanwatch/internal/subnet"
)

var broadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ARPAdapter sweeps a range with raw ARP requests. It needs capture
// privileges but sees hosts that drop ICMP and TCP probes.
type ARPAdapter struct {
	iface  string // empty = the interface holding an address in the swept range
	rounds int
	wait   time.Duration
	log    logrus.FieldLogger
	source func(iface string, prefix netip.Prefix) (arpSource, error)
	open   func(iface string) (arpHandle, error)
}

// arpHandle is the capture handle a sweep reads and writes frames through
type arpHandle interface {
	gopacket.PacketDataSource
	WritePacketData(data []byte) error
	LinkType() layers.LinkType
	Close()
}

// arpSource is the interface and addresses requests are sent from
type arpSource struct {
	iface string
	addr  netip.Addr
	mac   net.HardwareAddr
}

// NewARPAdapter creates an ARP sweeper. wait is how long replies are
// collected after each pass.
func NewARPAdapter(iface string, wait time.Duration, log logrus.FieldLogger) *ARPAdapter {
	if wait <= 0 {
		wait = 2 * time.Second
	}
	return &ARPAdapter{
		iface:  iface,
		rounds: 2,
		wait:   wait,
		log:    fieldLogger(log),
		source: findARPSource,
		open:   openARPHandle,
	}
}

// Name returns the adapter identifier
func (a *ARPAdapter) Name() string {
	return "arp"
}

// Sweep broadcasts an ARP request for every host address in prefix, repeats
// the pass once for hosts that missed the first request, and collects replies
// until the wait period after the last pass elapses.
func (a *ARPAdapter) Sweep(ctx context.Context, prefix netip.Prefix) ([]SweepHit, error) {
	src, err := a.source(a.iface, prefix)
	if err != nil {
		return nil, fmt.Errorf("arp sweep: %w", err)
	}

	handle, err := a.open(src.iface)
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	var (
		mu      sync.Mutex
		replies = make(map[netip.Addr]string)
		stop    = make(chan struct{})
		done    = make(chan struct{})
	)

	go func() {
		defer close(done)
		source := gopacket.NewPacketSource(handle, handle.LinkType())
		for {
			select {
			case <-stop:
				return
			default:
			}
			packet, err := source.NextPacket()
			if err != nil {
				continue
			}
			if addr, mac, ok := arpReply(packet); ok {
				mu.Lock()
				replies[addr] = mac
				mu.Unlock()
			}
		}
	}()

	// The collector must stop before the handle closes, on every return path
	var once sync.Once
	shutdown := func() {
		once.Do(func() {
			close(stop)
			<-done
		})
	}
	defer shutdown()

	log := a.log.WithFields(logrus.Fields{"iface": src.iface, "range": prefix.String()})
	for round := 0; round < a.rounds && ctx.Err() == nil; round++ {
		sent := 0
		for addr := range subnet.NewRange(prefix).Hosts() {
			if ctx.Err() != nil {
				break
			}
			if addr == src.addr {
				continue
			}
			mu.Lock()
			_, answered := replies[addr]
			mu.Unlock()
			if answered {
				continue
			}
			frame, err := arpRequest(src, addr)
			if err != nil {
				return nil, err
			}
			if err := handle.WritePacketData(frame); err != nil {
				log.WithError(err).Debugf("arp: send to %s failed", addr)
				continue
			}
			sent++
		}
		log.Debugf("arp: round %d sent %d requests", round+1, sent)

		select {
		case <-ctx.Done():
		case <-time.After(a.wait):
		}
	}

	shutdown()

	mu.Lock()
	defer mu.Unlock()
	hits := make([]SweepHit, 0, len(replies))
	for addr, mac := range replies {
		hits = append(hits, SweepHit{Addr: addr, HardwareAddr: mac})
	}
	return filterHits(hits, prefix), nil
}

func openARPHandle(iface string) (arpHandle, error) {
	handle, err := pcap.OpenLive(iface, 65536, true, 250*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("failed to open device %s: %w", iface, err)
	}
	if err := handle.SetBPFFilter("arp"); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to set BPF filter: %w", err)
	}
	return handle, nil
}

// arpRequest serializes a broadcast who-has frame for dst
func arpRequest(src arpSource, dst netip.Addr) ([]byte, error) {
	from := src.addr.As4()
	target := dst.As4()

	eth := layers.Ethernet{
		SrcMAC:       src.mac,
		DstMAC:       broadcastMAC,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(src.mac),
		SourceProtAddress: from[:],
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    target[:],
	}

	buffer := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	if err := gopacket.SerializeLayers(buffer, opts, &eth, &arp); err != nil {
		return nil, fmt.Errorf("failed to serialize ARP packet: %w", err)
	}
	return buffer.Bytes(), nil
}

// arpReply extracts the sender of an ARP reply
func arpReply(packet gopacket.Packet) (netip.Addr, string, bool) {
	layer := packet.Layer(layers.LayerTypeARP)
	if layer == nil {
		return netip.Addr{}, "", false
	}
	arp, ok := layer.(*layers.ARP)
	if !ok || arp.Operation != layers.ARPReply {
		return netip.Addr{}, "", false
	}
	addr, ok := netip.AddrFromSlice(arp.SourceProtAddress)
	if !ok {
		return netip.Addr{}, "", false
	}
	return addr.Unmap(), net.HardwareAddr(arp.SourceHwAddress).String(), true
}

// findARPSource picks the interface to send from: the named one, or the
// first up, non-loopback interface with an IPv4 address inside prefix.
func findARPSource(name string, prefix netip.Prefix) (arpSource, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return arpSource{}, fmt.Errorf("list interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if name != "" && iface.Name != name {
			continue
		}
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) != 6 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			addr, ok := netip.AddrFromSlice(ipNet.IP.To4())
			if !ok {
				continue
			}
			// A named interface is used even when its address lies outside the range
			if name != "" || prefix.Contains(addr) {
				return arpSource{iface: iface.Name, addr: addr, mac: iface.HardwareAddr}, nil
			}
		}
	}

	if name != "" {
		return arpSource{}, fmt.Errorf("interface %s not usable for ARP", name)
	}
	return arpSource{}, errors.New("no interface with an address in range")
}
