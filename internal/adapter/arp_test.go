package adapter

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

func TestARPRequest(t *testing.T) {
	src := arpSource{
		iface: "eth0",
		addr:  netip.MustParseAddr("10.0.0.5"),
		mac:   net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x05},
	}
	frame, err := arpRequest(src, netip.MustParseAddr("10.0.0.9"))
	if err != nil {
		t.Fatalf("arpRequest() error: %v", err)
	}

	packet := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	eth, ok := packet.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	if !ok {
		t.Fatal("frame has no ethernet layer")
	}
	if eth.DstMAC.String() != "ff:ff:ff:ff:ff:ff" {
		t.Errorf("dst mac = %s, want broadcast", eth.DstMAC)
	}

	arp, ok := packet.Layer(layers.LayerTypeARP).(*layers.ARP)
	if !ok {
		t.Fatal("frame has no ARP layer")
	}
	if arp.Operation != layers.ARPRequest {
		t.Errorf("operation = %d, want request", arp.Operation)
	}
	if got := net.IP(arp.DstProtAddress).String(); got != "10.0.0.9" {
		t.Errorf("target = %s, want 10.0.0.9", got)
	}
	if got := net.IP(arp.SourceProtAddress).String(); got != "10.0.0.5" {
		t.Errorf("sender = %s, want 10.0.0.5", got)
	}

	// A request is not a reply
	if _, _, ok := arpReply(packet); ok {
		t.Error("arpReply() accepted a request")
	}
}

// arpReplyFrame builds an ethernet frame carrying an ARP reply from sender
func arpReplyFrame(t *testing.T, sender net.HardwareAddr, from, to netip.Addr) []byte {
	t.Helper()
	self := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x05}
	eth := layers.Ethernet{
		SrcMAC:       sender,
		DstMAC:       self,
		EthernetType: layers.EthernetTypeARP,
	}
	fromIP, toIP := from.As4(), to.As4()
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPReply,
		SourceHwAddress:   []byte(sender),
		SourceProtAddress: fromIP[:],
		DstHwAddress:      []byte(self),
		DstProtAddress:    toIP[:],
	}
	buffer := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buffer, gopacket.SerializeOptions{FixLengths: true}, &eth, &arp); err != nil {
		t.Fatal(err)
	}
	return buffer.Bytes()
}

func TestARPReply(t *testing.T) {
	sender := net.HardwareAddr{0xb8, 0x27, 0xeb, 0x12, 0x34, 0x56}
	frame := arpReplyFrame(t, sender, netip.MustParseAddr("10.0.0.9"), netip.MustParseAddr("10.0.0.5"))

	packet := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	addr, mac, ok := arpReply(packet)
	if !ok {
		t.Fatal("arpReply() rejected a reply")
	}
	if addr != netip.MustParseAddr("10.0.0.9") || mac != "b8:27:eb:12:34:56" {
		t.Errorf("arpReply() = %s, %s", addr, mac)
	}
}

// fakeARPHandle answers with queued frames once a request was written and
// counts reads that happen after Close
type fakeARPHandle struct {
	mu              sync.Mutex
	queued          [][]byte
	written         int
	closed          bool
	readsAfterClose int
}

func (h *fakeARPHandle) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	h.mu.Lock()
	if h.closed {
		h.readsAfterClose++
		h.mu.Unlock()
		return nil, gopacket.CaptureInfo{}, errors.New("handle closed")
	}
	if h.written > 0 && len(h.queued) > 0 {
		frame := h.queued[0]
		h.queued = h.queued[1:]
		h.mu.Unlock()
		return frame, gopacket.CaptureInfo{CaptureLength: len(frame), Length: len(frame)}, nil
	}
	h.mu.Unlock()
	time.Sleep(time.Millisecond)
	return nil, gopacket.CaptureInfo{}, errors.New("read timeout")
}

func (h *fakeARPHandle) WritePacketData(data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.written++
	return nil
}

func (h *fakeARPHandle) LinkType() layers.LinkType { return layers.LinkTypeEthernet }

func (h *fakeARPHandle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
}

func TestARPAdapter_Sweep(t *testing.T) {
	local := netip.MustParseAddr("10.0.0.1")
	peer := netip.MustParseAddr("10.0.0.3")
	peerMAC := net.HardwareAddr{0xb8, 0x27, 0xeb, 0x00, 0x00, 0x03}

	tests := []struct {
		name     string
		cancel   bool
		wantHits int
	}{
		{name: "collects replies", wantHits: 1},
		{name: "cancelled before sending", cancel: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handle := &fakeARPHandle{queued: [][]byte{arpReplyFrame(t, peerMAC, peer, local)}}
			a := NewARPAdapter("eth0", 20*time.Millisecond, nil)
			a.source = func(string, netip.Prefix) (arpSource, error) {
				return arpSource{iface: "eth0", addr: local, mac: net.HardwareAddr{0x02, 0, 0, 0, 0, 1}}, nil
			}
			a.open = func(string) (arpHandle, error) { return handle, nil }

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.cancel {
				cancel()
			}

			got, err := a.Sweep(ctx, netip.MustParsePrefix("10.0.0.0/29"))
			if err != nil {
				t.Fatalf("Sweep() error: %v", err)
			}
			if len(got) != tt.wantHits {
				t.Fatalf("Sweep() = %v, want %d hits", got, tt.wantHits)
			}
			if tt.wantHits > 0 && (got[0].Addr != peer || got[0].HardwareAddr != peerMAC.String()) {
				t.Errorf("hit = %+v", got[0])
			}

			// The collector is gone once Sweep returns
			time.Sleep(10 * time.Millisecond)
			handle.mu.Lock()
			defer handle.mu.Unlock()
			if !handle.closed {
				t.Error("handle not closed")
			}
			if handle.readsAfterClose != 0 {
				t.Errorf("collector read %d times after close", handle.readsAfterClose)
			}
		})
	}
}

func TestARPAdapter_OpenFailure(t *testing.T) {
	a := NewARPAdapter("", time.Millisecond, nil)
	a.source = func(string, netip.Prefix) (arpSource, error) {
		return arpSource{iface: "eth0", addr: netip.MustParseAddr("10.0.0.1")}, nil
	}
	a.open = func(string) (arpHandle, error) { return nil, errors.New("permission denied") }

	if _, err := a.Sweep(context.Background(), netip.MustParsePrefix("10.0.0.0/29")); err == nil {
		t.Error("Sweep() succeeded without a capture handle")
	}
}
