package discovery

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"lanwatch/internal/adapter"
	"lanwatch/internal/domain"
)

func TestProber_Self(t *testing.T) {
	self := Self{
		Addr:         netip.MustParseAddr("10.0.0.1"),
		HardwareAddr: "02:00:00:00:00:01",
		Identity: adapter.LocalIdentity{
			Hostname: "inventory-box",
			OS:       domain.OSFingerprint{Name: "Debian GNU/Linux 12", Source: "local"},
		},
	}
	ports := &fakePorts{}
	fps := &fakeFingerprinter{}
	p := NewProber(self, ProberDeps{Ports: ports, Fingerprints: fps, DNS: fakeDNS{}}, time.Second, nil)

	rec := p.Probe(context.Background(), self.Addr)
	if rec.Outcome != domain.OutcomeHostIsSelf {
		t.Errorf("outcome = %s, want %s", rec.Outcome, domain.OutcomeHostIsSelf)
	}
	if ports.calls.Load() != 0 || fps.calls.Load() != 0 {
		t.Error("self probe must not touch the network")
	}
	if rec.Hostname.OrElse("") != "inventory-box" || rec.HardwareAddr.OrElse("") != "02:00:00:00:00:01" {
		t.Errorf("unexpected local fields %+v", rec)
	}
	if fp, _ := rec.OSFingerprint.Get(); fp.Source != "local" {
		t.Errorf("OS source = %q, want local", fp.Source)
	}
}

func TestProber_Remote(t *testing.T) {
	alive := netip.MustParseAddr("10.0.0.5")
	dead := netip.MustParseAddr("10.0.0.6")
	unreachable := netip.MustParseAddr("10.0.0.7")
	noMAC := netip.MustParseAddr("10.0.0.8")
	retried := netip.MustParseAddr("10.0.0.9")

	ports := &fakePorts{scans: map[netip.Addr]adapter.PortScan{
		alive:       {Open: domain.NewPortSet(22, 80), Outcome: domain.OutcomeSucceeded},
		unreachable: {Outcome: domain.OutcomeUnreachable},
		noMAC:       {Open: domain.NewPortSet(), Outcome: domain.OutcomeSucceeded},
		retried:     {Open: domain.NewPortSet(22), Outcome: domain.OutcomeSucceeded},
	}}
	fps := &fakeFingerprinter{results: map[netip.Addr]adapter.Fingerprint{
		alive:   {OS: domain.OSFingerprint{Name: "Linux 5.4", Source: "nmap"}},
		retried: {OS: domain.OSFingerprint{Name: "Linux 6.1", Source: "ssh"}, Hostname: "pi.lan"},
	}}
	neighbors := &fakeNeighbors{
		entries: map[netip.Addr]string{
			alive: "B8:27:EB:00:00:05",
			dead:  "aa:bb:cc:00:00:06",
		},
		learn: map[netip.Addr]string{retried: "aa:bb:cc:00:11:22"},
	}
	deps := ProberDeps{
		Ports:        ports,
		Fingerprints: fps,
		DNS:          fakeDNS{alive: "nas.lan"},
		Neighbors:    neighbors,
		Retry:        NewPrewarmer(&fakeSweeper{}, neighbors, neighbors, nil),
		Vendors:      fakeVendors{"b8:27:eb": "Raspberry Pi Foundation"},
	}
	p := NewProber(Self{Addr: netip.MustParseAddr("10.0.0.1")}, deps, time.Second, nil)

	type view struct {
		Outcome  domain.ProbeOutcome
		Ports    string
		OS       string
		OSState  domain.FieldState
		Hostname string
		MAC      string
		Vendor   string
	}
	render := func(r domain.RawRecord) view {
		return view{
			Outcome:  r.Outcome,
			Ports:    r.OpenPorts.String(),
			OS:       r.OSFingerprint.OrElse(domain.OSFingerprint{}).Name,
			OSState:  r.OSFingerprint.State(),
			Hostname: r.Hostname.String(),
			MAC:      r.HardwareAddr.String(),
			Vendor:   r.VendorHint.String(),
		}
	}

	tests := []struct {
		name string
		addr netip.Addr
		want view
	}{
		{
			name: "alive host with every field",
			addr: alive,
			want: view{
				Outcome: domain.OutcomeSucceeded, Ports: "22,80", OS: "Linux 5.4", OSState: domain.FieldKnown,
				Hostname: "nas.lan", MAC: "b8:27:eb:00:00:05", Vendor: "Raspberry Pi Foundation",
			},
		},
		{
			name: "timed out host skips fingerprinting",
			addr: dead,
			want: view{
				Outcome: domain.OutcomeTimedOut, Ports: domain.UnknownLabel, OSState: domain.FieldAbsent,
				Hostname: domain.UnknownLabel, MAC: "aa:bb:cc:00:00:06", Vendor: domain.UnknownLabel,
			},
		},
		{
			name: "unreachable host",
			addr: unreachable,
			want: view{
				Outcome: domain.OutcomeUnreachable, Ports: domain.UnknownLabel, OSState: domain.FieldAbsent,
				Hostname: domain.UnknownLabel, MAC: domain.UnknownLabel, Vendor: domain.UnknownLabel,
			},
		},
		{
			name: "alive host with nothing known",
			addr: noMAC,
			want: view{
				Outcome: domain.OutcomeSucceeded, Ports: "", OSState: domain.FieldUnknown,
				Hostname: domain.UnknownLabel, MAC: domain.UnknownLabel, Vendor: domain.UnknownLabel,
			},
		},
		{
			name: "hardware address from single-host retry",
			addr: retried,
			want: view{
				Outcome: domain.OutcomeSucceeded, Ports: "22", OS: "Linux 6.1", OSState: domain.FieldKnown,
				Hostname: "pi.lan", MAC: "aa:bb:cc:00:11:22", Vendor: domain.UnknownLabel,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := fps.calls.Load()
			rec := p.Probe(context.Background(), tt.addr)
			if rec.Source != domain.SourceProbe || rec.Address != tt.addr {
				t.Errorf("record identity = %s/%s", rec.Address, rec.Source)
			}
			if diff := cmp.Diff(tt.want, render(rec)); diff != "" {
				t.Errorf("Probe() mismatch (-want +got):\n%s", diff)
			}
			if !rec.Outcome.Successful() && fps.calls.Load() != before {
				t.Error("fingerprint sources ran for a dead host")
			}
		})
	}
}

func TestProber_CancelledRound(t *testing.T) {
	addr := netip.MustParseAddr("10.0.0.5")
	ports := &fakePorts{scans: map[netip.Addr]adapter.PortScan{
		addr: {Open: domain.NewPortSet(80), Outcome: domain.OutcomeSucceeded},
	}}
	p := NewProber(Self{}, ProberDeps{Ports: ports}, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if rec := p.Probe(ctx, addr); rec.Outcome != domain.OutcomeTimedOut {
		t.Errorf("outcome = %s, want %s", rec.Outcome, domain.OutcomeTimedOut)
	}
}
