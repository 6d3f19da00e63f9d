package adapter

import (
	"context"
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func addrMap(m map[string]string) map[netip.Addr]string {
	out := make(map[netip.Addr]string, len(m))
	for k, v := range m {
		out[netip.MustParseAddr(k)] = v
	}
	return out
}

var addrComparer = cmp.Comparer(func(a, b netip.Addr) bool { return a == b })

// TestParseProcARP tests parsing of /proc/net/arp
func TestParseProcARP(t *testing.T) {
	input := `IP address       HW type     Flags       HW address            Mask     Device
192.168.1.1      0x1         0x2         AA:BB:CC:DD:EE:FF     *        eth0
192.168.1.20     0x1         0x0         00:00:00:00:00:00     *        eth0
192.168.1.30     0x1         0x2         00:00:00:00:00:00     *        eth0
192.168.1.42     0x1         0x6         b8:27:eb:12:34:56     *        wlan0
`
	got := parseProcARP([]byte(input))
	want := addrMap(map[string]string{
		"192.168.1.1":  "aa:bb:cc:dd:ee:ff",
		"192.168.1.42": "b8:27:eb:12:34:56",
	})
	if diff := cmp.Diff(want, got, addrComparer); diff != "" {
		t.Errorf("parseProcARP() mismatch (-want +got):\n%s", diff)
	}
}

// TestParseARPOutput tests parsing of `arp -an` output on BSD and net-tools
func TestParseARPOutput(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]string
	}{
		{
			name:  "net-tools",
			input: "? (10.0.0.1) at 00:11:22:33:44:55 [ether] on eth0\n? (10.0.0.9) at <incomplete> on eth0\n",
			want:  map[string]string{"10.0.0.1": "00:11:22:33:44:55"},
		},
		{
			name:  "macOS single-digit octets",
			input: "? (192.168.1.5) at 0:1b:2c:3:4:5 on en0 ifscope [ethernet]\n? (192.168.1.6) at (incomplete) on en0 ifscope [ethernet]\n",
			want:  map[string]string{"192.168.1.5": "00:1b:2c:03:04:05"},
		},
		{
			name:  "windows dashes",
			input: "? (172.16.0.3) at 00-1A-2B-3C-4D-5E\n",
			want:  map[string]string{"172.16.0.3": "00:1a:2b:3c:4d:5e"},
		},
		{
			name:  "empty",
			input: "",
			want:  map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseARPOutput([]byte(tt.input))
			if diff := cmp.Diff(addrMap(tt.want), got, addrComparer); diff != "" {
				t.Errorf("parseARPOutput() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNeighborTable_Entries(t *testing.T) {
	t.Run("proc file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "arp")
		data := "IP address HW type Flags HW address Mask Device\n10.0.0.2 0x1 0x2 aa:aa:aa:aa:aa:02 * eth0\n"
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
		n := &NeighborTable{procPath: path, run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			t.Error("arp command should not run when the proc file is readable")
			return nil, nil
		}}

		mac, ok := n.Lookup(context.Background(), netip.MustParseAddr("10.0.0.2"))
		if !ok || mac != "aa:aa:aa:aa:aa:02" {
			t.Errorf("Lookup() = %q, %v", mac, ok)
		}
	})

	t.Run("falls back to arp command", func(t *testing.T) {
		n := &NeighborTable{
			procPath: filepath.Join(t.TempDir(), "missing"),
			run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
				return []byte("? (10.0.0.3) at aa:aa:aa:aa:aa:03 on en0\n"), nil
			},
		}
		entries, err := n.Entries(context.Background())
		if err != nil {
			t.Fatalf("Entries() error: %v", err)
		}
		if entries[netip.MustParseAddr("10.0.0.3")] != "aa:aa:aa:aa:aa:03" {
			t.Errorf("unexpected entries %v", entries)
		}
	})

	t.Run("both sources fail", func(t *testing.T) {
		n := &NeighborTable{
			procPath: filepath.Join(t.TempDir(), "missing"),
			run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
				return nil, errors.New("arp: not found")
			},
		}
		if _, err := n.Entries(context.Background()); err == nil {
			t.Error("expected error")
		}
		if _, ok := n.Lookup(context.Background(), netip.MustParseAddr("10.0.0.3")); ok {
			t.Error("Lookup() should miss when the cache is unreadable")
		}
	})
}

func TestNeighborTable_Sweep(t *testing.T) {
	n := &NeighborTable{
		procPath: filepath.Join(t.TempDir(), "missing"),
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return []byte("? (10.0.0.3) at aa:aa:aa:aa:aa:03 on en0\n? (10.9.0.3) at aa:aa:aa:aa:aa:04 on en0\n"), nil
		},
	}
	hits, err := n.Sweep(context.Background(), netip.MustParsePrefix("10.0.0.0/24"))
	if err != nil {
		t.Fatalf("Sweep() error: %v", err)
	}
	want := []SweepHit{{Addr: netip.MustParseAddr("10.0.0.3"), HardwareAddr: "aa:aa:aa:aa:aa:03"}}
	if diff := cmp.Diff(want, hits, addrComparer); diff != "" {
		t.Errorf("Sweep() mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterHits(t *testing.T) {
	hits := []SweepHit{
		{Addr: netip.MustParseAddr("10.0.0.1"), Hostname: "first"},
		{Addr: netip.MustParseAddr("10.0.0.1"), Hostname: "second"},
		{Addr: netip.MustParseAddr("10.0.1.1")},
		{},
	}
	got := filterHits(hits, netip.MustParsePrefix("10.0.0.0/24"))
	if len(got) != 1 || got[0].Hostname != "first" {
		t.Errorf("filterHits() = %+v", got)
	}
}

func TestPingArgs(t *testing.T) {
	addr := netip.MustParseAddr("10.0.0.1")
	tests := []struct {
		goos    string
		timeout time.Duration
		want    []string
	}{
		{"linux", 2 * time.Second, []string{"-c", "1", "-W", "2", "10.0.0.1"}},
		{"linux", 200 * time.Millisecond, []string{"-c", "1", "-W", "1", "10.0.0.1"}},
		{"darwin", time.Second, []string{"-c", "1", "-t", "1", "10.0.0.1"}},
		{"windows", 1500 * time.Millisecond, []string{"-n", "1", "-w", "1500", "10.0.0.1"}},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, pingArgs(tt.goos, tt.timeout, addr)); diff != "" {
				t.Errorf("pingArgs() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPinger_Ping(t *testing.T) {
	p := NewPinger(time.Second)
	p.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("64 bytes from 10.0.0.1: icmp_seq=1 ttl=64 time=1.5 ms\n"), nil
	}
	rtt, err := p.Ping(context.Background(), netip.MustParseAddr("10.0.0.1"))
	if err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
	if rtt != 1500*time.Microsecond {
		t.Errorf("Ping() rtt = %v, want 1.5ms", rtt)
	}

	p.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("exit status 1")
	}
	if _, err := p.Ping(context.Background(), netip.MustParseAddr("10.0.0.1")); err == nil {
		t.Error("expected error for failed ping")
	}
}
