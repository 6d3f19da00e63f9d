package domain

import (
	"encoding/json"
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFieldStates(t *testing.T) {
	t.Run("zero value is absent", func(t *testing.T) {
		var f Field[string]
		if f.State() != FieldAbsent {
			t.Errorf("expected absent, got %s", f.State())
		}
		if !f.IsZero() {
			t.Error("expected IsZero for absent field")
		}
		if f.String() != "" {
			t.Errorf("expected empty rendering, got %q", f.String())
		}
	})

	t.Run("unknown renders sentinel", func(t *testing.T) {
		f := Unknown[string]()
		if !f.IsUnknown() {
			t.Error("expected unknown")
		}
		if f.String() != UnknownLabel {
			t.Errorf("expected %q, got %q", UnknownLabel, f.String())
		}
		if got := f.OrElse("fallback"); got != "fallback" {
			t.Errorf("expected fallback, got %q", got)
		}
	})

	t.Run("known returns value", func(t *testing.T) {
		f := Known("printer.lan")
		v, ok := f.Get()
		if !ok || v != "printer.lan" {
			t.Errorf("expected printer.lan, got %q (ok=%v)", v, ok)
		}
	})

	t.Run("attempted only upgrades absent", func(t *testing.T) {
		var absent Field[int]
		if !absent.Attempted().IsUnknown() {
			t.Error("expected absent to become unknown")
		}
		known := Known(7)
		if v, _ := known.Attempted().Get(); v != 7 {
			t.Errorf("expected known value kept, got %d", v)
		}
	})
}

func TestRawRecordJSON(t *testing.T) {
	rec := NewRawRecord(netip.MustParseAddr("10.0.0.5"), SourceProbe)
	rec.Hostname = Unknown[string]()
	rec.HardwareAddr = Known("aa:bb:cc:dd:ee:ff")
	rec.OpenPorts = Known(NewPortSet(443, 22))
	rec.SetOutcome(OutcomeSucceeded)

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal map: %v", err)
	}
	if _, ok := raw["os_fingerprint"]; ok {
		t.Error("absent os_fingerprint should be omitted")
	}
	if v, ok := raw["hostname"]; !ok || v != nil {
		t.Errorf("unknown hostname should encode as null, got %v (present=%v)", v, ok)
	}

	var back RawRecord
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	opts := cmp.Comparer(func(a, b Field[string]) bool { return a.State() == b.State() && a.String() == b.String() })
	portsCmp := cmp.Comparer(func(a, b Field[PortSet]) bool { return a.State() == b.State() && a.String() == b.String() })
	fpCmp := cmp.Comparer(func(a, b Field[OSFingerprint]) bool { return a.State() == b.State() })
	if diff := cmp.Diff(rec, back, opts, portsCmp, fpCmp, cmp.Comparer(func(a, b netip.Addr) bool { return a == b })); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSetOutcomeOnce(t *testing.T) {
	rec := NewRawRecord(netip.MustParseAddr("10.0.0.7"), SourceProbe)
	if !rec.SetOutcome(OutcomeTimedOut) {
		t.Fatal("expected first SetOutcome to succeed")
	}
	if rec.SetOutcome(OutcomeSucceeded) {
		t.Error("expected second SetOutcome to be refused")
	}
	if rec.Outcome != OutcomeTimedOut {
		t.Errorf("expected outcome %s, got %s", OutcomeTimedOut, rec.Outcome)
	}
}

func TestNormalizeHardwareAddr(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"upper colon", "AA:BB:CC:DD:EE:FF", "aa:bb:cc:dd:ee:ff", true},
		{"dashes", "aa-bb-cc-dd-ee-01", "aa:bb:cc:dd:ee:01", true},
		{"short octets", "0:1b:2c:3:4:5", "00:1b:2c:03:04:05", true},
		{"incomplete entry", "00:00:00:00:00:00", "", false},
		{"garbage", "(incomplete)", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeHardwareAddr(tt.input)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("NormalizeHardwareAddr(%q) = %q, %v; want %q, %v", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestPortSet(t *testing.T) {
	set := NewPortSet(443, 22, 443, 0, 70000)
	if diff := cmp.Diff(PortSet{22, 443}, set); diff != "" {
		t.Errorf("unexpected set (-want +got):\n%s", diff)
	}
	if !set.Has(22) || set.Has(80) {
		t.Error("Has returned wrong membership")
	}
	if got := set.Union(NewPortSet(80)).String(); got != "22,80,443" {
		t.Errorf("expected 22,80,443, got %s", got)
	}
}

func TestOSFingerprintNames(t *testing.T) {
	fp := OSFingerprint{Name: "Linux 5.4", Candidates: []string{"Linux 5.4", "Android 11", ""}}
	if diff := cmp.Diff([]string{"Linux 5.4", "Android 11"}, fp.Names()); diff != "" {
		t.Errorf("unexpected names (-want +got):\n%s", diff)
	}
}

func TestSnapshotDeviceLookup(t *testing.T) {
	snap := &Snapshot{Devices: []Device{
		{RawRecord: NewRawRecord(netip.MustParseAddr("10.0.0.9"), SourceProbe)},
		{RawRecord: NewRawRecord(netip.MustParseAddr("10.0.0.1"), SourceProbe)},
	}}
	SortDevices(snap.Devices)

	if _, ok := snap.Device(netip.MustParseAddr("10.0.0.9")); !ok {
		t.Error("expected to find 10.0.0.9")
	}
	if _, ok := snap.Device(netip.MustParseAddr("10.0.0.2")); ok {
		t.Error("did not expect to find 10.0.0.2")
	}

	clone := snap.Clone()
	clone.Devices[0].DeviceType = "changed"
	if snap.Devices[0].DeviceType == "changed" {
		t.Error("clone shares device storage with original")
	}
}
