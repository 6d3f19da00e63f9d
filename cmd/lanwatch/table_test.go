package main

import (
	"bytes"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"lanwatch/internal/config"
	"lanwatch/internal/domain"
)

func TestPrintSnapshot(t *testing.T) {
	color.NoColor = true

	self := domain.NewRawRecord(netip.MustParseAddr("10.0.0.1"), domain.SourceProbe)
	self.HardwareAddr = domain.Known("02:00:00:00:00:01")
	self.Hostname = domain.Known("inventory")
	self.SetOutcome(domain.OutcomeHostIsSelf)

	quiet := domain.NewRawRecord(netip.MustParseAddr("10.0.0.9"), domain.SourceProbe)
	quiet.Hostname = domain.Unknown[string]()
	quiet.OpenPorts = domain.Known(domain.NewPortSet(443, 22))
	quiet.SetOutcome(domain.OutcomeTimedOut)

	snap := &domain.Snapshot{
		Range:      "10.0.0.0/24",
		CapturedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Restored:   true,
		Devices: []domain.Device{
			{RawRecord: self, DeviceType: "Host Device", OSLabel: "Linux", VendorLabel: domain.UnknownVendor},
			{RawRecord: quiet, DeviceType: domain.UnknownDevice, OSLabel: domain.UnknownOS, VendorLabel: domain.UnknownVendor},
		},
		Stats: domain.RoundStats{Swept: 2, Probed: 2, Retried: 1, TimedOut: 1},
	}

	var buf bytes.Buffer
	printSnapshot(&buf, snap)
	out := buf.String()

	for _, want := range []string{
		"10.0.0.0/24  2 devices",
		"(restored)",
		"inventory",
		"host_is_self",
		"22,443",
		"Unknown",
		"retried 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want 5:\n%s", len(lines), out)
	}
	// Absent MAC renders as a dash, unknown hostname as Unknown
	fields := strings.Fields(lines[3])
	if fields[1] != "-" || fields[2] != domain.UnknownLabel {
		t.Errorf("row = %v", fields)
	}
}

func TestConfigureLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LogConfig
		wantErr bool
	}{
		{"text", config.LogConfig{Level: "debug", Format: "text"}, false},
		{"json", config.LogConfig{Level: "warn", Format: "json"}, false},
		{"bad level", config.LogConfig{Level: "loud", Format: "text"}, true},
		{"bad format", config.LogConfig{Level: "info", Format: "xml"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := configureLogger(log, tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("configureLogger() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
