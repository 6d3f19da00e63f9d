package domain

import (
	"net/netip"
	"slices"
	"time"
)

// Fallback labels used when no classification rule matches
const (
	UnknownDevice = "Unknown Device"
	UnknownOS     = "Unknown OS"
	UnknownVendor = "Unknown Vendor"
)

// Device is a classified record as exposed in a snapshot
type Device struct {
	RawRecord
	DeviceType  string `json:"device_type"`
	OSLabel     string `json:"os_label"`
	VendorLabel string `json:"vendor_label"`
}

// RoundStats counts what happened during one discovery round
type RoundStats struct {
	Swept       int `json:"swept"`
	Probed      int `json:"probed"`
	Retried     int `json:"retried"`
	Succeeded   int `json:"succeeded"`
	TimedOut    int `json:"timed_out"`
	Unreachable int `json:"unreachable"`
}

// Snapshot is the immutable inventory published after a successful round.
// Readers must not modify it; use Clone for a private copy.
type Snapshot struct {
	ID         string        `json:"id"`
	Range      string        `json:"range"`
	Devices    []Device      `json:"devices"`
	CapturedAt time.Time     `json:"captured_at"`
	Duration   time.Duration `json:"duration"`
	Stats      RoundStats    `json:"stats"`
	Restored   bool          `json:"restored,omitempty"`
}

// Device returns the device for addr, if present
func (s *Snapshot) Device(addr netip.Addr) (Device, bool) {
	i, ok := slices.BinarySearchFunc(s.Devices, addr, func(d Device, a netip.Addr) int {
		return d.Address.Compare(a)
	})
	if !ok {
		return Device{}, false
	}
	return s.Devices[i], true
}

// Clone returns a deep enough copy for the caller to modify freely
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	c.Devices = make([]Device, len(s.Devices))
	for i, d := range s.Devices {
		if ports, ok := d.OpenPorts.Get(); ok {
			d.OpenPorts = Known(slices.Clone(ports))
		}
		if fp, ok := d.OSFingerprint.Get(); ok {
			fp.Candidates = slices.Clone(fp.Candidates)
			d.OSFingerprint = Known(fp)
		}
		c.Devices[i] = d
	}
	return &c
}

// SortDevices orders devices by address so lookups can binary search
func SortDevices(devices []Device) {
	slices.SortFunc(devices, func(a, b Device) int {
		return a.Address.Compare(b.Address)
	})
}
