package domain

import (
	"net"
	"net/netip"
	"slices"
	"strconv"
	"strings"
)

// ProbeOutcome is the terminal result of probing one address
type ProbeOutcome string

const (
	OutcomeSucceeded   ProbeOutcome = "succeeded"
	OutcomeTimedOut    ProbeOutcome = "timed_out"
	OutcomeUnreachable ProbeOutcome = "unreachable"
	OutcomeHostIsSelf  ProbeOutcome = "host_is_self"
)

// Successful reports whether the outcome counts as a completed probe
func (o ProbeOutcome) Successful() bool {
	return o == OutcomeSucceeded || o == OutcomeHostIsSelf
}

// RecordSource identifies which discovery pass produced a record
type RecordSource string

const (
	SourceSweep RecordSource = "sweep" // liveness sweep, little detail
	SourceProbe RecordSource = "probe" // active per-host probe
)

// Rank orders sources by specificity. Higher wins on conflicting values.
func (s RecordSource) Rank() int {
	switch s {
	case SourceProbe:
		return 2
	case SourceSweep:
		return 1
	default:
		return 0
	}
}

// OSFingerprint is a best-effort operating system guess
type OSFingerprint struct {
	Name       string   `json:"name"`
	Candidates []string `json:"candidates,omitempty"` // best first
	Accuracy   int      `json:"accuracy,omitempty"`   // 0-100
	Vendor     string   `json:"vendor,omitempty"`
	Source     string   `json:"source,omitempty"` // nmap, snmp, ssh, local
}

// Names returns the fingerprint name followed by any additional candidates, without duplicates.
func (f OSFingerprint) Names() []string {
	names := make([]string, 0, len(f.Candidates)+1)
	if f.Name != "" {
		names = append(names, f.Name)
	}
	for _, c := range f.Candidates {
		if c != "" && !slices.Contains(names, c) {
			names = append(names, c)
		}
	}
	return names
}

// PortSet is a sorted set of open TCP ports
type PortSet []int

// NewPortSet builds a sorted, de-duplicated port set
func NewPortSet(ports ...int) PortSet {
	set := make(PortSet, 0, len(ports))
	for _, p := range ports {
		if p > 0 && p <= 65535 {
			set = append(set, p)
		}
	}
	slices.Sort(set)
	return slices.Compact(set)
}

// Has reports whether port is in the set
func (s PortSet) Has(port int) bool {
	_, ok := slices.BinarySearch(s, port)
	return ok
}

// Union returns the union of two sets
func (s PortSet) Union(other PortSet) PortSet {
	merged := make([]int, 0, len(s)+len(other))
	merged = append(merged, s...)
	merged = append(merged, other...)
	return NewPortSet(merged...)
}

// String renders the set as a comma separated list
func (s PortSet) String() string {
	parts := make([]string, len(s))
	for i, p := range s {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}

// RawRecord is the per-address output of discovery before classification
type RawRecord struct {
	Address       netip.Addr           `json:"address"`
	HardwareAddr  Field[string]        `json:"hardware_addr,omitzero"`
	Hostname      Field[string]        `json:"hostname,omitzero"`
	OSFingerprint Field[OSFingerprint] `json:"os_fingerprint,omitzero"`
	OpenPorts     Field[PortSet]       `json:"open_ports,omitzero"`
	VendorHint    Field[string]        `json:"vendor_hint,omitzero"`
	Outcome       ProbeOutcome         `json:"outcome,omitempty"`
	Source        RecordSource         `json:"source"`
}

// NewRawRecord creates an empty record for addr
func NewRawRecord(addr netip.Addr, source RecordSource) RawRecord {
	return RawRecord{Address: addr, Source: source}
}

// SetOutcome records the probe outcome. It returns false and leaves the
// record unchanged when an outcome is already set.
func (r *RawRecord) SetOutcome(o ProbeOutcome) bool {
	if r.Outcome != "" {
		return false
	}
	r.Outcome = o
	return true
}

// NormalizeHardwareAddr converts a MAC in any common notation to lower-case colon-hex.
// It returns false for unparseable and all-zero addresses.
func NormalizeHardwareAddr(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	hw, err := net.ParseMAC(s)
	if err != nil {
		// Some tools print single-digit octets (e.g. BSD arp: 0:1b:2c:3:4:5)
		parts := strings.Split(s, ":")
		if len(parts) != 6 {
			return "", false
		}
		for i, p := range parts {
			if len(p) == 1 {
				parts[i] = "0" + p
			}
		}
		hw, err = net.ParseMAC(strings.Join(parts, ":"))
		if err != nil {
			return "", false
		}
	}
	if len(hw) != 6 {
		return "", false
	}
	zero := true
	for _, b := range hw {
		if b != 0 {
			zero = false
			break
		}
	}
	if zero {
		return "", false
	}
	return hw.String(), true
}

// HardwareAddrField builds a hardware address field from a raw MAC string
func HardwareAddrField(s string) Field[string] {
	if mac, ok := NormalizeHardwareAddr(s); ok {
		return Known(mac)
	}
	return Unknown[string]()
}
