package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version     int               `yaml:"version"`
	Posture     Posture           `yaml:"posture"`
	Behavior    *BehaviorOverride `yaml:"behavior,omitempty"`
	Discovery   DiscoveryConfig   `yaml:"discovery"`
	Fingerprint FingerprintConfig `yaml:"fingerprint"`
	Classify    ClassifyConfig    `yaml:"classify"`
	Persist     PersistConfig     `yaml:"persist"`
	Log         LogConfig         `yaml:"log"`
}

// BehaviorOverride allows overriding posture defaults
type BehaviorOverride struct {
	RefreshInterval *Duration `yaml:"refresh_interval,omitempty"`
	RoundTimeout    *Duration `yaml:"round_timeout,omitempty"`
	ProbeTimeout    *Duration `yaml:"probe_timeout,omitempty"`
	ConnectTimeout  *Duration `yaml:"connect_timeout,omitempty"`
	Workers         *int      `yaml:"workers,omitempty"`
	RetryWorkers    *int      `yaml:"retry_workers,omitempty"`
	NmapTiming      *int      `yaml:"nmap_timing,omitempty"`
}

// SweepStrategy selects how the neighbor cache is prewarmed
type SweepStrategy string

const (
	SweepNmap     SweepStrategy = "nmap"     // nmap ping scan
	SweepARP      SweepStrategy = "arp"      // raw ARP broadcast, needs pcap and privileges
	SweepNeighbor SweepStrategy = "neighbor" // read the existing neighbor cache only
)

// Valid reports whether s names a known strategy
func (s SweepStrategy) Valid() bool {
	switch s {
	case SweepNmap, SweepARP, SweepNeighbor:
		return true
	}
	return false
}

// DiscoveryConfig holds subnet and probe settings
type DiscoveryConfig struct {
	Range     string        `yaml:"range,omitempty"` // CIDR override; empty = detect
	Sweep     SweepStrategy `yaml:"sweep"`
	Interface string        `yaml:"interface,omitempty"` // for the arp sweep; empty = detect
	Ports     []int         `yaml:"ports,omitempty"`
	DNSServer string        `yaml:"dns_server,omitempty"`
}

// FingerprintConfig enables the OS fingerprint sources, tried in order nmap, snmp, ssh
type FingerprintConfig struct {
	Nmap NmapConfig `yaml:"nmap"`
	SNMP SNMPConfig `yaml:"snmp"`
	SSH  SSHConfig  `yaml:"ssh"`
}

// NmapConfig configures nmap OS detection
type NmapConfig struct {
	Enabled     bool     `yaml:"enabled"`
	OSDetection bool     `yaml:"os_detection"` // -O, requires root
	MaxRetries  int      `yaml:"max_retries"`
	HostTimeout Duration `yaml:"host_timeout"`
}

// SNMPConfig configures the sysDescr lookup
type SNMPConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Community string   `yaml:"community"`
	Port      int      `yaml:"port"`
	Timeout   Duration `yaml:"timeout"`
}

// SSHConfig configures SSH fact gathering. Key and password are alternatives.
type SSHConfig struct {
	Enabled    bool     `yaml:"enabled"`
	User       string   `yaml:"user,omitempty"`
	KeyPath    string   `yaml:"key_path,omitempty"`
	Passphrase string   `yaml:"passphrase,omitempty"`
	Password   string   `yaml:"password,omitempty"`
	Timeout    Duration `yaml:"timeout"`
}

// ClassifyConfig holds classification tables. Configured rules are consulted
// before the built-in ones unless ReplaceDefaults is set.
type ClassifyConfig struct {
	OUIPath          string         `yaml:"oui_path,omitempty"`
	ReplaceDefaults  bool           `yaml:"replace_defaults,omitempty"`
	OSKeywords       []OSRule       `yaml:"os_keywords,omitempty"`
	VendorPrefixes   []VendorPrefix `yaml:"vendor_prefixes,omitempty"`
	VendorCategories []CategoryRule `yaml:"vendor_categories,omitempty"`
	PortRules        []PortRule     `yaml:"port_rules,omitempty"`
}

// OSRule maps a keyword found in an OS fingerprint to a device type
type OSRule struct {
	Keyword    string `yaml:"keyword"`
	DeviceType string `yaml:"device_type"`
	Vendor     string `yaml:"vendor,omitempty"`
}

// VendorPrefix maps a hardware address prefix (OUI) to a vendor name
type VendorPrefix struct {
	Prefix string `yaml:"prefix"`
	Vendor string `yaml:"vendor"`
}

// CategoryRule maps a keyword found in a vendor name to a device type
type CategoryRule struct {
	Keyword    string `yaml:"keyword"`
	DeviceType string `yaml:"device_type"`
}

// PortRule maps an open port to a device type and optional OS label
type PortRule struct {
	Port       int    `yaml:"port"`
	DeviceType string `yaml:"device_type"`
	OSLabel    string `yaml:"os_label,omitempty"`
}

// PersistConfig holds snapshot persistence settings. An empty path disables persistence.
type PersistConfig struct {
	Path    string `yaml:"path"`
	Keep    int    `yaml:"keep"`
	Restore bool   `yaml:"restore"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
