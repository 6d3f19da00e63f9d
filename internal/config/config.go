// Package config provides configuration management for lanwatch.
//
// Config file locations (priority order):
//  1. $LANWATCH_CONFIG
//  2. ./lanwatch.yaml
//  3. $XDG_CONFIG_HOME/lanwatch/config.yaml
//  4. ~/.config/lanwatch/config.yaml
//  5. /etc/lanwatch/config.yaml
//
// A missing file is not an error; DefaultConfig is used instead.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPorts are probed on every live host. The list favors ports that
// help classification (printers, cameras, remote desktop, phones).
var DefaultPorts = []int{
	21, 22, 23, 53, 80, 139, 443, 445, 515, 554, 631,
	3389, 5000, 8008, 8080, 8443, 9100, 62078,
}

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// Parse decodes YAML config data, applies defaults and validates the result
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{
		Version: 1,
		Posture: PostureBalanced,
		Discovery: DiscoveryConfig{
			Sweep: SweepNmap,
			Ports: append([]int(nil), DefaultPorts...),
		},
		Fingerprint: FingerprintConfig{
			Nmap: NmapConfig{Enabled: true},
			SNMP: SNMPConfig{Community: "public"},
		},
		Persist: PersistConfig{Path: "./lanwatch.db"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Posture == "" {
		c.Posture = PostureBalanced
	}
	if c.Discovery.Sweep == "" {
		c.Discovery.Sweep = SweepNmap
	}
	if len(c.Discovery.Ports) == 0 {
		c.Discovery.Ports = append([]int(nil), DefaultPorts...)
	}

	if c.Fingerprint.Nmap.MaxRetries == 0 {
		c.Fingerprint.Nmap.MaxRetries = 3
	}
	if c.Fingerprint.Nmap.HostTimeout == 0 {
		c.Fingerprint.Nmap.HostTimeout = Duration(2 * time.Minute)
	}
	if c.Fingerprint.SNMP.Community == "" {
		c.Fingerprint.SNMP.Community = "public"
	}
	if c.Fingerprint.SNMP.Port == 0 {
		c.Fingerprint.SNMP.Port = 161
	}
	if c.Fingerprint.SNMP.Timeout == 0 {
		c.Fingerprint.SNMP.Timeout = Duration(2 * time.Second)
	}
	if c.Fingerprint.SSH.Timeout == 0 {
		c.Fingerprint.SSH.Timeout = Duration(10 * time.Second)
	}

	if c.Persist.Keep == 0 {
		c.Persist.Keep = 20
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate rejects settings that would make a discovery round impossible
func (c *Config) Validate() error {
	var errs []error

	b := c.EffectiveBehavior()
	if b.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", b.Workers))
	}
	if b.RetryWorkers < 1 {
		errs = append(errs, fmt.Errorf("retry_workers must be at least 1, got %d", b.RetryWorkers))
	}
	if b.RefreshInterval <= 0 {
		errs = append(errs, errors.New("refresh_interval must be positive"))
	}
	if b.RoundTimeout <= 0 {
		errs = append(errs, errors.New("round_timeout must be positive"))
	}
	if b.ProbeTimeout <= 0 || b.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("probe_timeout and connect_timeout must be positive"))
	}
	if b.NmapTiming < 0 || b.NmapTiming > 5 {
		errs = append(errs, fmt.Errorf("nmap_timing must be between 0 and 5, got %d", b.NmapTiming))
	}

	if c.Discovery.Range != "" {
		if _, err := ParseRange(c.Discovery.Range); err != nil {
			errs = append(errs, err)
		}
	}
	if !c.Discovery.Sweep.Valid() {
		errs = append(errs, fmt.Errorf("unknown sweep strategy %q", c.Discovery.Sweep))
	}
	for _, p := range c.Discovery.Ports {
		if p < 1 || p > 65535 {
			errs = append(errs, fmt.Errorf("invalid port %d", p))
		}
	}
	for _, r := range c.Classify.PortRules {
		if r.Port < 1 || r.Port > 65535 {
			errs = append(errs, fmt.Errorf("invalid port rule port %d", r.Port))
		}
	}

	if c.Fingerprint.SSH.Enabled {
		if c.Fingerprint.SSH.User == "" {
			errs = append(errs, errors.New("ssh fingerprinting needs a user"))
		}
		if c.Fingerprint.SSH.KeyPath == "" && c.Fingerprint.SSH.Password == "" {
			errs = append(errs, errors.New("ssh fingerprinting needs key_path or password"))
		}
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// ParseRange parses an address range override. Only IPv4 prefixes from /22 to /32 are accepted.
func ParseRange(s string) (netip.Prefix, error) {
	prefix, err := netip.ParsePrefix(s)
	if err != nil {
		addr, addrErr := netip.ParseAddr(s)
		if addrErr != nil {
			return netip.Prefix{}, fmt.Errorf("invalid range %q: %w", s, err)
		}
		prefix = netip.PrefixFrom(addr, addr.BitLen())
	}
	if !prefix.Addr().Is4() {
		return netip.Prefix{}, fmt.Errorf("invalid range %q: only IPv4 is supported", s)
	}
	if prefix.Bits() < 22 {
		return netip.Prefix{}, fmt.Errorf("invalid range %q: larger than /22", s)
	}
	return prefix.Masked(), nil
}

// EffectiveBehavior returns behavior profile with overrides applied
func (c *Config) EffectiveBehavior() BehaviorProfile {
	base := c.Posture.GetProfile()

	if c.Behavior == nil {
		return base
	}

	if c.Behavior.RefreshInterval != nil {
		base.RefreshInterval = c.Behavior.RefreshInterval.Duration()
	}
	if c.Behavior.RoundTimeout != nil {
		base.RoundTimeout = c.Behavior.RoundTimeout.Duration()
	}
	if c.Behavior.ProbeTimeout != nil {
		base.ProbeTimeout = c.Behavior.ProbeTimeout.Duration()
	}
	if c.Behavior.ConnectTimeout != nil {
		base.ConnectTimeout = c.Behavior.ConnectTimeout.Duration()
	}
	if c.Behavior.Workers != nil {
		base.Workers = *c.Behavior.Workers
	}
	if c.Behavior.RetryWorkers != nil {
		base.RetryWorkers = *c.Behavior.RetryWorkers
	}
	if c.Behavior.NmapTiming != nil {
		base.NmapTiming = *c.Behavior.NmapTiming
	}

	return base
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	behavior := c.EffectiveBehavior()

	rng := c.Discovery.Range
	if rng == "" {
		rng = "auto"
	}

	summary := fmt.Sprintf("Posture: %s, Range: %s, Sweep: %s\n", c.Posture, rng, c.Discovery.Sweep)
	summary += fmt.Sprintf("Refresh: %s, Round timeout: %s, Probe timeout: %s, Workers: %d/%d\n",
		behavior.RefreshInterval, behavior.RoundTimeout, behavior.ProbeTimeout,
		behavior.Workers, behavior.RetryWorkers)
	summary += "Fingerprint sources:"
	if c.Fingerprint.Nmap.Enabled {
		summary += " nmap"
	}
	if c.Fingerprint.SNMP.Enabled {
		summary += " snmp"
	}
	if c.Fingerprint.SSH.Enabled {
		summary += " ssh"
	}

	return summary
}
