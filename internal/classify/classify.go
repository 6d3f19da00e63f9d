// Package classify labels raw records with a device type, an OS label and a
// vendor label.
//
// Each label walks the same signal order: OS fingerprint, hardware address
// vendor, open ports, then the Unknown fallback. Labels are resolved
// independently, so a record can have a known vendor and an unknown type.
// Classification never fails.
package classify

import (
	"slices"
	"strings"
	"sync/atomic"

	"lanwatch/internal/domain"
)

// ruleSet is Rules with keywords lower-cased and prefixes normalized
type ruleSet struct {
	rules    Rules
	os       []OSRule
	prefixes []VendorPrefix // longest first
	vendors  []CategoryRule
	ports    []PortRule
}

func compile(r Rules) *ruleSet {
	rs := &ruleSet{rules: r}
	for _, e := range r.OSKeywords {
		if kw := strings.ToLower(strings.TrimSpace(e.Keyword)); kw != "" && e.DeviceType != "" {
			rs.os = append(rs.os, OSRule{Keyword: kw, DeviceType: e.DeviceType, Vendor: e.Vendor})
		}
	}
	for _, e := range r.VendorPrefixes {
		if p := normalizePrefix(e.Prefix); p != "" && e.Vendor != "" {
			rs.prefixes = append(rs.prefixes, VendorPrefix{Prefix: p, Vendor: e.Vendor})
		}
	}
	// Stable, so equally long prefixes keep table order
	slices.SortStableFunc(rs.prefixes, func(a, b VendorPrefix) int { return len(b.Prefix) - len(a.Prefix) })
	for _, e := range r.VendorCategories {
		if kw := strings.ToLower(strings.TrimSpace(e.Keyword)); kw != "" && e.DeviceType != "" {
			rs.vendors = append(rs.vendors, CategoryRule{Keyword: kw, DeviceType: e.DeviceType})
		}
	}
	for _, e := range r.PortRules {
		if e.Port > 0 && e.DeviceType != "" {
			rs.ports = append(rs.ports, e)
		}
	}
	return rs
}

// Classifier applies the current rule tables. Rules can be swapped while
// classification is running; each record sees one consistent table set.
type Classifier struct {
	rules atomic.Pointer[ruleSet]
}

// New creates a classifier with rules
func New(rules Rules) *Classifier {
	c := &Classifier{}
	c.SetRules(rules)
	return c
}

// SetRules replaces the rule tables
func (c *Classifier) SetRules(rules Rules) {
	c.rules.Store(compile(rules))
}

// Rules returns the tables in use
func (c *Classifier) Rules() Rules {
	return c.rules.Load().rules
}

// Classify derives the three labels for rec
func (c *Classifier) Classify(rec domain.RawRecord) domain.Device {
	rs := c.rules.Load()

	fp, hasFP := rec.OSFingerprint.Get()
	var names []string
	if hasFP {
		names = fp.Names()
	}
	osRule, osMatched := rs.matchOS(names)
	ports, _ := rec.OpenPorts.Get()

	vendor := rs.vendor(rec, fp)
	if vendor == "" && osMatched {
		vendor = osRule.Vendor
	}

	d := domain.Device{
		RawRecord:   rec,
		DeviceType:  domain.UnknownDevice,
		OSLabel:     domain.UnknownOS,
		VendorLabel: domain.UnknownVendor,
	}

	switch {
	case rec.Outcome == domain.OutcomeHostIsSelf:
		d.DeviceType = TypeHost
	case osMatched:
		d.DeviceType = osRule.DeviceType
	default:
		if t, ok := rs.matchVendor(vendor); ok {
			d.DeviceType = t
		} else if r, ok := rs.matchPorts(ports, false); ok {
			d.DeviceType = r.DeviceType
		}
	}

	if len(names) > 0 {
		d.OSLabel = names[0]
	} else if r, ok := rs.matchPorts(ports, true); ok {
		d.OSLabel = r.OSLabel
	}

	if vendor != "" {
		d.VendorLabel = vendor
	}
	return d
}

// ClassifyAll classifies records and returns devices sorted by address
func (c *Classifier) ClassifyAll(records []domain.RawRecord) []domain.Device {
	devices := make([]domain.Device, 0, len(records))
	for _, r := range records {
		devices = append(devices, c.Classify(r))
	}
	domain.SortDevices(devices)
	return devices
}

// matchOS walks the keyword table in order and returns the first rule that
// matches any fingerprint name
func (rs *ruleSet) matchOS(names []string) (OSRule, bool) {
	if len(names) == 0 {
		return OSRule{}, false
	}
	lower := make([]string, len(names))
	for i, n := range names {
		lower[i] = strings.ToLower(n)
	}
	for _, rule := range rs.os {
		for _, n := range lower {
			if strings.Contains(n, rule.Keyword) {
				return rule, true
			}
		}
	}
	return OSRule{}, false
}

// vendor resolves the manufacturer: prefix table, then the raw hint, then
// the fingerprint's own vendor
func (rs *ruleSet) vendor(rec domain.RawRecord, fp domain.OSFingerprint) string {
	if mac, ok := rec.HardwareAddr.Get(); ok {
		hex := normalizePrefix(mac)
		for _, p := range rs.prefixes {
			if strings.HasPrefix(hex, p.Prefix) {
				return p.Vendor
			}
		}
	}
	if hint, ok := rec.VendorHint.Get(); ok && hint != "" {
		return hint
	}
	return fp.Vendor
}

func (rs *ruleSet) matchVendor(vendor string) (string, bool) {
	if vendor == "" {
		return "", false
	}
	lower := strings.ToLower(vendor)
	for _, rule := range rs.vendors {
		if containsWord(lower, rule.Keyword) {
			return rule.DeviceType, true
		}
	}
	return "", false
}

// matchPorts returns the first rule whose port is open. With needOS only
// rules carrying an OS label count.
func (rs *ruleSet) matchPorts(ports domain.PortSet, needOS bool) (PortRule, bool) {
	for _, rule := range rs.ports {
		if needOS && rule.OSLabel == "" {
			continue
		}
		if ports.Has(rule.Port) {
			return rule, true
		}
	}
	return PortRule{}, false
}

// containsWord reports whether kw occurs in s without letters or digits
// directly around it, so "ring" does not match "engineering"
func containsWord(s, kw string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], kw)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(kw)
		if (start == 0 || !isAlnum(s[start-1])) && (end == len(s) || !isAlnum(s[end])) {
			return true
		}
		i = start + 1
	}
}

func isAlnum(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// normalizePrefix lower-cases a MAC or prefix and drops separators
func normalizePrefix(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r == ':' || r == '-' || r == '.':
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f':
			b.WriteRune(r)
		default:
			return ""
		}
	}
	return b.String()
}
