package classify

import (
	"lanwatch/internal/config"
)

// Device type labels produced by the built-in tables
const (
	TypeHost          = "Host Device"
	TypeMobile        = "Mobile Device"
	TypeDesktop       = "Desktop/Laptop"
	TypeEmbedded      = "Embedded Device"
	TypePrinter       = "Printer"
	TypeCamera        = "IP Camera"
	TypeNetwork       = "Network Device"
	TypeRouter        = "Router/Switch"
	TypeNAS           = "NAS"
	TypeConsole       = "Game Console"
	TypeMedia         = "Media Streaming Device"
	TypeSmart         = "Smart Device"
	TypeTV            = "Smart TV"
	TypeSpeaker       = "Smart Speaker"
	TypeVirtual       = "Virtual Machine"
	TypeSSH           = "SSH-capable Host"
	TypeRemoteDesktop = "Remote Desktop Host"
	TypeWeb           = "Web/IoT Device"
)

// OSRule maps a keyword found in any OS fingerprint name to a device type.
// Vendor is used when nothing better identifies the manufacturer.
type OSRule struct {
	Keyword    string
	DeviceType string
	Vendor     string
}

// VendorPrefix maps a hardware address prefix to a vendor
type VendorPrefix struct {
	Prefix string
	Vendor string
}

// CategoryRule maps a word in a vendor name to a device type
type CategoryRule struct {
	Keyword    string
	DeviceType string
}

// PortRule maps an open port to a device type and optionally an OS label
type PortRule struct {
	Port       int
	DeviceType string
	OSLabel    string
}

// Rules are the ordered tables the classifier walks. Within a table the
// first matching entry wins.
type Rules struct {
	OSKeywords       []OSRule
	VendorPrefixes   []VendorPrefix
	VendorCategories []CategoryRule
	PortRules        []PortRule
}

// DefaultRules returns the built-in tables
func DefaultRules() Rules {
	return Rules{
		OSKeywords:       append([]OSRule(nil), defaultOSKeywords...),
		VendorPrefixes:   append([]VendorPrefix(nil), defaultVendorPrefixes...),
		VendorCategories: append([]CategoryRule(nil), defaultVendorCategories...),
		PortRules:        append([]PortRule(nil), defaultPortRules...),
	}
}

// RulesFromConfig puts the configured entries in front of the built-in ones,
// or uses them alone when ReplaceDefaults is set
func RulesFromConfig(cfg config.ClassifyConfig) Rules {
	var r Rules
	for _, e := range cfg.OSKeywords {
		r.OSKeywords = append(r.OSKeywords, OSRule{Keyword: e.Keyword, DeviceType: e.DeviceType, Vendor: e.Vendor})
	}
	for _, e := range cfg.VendorPrefixes {
		r.VendorPrefixes = append(r.VendorPrefixes, VendorPrefix{Prefix: e.Prefix, Vendor: e.Vendor})
	}
	for _, e := range cfg.VendorCategories {
		r.VendorCategories = append(r.VendorCategories, CategoryRule{Keyword: e.Keyword, DeviceType: e.DeviceType})
	}
	for _, e := range cfg.PortRules {
		r.PortRules = append(r.PortRules, PortRule{Port: e.Port, DeviceType: e.DeviceType, OSLabel: e.OSLabel})
	}
	if cfg.ReplaceDefaults {
		return r
	}

	d := DefaultRules()
	r.OSKeywords = append(r.OSKeywords, d.OSKeywords...)
	r.VendorPrefixes = append(r.VendorPrefixes, d.VendorPrefixes...)
	r.VendorCategories = append(r.VendorCategories, d.VendorCategories...)
	r.PortRules = append(r.PortRules, d.PortRules...)
	return r
}

// Specific platforms come before the generic families they are built on
// (android and raspbian report as linux, cisco ios contains ios).
var defaultOSKeywords = []OSRule{
	{"android", TypeMobile, ""},
	{"raspbian", TypeEmbedded, "Raspberry Pi Foundation"},
	{"jetdirect", TypePrinter, "HP"},
	{"printer", TypePrinter, ""},
	{"webcam", TypeCamera, ""},
	{"camera", TypeCamera, ""},
	{"cisco", TypeNetwork, "Cisco"},
	{"routeros", TypeNetwork, "MikroTik"},
	{"junos", TypeNetwork, "Juniper"},
	{"openwrt", TypeRouter, ""},
	{"synology", TypeNAS, "Synology"},
	{"playstation", TypeConsole, "Sony"},
	{"xbox", TypeConsole, "Microsoft"},
	{"iphone", TypeMobile, "Apple"},
	{"ipad", TypeMobile, "Apple"},
	{"ios", TypeMobile, "Apple"},
	{"windows", TypeDesktop, "Microsoft"},
	{"mac os", TypeDesktop, "Apple"},
	{"macos", TypeDesktop, "Apple"},
	{"os x", TypeDesktop, "Apple"},
	{"linux", TypeDesktop, ""},
	{"ubuntu", TypeDesktop, ""},
	{"debian", TypeDesktop, ""},
	{"fedora", TypeDesktop, ""},
	{"freebsd", TypeDesktop, ""},
}

var defaultVendorPrefixes = []VendorPrefix{
	{"b8:27:eb", "Raspberry Pi Foundation"},
	{"dc:a6:32", "Raspberry Pi Trading"},
	{"e4:5f:01", "Raspberry Pi Trading"},
	{"00:17:88", "Philips Lighting"},
	{"18:b4:30", "Nest Labs"},
	{"00:0e:58", "Sonos"},
	{"f0:9f:c2", "Ubiquiti"},
	{"24:a4:3c", "Ubiquiti"},
	{"50:c7:bf", "TP-Link"},
	{"00:1b:63", "Apple"},
	{"00:04:4b", "NVIDIA"},
	{"00:d9:d1", "Sony Interactive Entertainment"},
	{"44:65:0d", "Amazon Technologies"},
	{"b0:a7:37", "Roku"},
	{"00:80:77", "Brother"},
	{"00:00:48", "Seiko Epson"},
	{"00:00:85", "Canon"},
	{"00:50:56", "VMware"},
	{"00:0c:29", "VMware"},
	{"08:00:27", "VirtualBox"},
}

var defaultVendorCategories = []CategoryRule{
	{"raspberry", TypeEmbedded},
	{"sony interactive", TypeConsole},
	{"playstation", TypeConsole},
	{"xbox", TypeConsole},
	{"nvidia", TypeConsole},
	{"nest", "IoT Device (Thermostat/Camera)"},
	{"ring", "IoT Device (Smart Doorbell)"},
	{"philips lighting", TypeSmart},
	{"apple", "Apple Device"},
	{"samsung", "Samsung Device"},
	{"dell", TypeDesktop},
	{"hp", TypeDesktop},
	{"hewlett", TypeDesktop},
	{"lenovo", TypeDesktop},
	{"microsoft", TypeDesktop},
	{"asus", TypeDesktop},
	{"cisco", TypeNetwork},
	{"tp-link", TypeRouter},
	{"ubiquiti", TypeRouter},
	{"mikrotik", TypeRouter},
	{"roku", TypeMedia},
	{"google", TypeSmart},
	{"amazon", TypeSmart},
	{"xiaomi", TypeSmart},
	{"lg", TypeTV},
	{"sony", TypeTV},
	{"tcl", TypeTV},
	{"bose", TypeSpeaker},
	{"sonos", TypeSpeaker},
	{"oppo", "Smartphone"},
	{"huawei", "Smartphone"},
	{"oneplus", "Smartphone"},
	{"brother", TypePrinter},
	{"epson", TypePrinter},
	{"canon", TypePrinter},
	{"xerox", TypePrinter},
	{"kyocera", TypePrinter},
	{"synology", TypeNAS},
	{"qnap", TypeNAS},
	{"vmware", TypeVirtual},
	{"virtualbox", TypeVirtual},
}

var defaultPortRules = []PortRule{
	{9100, TypePrinter, ""},
	{631, TypePrinter, ""},
	{515, TypePrinter, ""},
	{554, TypeCamera, ""},
	{62078, TypeMobile, "iOS"},
	{3389, TypeRemoteDesktop, "Windows"},
	{22, TypeSSH, ""},
	{80, TypeWeb, ""},
	{443, TypeWeb, ""},
	{8080, TypeWeb, ""},
	{8443, TypeWeb, ""},
}
