package adapter

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/sirupsen/logrus"
)

const (
	oidSysDescr    = ".1.3.6.1.2.1.1.1.0"
	oidSysObjectID = ".1.3.6.1.2.1.1.2.0"
	oidSysName     = ".1.3.6.1.2.1.1.5.0"
)

// snmpSystem holds the system group values a device answered with
type snmpSystem struct {
	Descr    string
	ObjectID string
	Name     string
}

// SNMPAdapter reads the SNMP system group (sysDescr, sysObjectID, sysName)
// and derives an OS guess from it. Printers, switches and NAS boxes often
// answer SNMP while refusing everything else.
type SNMPAdapter struct {
	community string
	port      uint16
	timeout   time.Duration
	log       logrus.FieldLogger
	query     func(ctx context.Context, addr netip.Addr) (snmpSystem, error)
}

// NewSNMPAdapter creates an SNMPv2c fingerprinter
func NewSNMPAdapter(community string, port int, timeout time.Duration, log logrus.FieldLogger) *SNMPAdapter {
	if community == "" {
		community = "public"
	}
	if port <= 0 || port > 65535 {
		port = 161
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	s := &SNMPAdapter{
		community: community,
		port:      uint16(port),
		timeout:   timeout,
		log:       fieldLogger(log),
	}
	s.query = s.querySystem
	return s
}

// Name returns the adapter identifier
func (s *SNMPAdapter) Name() string {
	return "snmp"
}

// Fingerprint queries the system group and turns sysDescr into an OS guess
func (s *SNMPAdapter) Fingerprint(ctx context.Context, target Target) (Fingerprint, error) {
	sys, err := s.query(ctx, target.Addr)
	if err != nil {
		return Fingerprint{}, err
	}

	s.log.WithFields(logrus.Fields{
		"addr":     target.Addr.String(),
		"sysDescr": sys.Descr,
	}).Debug("SNMP: system group")

	fp, ok := fingerprintFromSystem(sys)
	if !ok {
		return Fingerprint{}, ErrNoFingerprint
	}
	return fp, nil
}

func (s *SNMPAdapter) querySystem(ctx context.Context, addr netip.Addr) (snmpSystem, error) {
	snmp := &gosnmp.GoSNMP{
		Target:    addr.String(),
		Port:      s.port,
		Community: s.community,
		Version:   gosnmp.Version2c,
		Timeout:   s.timeout,
		Retries:   1,
		Context:   ctx,
	}

	if err := snmp.Connect(); err != nil {
		return snmpSystem{}, fmt.Errorf("snmp connect %s: %w", addr, err)
	}
	defer snmp.Conn.Close()

	result, err := snmp.Get([]string{oidSysDescr, oidSysObjectID, oidSysName})
	if err != nil {
		return snmpSystem{}, fmt.Errorf("snmp get %s: %w", addr, err)
	}

	var sys snmpSystem
	for _, variable := range result.Variables {
		switch variable.Name {
		case oidSysDescr:
			sys.Descr = snmpString(variable.Value)
		case oidSysObjectID:
			sys.ObjectID = snmpString(variable.Value)
		case oidSysName:
			sys.Name = snmpString(variable.Value)
		}
	}
	return sys, nil
}

func snmpString(v any) string {
	switch val := v.(type) {
	case []byte:
		return strings.TrimSpace(string(val))
	case string:
		return strings.TrimSpace(val)
	default:
		return ""
	}
}

// sysDescrFamilies maps sysDescr keywords to an OS family, first match wins
var sysDescrFamilies = []struct {
	keyword string
	family  string
}{
	{"windows", "Windows"},
	{"cisco ios", "Cisco IOS"},
	{"routeros", "RouterOS"},
	{"junos", "JUNOS"},
	{"freebsd", "FreeBSD"},
	{"darwin", "macOS"},
	{"synology", "Linux"},
	{"linux", "Linux"},
	{"jetdirect", "Printer Firmware"},
	{"printer", "Printer Firmware"},
}

// enterpriseVendors maps enterprise OID prefixes (.1.3.6.1.4.1.<n>) to vendors
var enterpriseVendors = map[string]string{
	"9":     "Cisco",
	"11":    "HP",
	"311":   "Microsoft",
	"674":   "Dell",
	"2636":  "Juniper",
	"2699":  "Xerox",
	"1602":  "Canon",
	"367":   "Ricoh",
	"1248":  "Epson",
	"2435":  "Brother",
	"1347":  "Kyocera",
	"6574":  "Synology",
	"14988": "MikroTik",
}

func fingerprintFromSystem(sys snmpSystem) (Fingerprint, bool) {
	var fp Fingerprint
	fp.Hostname = sys.Name

	descr, _, _ := strings.Cut(sys.Descr, "\n")
	descr = strings.TrimSpace(descr)
	if descr == "" {
		return fp, false
	}

	fp.OS.Name = descr
	fp.OS.Source = "snmp"
	lower := strings.ToLower(descr)
	for _, f := range sysDescrFamilies {
		if strings.Contains(lower, f.keyword) {
			fp.OS.Candidates = append(fp.OS.Candidates, f.family)
			break
		}
	}
	fp.OS.Vendor = vendorFromObjectID(sys.ObjectID)
	return fp, true
}

func vendorFromObjectID(oid string) string {
	rest, ok := strings.CutPrefix(strings.TrimPrefix(oid, "."), "1.3.6.1.4.1.")
	if !ok {
		return ""
	}
	enterprise, _, _ := strings.Cut(rest, ".")
	return enterpriseVendors[enterprise]
}
