package adapter

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"lanwatch/internal/config"
)

// Registry holds the collaborators a discovery round talks to, built once
// from configuration.
type Registry struct {
	Sweeper      Sweeper
	Neighbors    *NeighborTable
	Pinger       *Pinger
	Ports        *PortProber
	DNS          *ReverseResolver
	OUI          *OUIDatabase
	Fingerprints FingerprintChain
	Local        LocalIdentity
}

// Build creates every collaborator named in cfg. Optional sources that
// cannot be set up (an unreadable SSH key or OUI file) are logged and left
// out instead of failing the build.
func Build(cfg *config.Config, log logrus.FieldLogger) (*Registry, error) {
	log = fieldLogger(log)
	behavior := cfg.EffectiveBehavior()

	ports := cfg.Discovery.Ports
	if len(ports) == 0 {
		ports = config.DefaultPorts
	}

	r := &Registry{
		Neighbors: NewNeighborTable(),
		Pinger:    NewPinger(behavior.ConnectTimeout),
		Ports:     NewPortProber(ports, behavior.ConnectTimeout),
		DNS:       NewReverseResolver(cfg.Discovery.DNSServer, 2*time.Second),
		OUI:       NewOUIDatabase(log),
		Local:     DetectLocalIdentity(),
	}

	if path := cfg.Classify.OUIPath; path != "" {
		if err := r.OUI.LoadFile(path); err != nil {
			log.WithError(err).Warn("OUI database unavailable, vendor hints limited to sweep results")
		}
	}

	nmapAdapter := NewNmapAdapter(
		WithTiming(behavior.NmapTiming),
		WithMaxRetries(cfg.Fingerprint.Nmap.MaxRetries),
		WithHostTimeout(cfg.Fingerprint.Nmap.HostTimeout.Duration()),
		WithPortList(ports),
		WithOSDetection(cfg.Fingerprint.Nmap.OSDetection),
		WithNmapLogger(log),
	)

	switch cfg.Discovery.Sweep {
	case config.SweepNmap, "":
		r.Sweeper = nmapAdapter
	case config.SweepARP:
		r.Sweeper = NewARPAdapter(cfg.Discovery.Interface, behavior.ConnectTimeout*2, log)
	case config.SweepNeighbor:
		r.Sweeper = r.Neighbors
	default:
		return nil, fmt.Errorf("unknown sweep strategy %q", cfg.Discovery.Sweep)
	}

	if cfg.Fingerprint.Nmap.Enabled {
		r.Fingerprints = append(r.Fingerprints, nmapAdapter)
	}
	if snmp := cfg.Fingerprint.SNMP; snmp.Enabled {
		r.Fingerprints = append(r.Fingerprints, NewSNMPAdapter(snmp.Community, snmp.Port, snmp.Timeout.Duration(), log))
	}
	if sshCfg := cfg.Fingerprint.SSH; sshCfg.Enabled {
		cred, err := sshCredential(sshCfg)
		if err != nil {
			log.WithError(err).Warn("SSH fingerprinting disabled")
		} else {
			probeCfg := DefaultSSHProbeConfig()
			if d := sshCfg.Timeout.Duration(); d > 0 {
				probeCfg.ConnectionTimeout = d
			}
			r.Fingerprints = append(r.Fingerprints, NewSSHProbeAdapter([]SSHCredential{cred}, probeCfg, log))
		}
	}

	for _, fp := range r.Fingerprints {
		log.WithField("adapter", fp.Name()).Debug("Registered fingerprint source")
	}
	log.WithField("adapter", r.Sweeper.Name()).Debug("Registered sweeper")

	return r, nil
}

func sshCredential(c config.SSHConfig) (SSHCredential, error) {
	cred := SSHCredential{
		User:       c.User,
		Passphrase: c.Passphrase,
		Password:   c.Password,
	}
	if c.KeyPath != "" {
		key, err := os.ReadFile(c.KeyPath)
		if err != nil {
			return SSHCredential{}, fmt.Errorf("read SSH key: %w", err)
		}
		cred.PrivateKey = key
	}
	if cred.User == "" || (len(cred.PrivateKey) == 0 && cred.Password == "") {
		return SSHCredential{}, errors.New("ssh requires a user and a key or password")
	}
	return cred, nil
}
