package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// SSHCredential is one login the SSH probe may try. PrivateKey and Password
// are alternatives; a key wins when both are set.
type SSHCredential struct {
	User       string
	PrivateKey []byte
	Passphrase string
	Password   string
}

// SSHProbeAdapter logs into hosts with port 22 open and reads OS facts
// (hostname, /etc/os-release, uname) to build a fingerprint.
type SSHProbeAdapter struct {
	credentials    []SSHCredential
	port           int
	timeout        time.Duration
	commandTimeout time.Duration
	commands       []FactCommand
	log            logrus.FieldLogger
}

// SSHProbeConfig holds configuration for the SSH probe adapter
type SSHProbeConfig struct {
	// Timeout for SSH connections
	ConnectionTimeout time.Duration
	// Timeout for each command
	CommandTimeout time.Duration
	// Commands to run for fact gathering
	Commands []FactCommand
}

// DefaultSSHProbeConfig returns sensible defaults
func DefaultSSHProbeConfig() SSHProbeConfig {
	return SSHProbeConfig{
		ConnectionTimeout: 10 * time.Second,
		CommandTimeout:    30 * time.Second,
		Commands:          DefaultFactCommands,
	}
}

// NewSSHProbeAdapter creates a new SSH probe adapter
func NewSSHProbeAdapter(creds []SSHCredential, config SSHProbeConfig, log logrus.FieldLogger) *SSHProbeAdapter {
	if config.ConnectionTimeout == 0 {
		config.ConnectionTimeout = 10 * time.Second
	}
	if config.CommandTimeout == 0 {
		config.CommandTimeout = 30 * time.Second
	}
	if len(config.Commands) == 0 {
		config.Commands = DefaultFactCommands
	}

	return &SSHProbeAdapter{
		credentials:    creds,
		port:           22,
		timeout:        config.ConnectionTimeout,
		commandTimeout: config.CommandTimeout,
		commands:       config.Commands,
		log:            fieldLogger(log),
	}
}

// Name returns the adapter identifier
func (s *SSHProbeAdapter) Name() string {
	return "ssh"
}

// Fingerprint connects with each credential in turn until one works, then
// runs the fact commands and folds the facts into an OS guess.
func (s *SSHProbeAdapter) Fingerprint(ctx context.Context, target Target) (Fingerprint, error) {
	if len(s.credentials) == 0 || !target.OpenPorts.Has(s.port) {
		return Fingerprint{}, ErrNotApplicable
	}

	log := s.log.WithField("addr", target.Addr.String())

	var lastErr error
	for _, cred := range s.credentials {
		facts, err := s.probeWithCredential(ctx, target.Addr.String(), cred)
		if err != nil {
			log.WithError(err).WithField("user", cred.User).Debug("SSH probe: credential failed")
			lastErr = err
			continue
		}

		fp, ok := fingerprintFromFacts(facts)
		if !ok {
			return Fingerprint{}, ErrNoFingerprint
		}
		log.WithField("os", fp.OS.Name).Debug("SSH probe: gathered facts")
		return fp, nil
	}

	return Fingerprint{}, fmt.Errorf("ssh %s: all credentials failed: %w", target.Addr, lastErr)
}

// probeWithCredential connects and gathers facts using a single credential
func (s *SSHProbeAdapter) probeWithCredential(ctx context.Context, host string, cred SSHCredential) (map[string]any, error) {
	client, err := s.connect(ctx, host, s.port, cred)
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	defer client.Close()

	facts := make(map[string]any)
	for _, factCmd := range s.commands {
		if ctx.Err() != nil {
			return facts, ctx.Err()
		}
		output, err := s.runCommand(ctx, client, factCmd.Command)
		if err != nil {
			s.log.Debugf("SSH probe: command '%s' failed on %s: %v", factCmd.Name, host, err)
			continue
		}

		parsed, err := factCmd.Parser(output)
		if err != nil {
			s.log.Debugf("SSH probe: failed to parse '%s' output from %s: %v", factCmd.Name, host, err)
			continue
		}
		for key, value := range parsed {
			facts[key] = value
		}
	}

	return facts, nil
}

// fingerprintFromFacts prefers the os-release name and falls back to the
// kernel name from uname.
func fingerprintFromFacts(facts map[string]any) (Fingerprint, bool) {
	str := func(key string) string {
		v, _ := facts[key].(string)
		return v
	}

	var fp Fingerprint
	fp.Hostname = str("hostname")

	name := str("os_pretty_name")
	if name == "" {
		name = strings.TrimSpace(str("os_name") + " " + str("os_version_id"))
	}
	kernel := str("kernel_name")
	if name == "" {
		name = kernel
	}
	if name == "" {
		return fp, false
	}

	fp.OS.Name = name
	fp.OS.Source = "ssh"
	for _, c := range []string{str("os_name"), str("os_id"), kernel} {
		if c != "" {
			fp.OS.Candidates = append(fp.OS.Candidates, c)
		}
	}
	return fp, true
}
