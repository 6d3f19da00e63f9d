package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"golang.org/x/crypto/ssh"
)

// connect establishes an SSH connection using the provided credential
// Supports both key-based and password authentication
func (s *SSHProbeAdapter) connect(ctx context.Context, host string, port int, cred SSHCredential) (*ssh.Client, error) {
	config, err := s.buildSSHConfig(cred)
	if err != nil {
		return nil, fmt.Errorf("failed to build SSH config: %w", err)
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))

	dialer := &net.Dialer{
		Timeout: s.timeout,
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	// The handshake itself is bounded by the context too
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to establish SSH connection: %w", err)
	}

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// buildSSHConfig creates an SSH client config from a credential
func (s *SSHProbeAdapter) buildSSHConfig(cred SSHCredential) (*ssh.ClientConfig, error) {
	if cred.User == "" {
		return nil, errors.New("username not set")
	}

	var auth ssh.AuthMethod
	switch {
	case len(cred.PrivateKey) > 0:
		var signer ssh.Signer
		var err error
		if cred.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(cred.PrivateKey, []byte(cred.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(cred.PrivateKey)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		auth = ssh.PublicKeys(signer)
	case cred.Password != "":
		auth = ssh.Password(cred.Password)
	default:
		return nil, errors.New("neither private key nor password set")
	}

	return &ssh.ClientConfig{
		User:            cred.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         s.timeout,
	}, nil
}

// runCommand executes a command over SSH and returns the output
func (s *SSHProbeAdapter) runCommand(ctx context.Context, client *ssh.Client, cmd string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	ctx, cancel := context.WithTimeout(ctx, s.commandTimeout)
	defer cancel()

	type result struct {
		output []byte
		err    error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(cmd)
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			// A non-zero exit still produces useful output
			var exitErr *ssh.ExitError
			if errors.As(r.err, &exitErr) {
				return string(r.output), nil
			}
			return "", fmt.Errorf("command failed: %w", r.err)
		}
		return string(r.output), nil
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return "", fmt.Errorf("command timeout: %w", ctx.Err())
	}
}
