package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"lanwatch/internal/domain"
)

// ErrNotApplicable means a fingerprint source cannot be used for this target
// (for example SSH when port 22 is closed).
var ErrNotApplicable = errors.New("fingerprint source not applicable")

// ErrNoFingerprint means the source answered but produced no OS guess
var ErrNoFingerprint = errors.New("no fingerprint")

// Target describes what is already known about a host before fingerprinting
type Target struct {
	Addr      netip.Addr
	OpenPorts domain.PortSet
}

// Fingerprint is the result of one fingerprint source. Besides the OS
// guess a source may learn the hostname or hardware address on the way.
type Fingerprint struct {
	OS           domain.OSFingerprint
	Hostname     string
	HardwareAddr string
	Vendor       string
}

// Fingerprinter produces an OS guess for one host
type Fingerprinter interface {
	Name() string
	Fingerprint(ctx context.Context, target Target) (Fingerprint, error)
}

// FingerprintChain tries each source in order and returns the first success
type FingerprintChain []Fingerprinter

// Name returns the chain identifier
func (c FingerprintChain) Name() string { return "chain" }

// Fingerprint runs the sources in order. Sources that are not applicable are
// skipped silently; other failures are joined into the returned error when no
// source succeeds.
func (c FingerprintChain) Fingerprint(ctx context.Context, target Target) (Fingerprint, error) {
	var errs []error
	for _, fp := range c {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		result, err := fp.Fingerprint(ctx, target)
		if err == nil && result.OS.Name != "" {
			if result.OS.Source == "" {
				result.OS.Source = fp.Name()
			}
			return result, nil
		}
		if err == nil {
			err = ErrNoFingerprint
		}
		if !errors.Is(err, ErrNotApplicable) {
			errs = append(errs, fmt.Errorf("%s: %w", fp.Name(), err))
		}
	}
	if len(errs) == 0 {
		return Fingerprint{}, ErrNoFingerprint
	}
	return Fingerprint{}, errors.Join(errs...)
}
