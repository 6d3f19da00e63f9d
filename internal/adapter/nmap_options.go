package adapter

import (
	"time"

	"github.com/sirupsen/logrus"
)

// NmapOption is a functional option for configuring NmapAdapter
type NmapOption func(*NmapAdapter)

// WithTiming sets the nmap timing template (0 paranoid .. 5 insane).
// Out-of-range values are ignored.
func WithTiming(t int) NmapOption {
	return func(n *NmapAdapter) {
		if t >= 0 && t <= 5 {
			n.timing = t
		}
	}
}

// WithMaxRetries sets the number of probe retransmissions (--max-retries)
func WithMaxRetries(retries int) NmapOption {
	return func(n *NmapAdapter) {
		if retries >= 0 {
			n.maxRetries = retries
		}
	}
}

// WithHostTimeout bounds the time nmap spends on a single host
func WithHostTimeout(d time.Duration) NmapOption {
	return func(n *NmapAdapter) {
		if d > 0 {
			n.hostTimeout = d
		}
	}
}

// WithPortList sets the ports scanned when a target has no known open ports
func WithPortList(ports []int) NmapOption {
	return func(n *NmapAdapter) {
		if len(ports) > 0 {
			n.ports = append([]int(nil), ports...)
		}
	}
}

// WithServiceDetection enables or disables service version detection (-sV)
func WithServiceDetection(enabled bool) NmapOption {
	return func(n *NmapAdapter) {
		n.serviceDetection = enabled
	}
}

// WithOSDetection enables or disables OS detection (-O)
// Note: OS detection requires root privileges
func WithOSDetection(enabled bool) NmapOption {
	return func(n *NmapAdapter) {
		n.osDetection = enabled
	}
}

// WithNmapLogger sets the logger used for scan warnings
func WithNmapLogger(log logrus.FieldLogger) NmapOption {
	return func(n *NmapAdapter) {
		if log != nil {
			n.log = log
		}
	}
}
