package config

import "time"

// Posture defines behavioral aggressiveness
type Posture string

const (
	PostureStealth    Posture = "stealth"    // Minimal footprint, slow refresh
	PostureCautious   Posture = "cautious"   // Conservative, small pools
	PostureBalanced   Posture = "balanced"   // Default home/office LAN behavior
	PostureAggressive Posture = "aggressive" // Fast refresh, wide fan-out
)

// ParsePosture converts a string to Posture, defaulting to PostureBalanced
func ParsePosture(s string) Posture {
	switch s {
	case "stealth":
		return PostureStealth
	case "cautious":
		return PostureCautious
	case "balanced":
		return PostureBalanced
	case "aggressive":
		return PostureAggressive
	default:
		return PostureBalanced
	}
}

// BehaviorProfile defines timing and concurrency settings for discovery rounds
type BehaviorProfile struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	RoundTimeout    time.Duration `yaml:"round_timeout"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout"`   // whole budget for one host
	ConnectTimeout  time.Duration `yaml:"connect_timeout"` // single TCP dial
	Workers         int           `yaml:"workers"`
	RetryWorkers    int           `yaml:"retry_workers"`
	NmapTiming      int           `yaml:"nmap_timing"` // -T0 .. -T5
}

// PostureProfiles maps postures to their default behavior profiles
var PostureProfiles = map[Posture]BehaviorProfile{
	PostureStealth: {
		RefreshInterval: 30 * time.Minute,
		RoundTimeout:    20 * time.Minute,
		ProbeTimeout:    60 * time.Second,
		ConnectTimeout:  3 * time.Second,
		Workers:         2,
		RetryWorkers:    1,
		NmapTiming:      2,
	},
	PostureCautious: {
		RefreshInterval: 5 * time.Minute,
		RoundTimeout:    10 * time.Minute,
		ProbeTimeout:    45 * time.Second,
		ConnectTimeout:  2 * time.Second,
		Workers:         10,
		RetryWorkers:    2,
		NmapTiming:      3,
	},
	PostureBalanced: {
		RefreshInterval: 60 * time.Second,
		RoundTimeout:    5 * time.Minute,
		ProbeTimeout:    30 * time.Second,
		ConnectTimeout:  time.Second,
		Workers:         50,
		RetryWorkers:    5,
		NmapTiming:      4,
	},
	PostureAggressive: {
		RefreshInterval: 30 * time.Second,
		RoundTimeout:    3 * time.Minute,
		ProbeTimeout:    15 * time.Second,
		ConnectTimeout:  500 * time.Millisecond,
		Workers:         100,
		RetryWorkers:    10,
		NmapTiming:      5,
	},
}

// GetProfile returns the behavior profile for a posture
func (p Posture) GetProfile() BehaviorProfile {
	if profile, ok := PostureProfiles[p]; ok {
		return profile
	}
	return PostureProfiles[PostureBalanced]
}
