package adapter

import (
	"os"
	"runtime"
	"strings"

	"lanwatch/internal/domain"
)

// LocalIdentity describes the machine running the inventory. It is derived
// without any network traffic.
type LocalIdentity struct {
	Hostname string
	OS       domain.OSFingerprint
}

const osReleasePath = "/etc/os-release"

var goosNames = map[string]string{
	"darwin":  "macOS",
	"windows": "Windows",
	"freebsd": "FreeBSD",
	"openbsd": "OpenBSD",
	"netbsd":  "NetBSD",
	"android": "Android",
	"ios":     "iOS",
	"linux":   "Linux",
}

// DetectLocalIdentity reads the hostname and the running OS
func DetectLocalIdentity() LocalIdentity {
	var id LocalIdentity
	if name, err := os.Hostname(); err == nil {
		id.Hostname = strings.TrimSuffix(name, ".")
	}
	id.OS = localOS(runtime.GOOS, readFile(osReleasePath))
	return id
}

func readFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}

// localOS builds a fingerprint from GOOS, refined by os-release on Linux
func localOS(goos, osRelease string) domain.OSFingerprint {
	family, ok := goosNames[goos]
	if !ok {
		family = goos
	}
	fp := domain.OSFingerprint{
		Name:     family,
		Accuracy: 100,
		Source:   "local",
	}

	if goos != "linux" || osRelease == "" {
		return fp
	}
	facts, err := parseOSRelease(osRelease)
	if err != nil {
		return fp
	}
	if pretty, _ := facts["os_pretty_name"].(string); pretty != "" {
		fp.Name = pretty
	} else if name, _ := facts["os_name"].(string); name != "" {
		fp.Name = name
	}
	if id, _ := facts["os_id"].(string); id != "" && id != fp.Name {
		fp.Candidates = append(fp.Candidates, id)
	}
	fp.Candidates = append(fp.Candidates, family)
	return fp
}
