package adapter

import (
	"fmt"
	"strings"
)

// FactCommand defines a command to run over SSH for fact gathering
type FactCommand struct {
	Name    string                                      // e.g., "os_release"
	Command string                                      // e.g., "cat /etc/os-release"
	Parser  func(output string) (map[string]any, error) // Parse command output into facts
}

// DefaultFactCommands are the standard fact-gathering commands
var DefaultFactCommands = []FactCommand{
	{
		Name:    "hostname",
		Command: "hostname -f 2>/dev/null || hostname",
		Parser:  parseHostname,
	},
	{
		Name:    "os_release",
		Command: "cat /etc/os-release 2>/dev/null",
		Parser:  parseOSRelease,
	},
	{
		Name:    "uname",
		Command: "uname -a",
		Parser:  parseUname,
	},
}

// parseHostname extracts hostname from hostname command
func parseHostname(output string) (map[string]any, error) {
	hostname := strings.TrimSpace(output)
	if hostname == "" {
		return nil, fmt.Errorf("empty hostname")
	}

	facts := map[string]any{
		"hostname": hostname,
	}

	// Extract short hostname if FQDN
	if idx := strings.Index(hostname, "."); idx > 0 {
		facts["hostname_short"] = hostname[:idx]
		facts["domain"] = hostname[idx+1:]
	}

	return facts, nil
}

// parseOSRelease parses /etc/os-release file
// Format: KEY=value or KEY="value"
func parseOSRelease(output string) (map[string]any, error) {
	if output == "" {
		return nil, fmt.Errorf("empty os-release output")
	}

	osInfo := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		osInfo[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), "\"'")
	}

	if len(osInfo) == 0 {
		return nil, fmt.Errorf("no OS information found")
	}

	facts := make(map[string]any)
	for key, fact := range map[string]string{
		"NAME":        "os_name",
		"VERSION":     "os_version",
		"ID":          "os_id",
		"VERSION_ID":  "os_version_id",
		"PRETTY_NAME": "os_pretty_name",
	} {
		if v, ok := osInfo[key]; ok {
			facts[fact] = v
		}
	}

	return facts, nil
}

// parseUname parses uname -a output
// Format: Linux hostname 5.15.0-76-generic #83-Ubuntu SMP Thu Jun 15 19:16:32 UTC 2023 x86_64 x86_64 x86_64 GNU/Linux
func parseUname(output string) (map[string]any, error) {
	output = strings.TrimSpace(output)
	if output == "" {
		return nil, fmt.Errorf("empty uname output")
	}

	parts := strings.Fields(output)
	if len(parts) < 3 {
		return nil, fmt.Errorf("invalid uname output format")
	}

	facts := map[string]any{
		"kernel_name":    parts[0], // Linux
		"kernel_release": parts[2], // 5.15.0-76-generic
	}

	for i := len(parts) - 1; i >= 0; i-- {
		switch parts[i] {
		case "x86_64", "aarch64", "armv7l", "arm64", "i686", "mips":
			facts["architecture"] = parts[i]
		default:
			continue
		}
		break
	}

	facts["uname"] = output

	return facts, nil
}
