package analyzer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/redclawsec/redclaw/api/schemas"
	"github.com/redclawsec/redclaw/internal/phase"
)

// Wrapped flag formats are tried before the bare hash so a 32-hex token
// inside "flag{...}" does not report twice.
var wrappedFlagPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)flag\{[^}]+\}`),
	regexp.MustCompile(`(?i)ctf\{[^}]+\}`),
	regexp.MustCompile(`(?i)thm\{[^}]+\}`),
	regexp.MustCompile(`(?i)htb\{[^}]+\}`),
}

var bareHashPattern = regexp.MustCompile(`\b[a-fA-F0-9]{32}\b`)

var cvePattern = regexp.MustCompile(`(?i)CVE-\d{4}-\d{4,}`)

// Report carries the discoveries extracted from one tool invocation that were
// not already present in the set passed to Analyze.
type Report struct {
	NewPorts    []schemas.Port
	NewServices []schemas.Service
	NewVulns    []schemas.Vulnerability
	NewFlags    []string
}

// Empty reports whether the analysis produced nothing new.
func (r Report) Empty() bool {
	return len(r.NewPorts) == 0 && len(r.NewServices) == 0 &&
		len(r.NewVulns) == 0 && len(r.NewFlags) == 0
}

// Analyze scans raw tool output for ports, services, vulnerabilities and
// flags. Only items absent from current are reported; current itself is never
// modified, so callers choose when to Merge. Analyze never fails: unparseable
// output simply yields an empty report.
func Analyze(raw string, current *DiscoverySet) Report {
	var rep Report
	if strings.TrimSpace(raw) == "" {
		return rep
	}

	// Track keys claimed inside this report so one output blob cannot
	// report the same item twice.
	seenFlags := map[string]bool{}
	seenVulns := map[string]bool{}
	seenPorts := map[string]bool{}

	var wrappedSpans [][]int
	for _, pat := range wrappedFlagPatterns {
		for _, span := range pat.FindAllStringIndex(raw, -1) {
			wrappedSpans = append(wrappedSpans, span)
			m := raw[span[0]:span[1]]
			key := strings.ToLower(m)
			if seenFlags[key] || current.HasFlag(m) {
				continue
			}
			seenFlags[key] = true
			rep.NewFlags = append(rep.NewFlags, m)
		}
	}
	for _, span := range bareHashPattern.FindAllStringIndex(raw, -1) {
		if insideAny(span, wrappedSpans) {
			continue
		}
		m := raw[span[0]:span[1]]
		key := strings.ToLower(m)
		if seenFlags[key] || current.HasFlag(m) {
			continue
		}
		seenFlags[key] = true
		rep.NewFlags = append(rep.NewFlags, m)
	}

	for _, m := range cvePattern.FindAllString(raw, -1) {
		id := strings.ToUpper(m)
		if seenVulns[id] || current.HasVulnerability(id) {
			continue
		}
		seenVulns[id] = true
		rep.NewVulns = append(rep.NewVulns, schemas.Vulnerability{
			ID:          id,
			Description: id,
			Severity:    "unknown",
		})
	}

	for _, line := range strings.Split(raw, "\n") {
		port, proto, svc, ok := parsePortLine(line)
		if !ok {
			continue
		}
		key := strconv.Itoa(port) + "/" + proto
		if !seenPorts[key] && !current.HasPort(port, proto) {
			seenPorts[key] = true
			rep.NewPorts = append(rep.NewPorts, schemas.Port{Number: port, Protocol: proto})
		}
		if svc != "" && !current.HasService(port) {
			claimed := false
			for _, s := range rep.NewServices {
				if s.Port == port {
					claimed = true
					break
				}
			}
			if !claimed {
				rep.NewServices = append(rep.NewServices, schemas.Service{
					Port:     port,
					Protocol: proto,
					Name:     svc,
					Version:  serviceVersion(line),
				})
			}
		}
	}

	return rep
}

// insideAny reports whether span falls entirely within one of the given
// spans.
func insideAny(span []int, spans [][]int) bool {
	for _, s := range spans {
		if span[0] >= s[0] && span[1] <= s[1] {
			return true
		}
	}
	return false
}

// parsePortLine recognizes the nmap table format: "22/tcp  open  ssh ...".
// Lines whose state is anything but "open" are ignored, as is anything that
// does not start with a port/protocol token.
func parsePortLine(line string) (port int, proto, service string, ok bool) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) < 2 {
		return 0, "", "", false
	}
	spec := strings.SplitN(fields[0], "/", 2)
	if len(spec) != 2 {
		return 0, "", "", false
	}
	if spec[1] != "tcp" && spec[1] != "udp" {
		return 0, "", "", false
	}
	n, err := strconv.Atoi(spec[0])
	if err != nil || n < 1 || n > 65535 {
		return 0, "", "", false
	}
	if !strings.EqualFold(fields[1], "open") {
		return 0, "", "", false
	}
	if len(fields) >= 3 {
		service = fields[2]
	}
	return n, spec[1], service, true
}

// serviceVersion returns whatever trails the service name on an nmap line,
// which is usually a product banner. Best effort only.
func serviceVersion(line string) string {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) < 4 {
		return ""
	}
	return strings.Join(fields[3:], " ")
}

// InferPhase maps the current discovery state onto the engagement phase the
// evidence supports. Stronger evidence wins: flags over vulnerabilities over
// services over ports.
func InferPhase(d *DiscoverySet, flagThreshold int) phase.Phase {
	switch {
	case len(d.Flags) >= flagThreshold:
		return phase.Completed
	case len(d.Flags) >= 1:
		return phase.PostExploitation
	case len(d.Vulnerabilities) > 0:
		return phase.Exploitation
	case len(d.Services) > 0:
		return phase.Enumeration
	case len(d.Ports) > 0:
		return phase.Scanning
	default:
		return phase.Reconnaissance
	}
}
