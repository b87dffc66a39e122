// Package analyzer turns raw tool output into typed discoveries and keeps the
// accumulated discovery sets deduplicated. Everything here is pure with
// respect to the engagement loop: functions receive the current sets, return
// new data, and the loop decides what to merge.
package analyzer

import (
	"fmt"
	"strings"

	"github.com/redclawsec/redclaw/api/schemas"
)

// DiscoverySet holds everything learned about the target so far. Each set is
// deduplicated by its natural key; adding an already-present item is a no-op
// that leaves existing entries byte-for-byte unmodified. Insertion order is
// preserved so samples shown to the oracle stay stable across iterations.
type DiscoverySet struct {
	Ports           []schemas.Port          `json:"ports"`
	Services        []schemas.Service       `json:"services"`
	Vulnerabilities []schemas.Vulnerability `json:"vulnerabilities"`
	Credentials     []schemas.Credential    `json:"credentials"`
	Flags           []string                `json:"flags"`
}

// HasPort reports membership by the (number, protocol) key.
func (d *DiscoverySet) HasPort(number int, protocol string) bool {
	for _, p := range d.Ports {
		if p.Number == number && p.Protocol == protocol {
			return true
		}
	}
	return false
}

// HasService reports membership by port.
func (d *DiscoverySet) HasService(port int) bool {
	for _, s := range d.Services {
		if s.Port == port {
			return true
		}
	}
	return false
}

// HasVulnerability reports membership by identifier.
func (d *DiscoverySet) HasVulnerability(id string) bool {
	for _, v := range d.Vulnerabilities {
		if v.ID == id {
			return true
		}
	}
	return false
}

// HasCredential reports membership by the (host, user) key.
func (d *DiscoverySet) HasCredential(host, user string) bool {
	for _, c := range d.Credentials {
		if c.Host == host && c.User == user {
			return true
		}
	}
	return false
}

// HasFlag reports membership by the case-insensitive flag key.
func (d *DiscoverySet) HasFlag(value string) bool {
	key := strings.ToLower(value)
	for _, f := range d.Flags {
		if strings.ToLower(f) == key {
			return true
		}
	}
	return false
}

// AddPort inserts a port unless its key is already present. Returns true on
// insertion.
func (d *DiscoverySet) AddPort(p schemas.Port) bool {
	if d.HasPort(p.Number, p.Protocol) {
		return false
	}
	d.Ports = append(d.Ports, p)
	return true
}

// AddService inserts a service unless its port is already claimed.
func (d *DiscoverySet) AddService(s schemas.Service) bool {
	if d.HasService(s.Port) {
		return false
	}
	d.Services = append(d.Services, s)
	return true
}

// AddVulnerability inserts a vulnerability unless its ID is already present.
func (d *DiscoverySet) AddVulnerability(v schemas.Vulnerability) bool {
	if d.HasVulnerability(v.ID) {
		return false
	}
	d.Vulnerabilities = append(d.Vulnerabilities, v)
	return true
}

// AddCredential inserts a credential unless its (host, user) key is present.
func (d *DiscoverySet) AddCredential(c schemas.Credential) bool {
	if d.HasCredential(c.Host, c.User) {
		return false
	}
	d.Credentials = append(d.Credentials, c)
	return true
}

// AddFlag inserts a flag unless the lower-cased value is already present. The
// stored value keeps its original casing.
func (d *DiscoverySet) AddFlag(value string) bool {
	if d.HasFlag(value) {
		return false
	}
	d.Flags = append(d.Flags, value)
	return true
}

// Merge applies a report's new discoveries. It is idempotent: applying the
// same report twice leaves every set size unchanged on the second pass.
func (d *DiscoverySet) Merge(r Report) {
	for _, p := range r.NewPorts {
		d.AddPort(p)
	}
	for _, s := range r.NewServices {
		d.AddService(s)
	}
	for _, v := range r.NewVulns {
		d.AddVulnerability(v)
	}
	for _, f := range r.NewFlags {
		d.AddFlag(f)
	}
}

// PortStrings renders up to limit ports as "22/tcp" style strings.
func (d *DiscoverySet) PortStrings(limit int) []string {
	out := make([]string, 0, min(limit, len(d.Ports)))
	for _, p := range d.Ports {
		if len(out) >= limit {
			break
		}
		out = append(out, fmt.Sprintf("%d/%s", p.Number, p.Protocol))
	}
	return out
}

// ServiceStrings renders up to limit services as "80/tcp http" style strings.
func (d *DiscoverySet) ServiceStrings(limit int) []string {
	out := make([]string, 0, min(limit, len(d.Services)))
	for _, s := range d.Services {
		if len(out) >= limit {
			break
		}
		out = append(out, fmt.Sprintf("%d/%s %s", s.Port, s.Protocol, s.Name))
	}
	return out
}

// VulnStrings renders up to limit vulnerability identifiers.
func (d *DiscoverySet) VulnStrings(limit int) []string {
	out := make([]string, 0, min(limit, len(d.Vulnerabilities)))
	for _, v := range d.Vulnerabilities {
		if len(out) >= limit {
			break
		}
		out = append(out, v.ID)
	}
	return out
}

// FlagSample returns up to limit flags in insertion order.
func (d *DiscoverySet) FlagSample(limit int) []string {
	if len(d.Flags) <= limit {
		return append([]string(nil), d.Flags...)
	}
	return append([]string(nil), d.Flags[:limit]...)
}
