// Package schemas defines the wire-level types shared between the engagement
// loop and its external collaborators (the reasoning oracle, the tool executor
// and the knowledge store). Keeping them here avoids import cycles between the
// internal packages that produce and consume them.
package schemas

import "time"

// ActionProposal is one candidate action suggested by the reasoning oracle for
// the current iteration. It has no identity beyond its position in the list
// returned for a single decision round.
type ActionProposal struct {
	// Name is the logical action name (e.g. "nmap_scan", "record_flag").
	Name string `json:"name"`
	// Args holds the string-keyed argument record for the action. Values are
	// primitives or nested records, exactly as decoded from the oracle's JSON.
	Args map[string]interface{} `json:"args,omitempty"`
	// Rationale is the oracle's concise justification for proposing the action.
	Rationale string `json:"rationale,omitempty"`
}

// InvocationRequest is the dispatcher's translation of an ActionProposal into
// something the tool executor can run. Requests that cannot or must not reach
// the executor carry one of the sentinel markers instead of a command.
type InvocationRequest struct {
	ID     string `json:"id"`
	Action string `json:"action"`

	// Command is the full command line handed to the executor. Empty for
	// internal, unsupported and invalid requests.
	Command string `json:"command,omitempty"`

	// Internal marks actions handled entirely inside the loop (record_flag).
	// Internal requests never produce an outbound invocation.
	Internal bool `json:"internal,omitempty"`
	// Flag carries the flag value for the record_flag internal action.
	Flag string `json:"flag,omitempty"`

	// Unsupported marks the sentinel returned for unknown action names. The
	// loop reports it and continues rather than aborting the iteration.
	Unsupported bool `json:"unsupported,omitempty"`

	// ValidationError is set when a required argument was absent. The builder
	// rejects by returning this marker, never by raising.
	ValidationError string `json:"validation_error,omitempty"`

	// Credential is an optional hint set by builders that carry credentials
	// (ssh_connect, ftp_connect). On a successful invocation the loop records
	// it as a credential discovery.
	Credential *Credential `json:"credential,omitempty"`
}

// Executable reports whether the request should be handed to the executor.
func (r InvocationRequest) Executable() bool {
	return !r.Internal && !r.Unsupported && r.ValidationError == "" && r.Command != ""
}

// ToolInvocationResult is the outcome of a single tool invocation. Ordinary
// tool failure (non-zero exit, empty output, timeout) is encoded here, never
// surfaced as an error by the executor.
type ToolInvocationResult struct {
	RequestID string        `json:"request_id"`
	Action    string        `json:"action"`
	Command   string        `json:"command,omitempty"`
	Success   bool          `json:"success"`
	Output    string        `json:"output"`
	Error     string        `json:"error,omitempty"`
	TimedOut  bool          `json:"timed_out,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// ToolCallRecord is the truncated trace of one tool invocation retained in the
// engagement's bounded history ring.
type ToolCallRecord struct {
	Tool      string                 `json:"tool"`
	Args      map[string]interface{} `json:"args,omitempty"`
	Excerpt   string                 `json:"excerpt"`
	Success   bool                   `json:"success"`
	Timestamp time.Time              `json:"timestamp"`
}

// ContextSnapshot is the bounded view of engagement progress submitted to the
// reasoning oracle on every Plan step. Samples are capped so the prompt stays
// a predictable size regardless of how much has been discovered.
type ContextSnapshot struct {
	Target    string `json:"target"`
	Objective string `json:"objective"`
	Phase     string `json:"phase"`
	Iteration int    `json:"iteration"`
	Budget    int    `json:"budget"`

	PortCount    int `json:"port_count"`
	ServiceCount int `json:"service_count"`
	VulnCount    int `json:"vuln_count"`
	CredCount    int `json:"cred_count"`
	FlagCount    int `json:"flag_count"`

	Ports    []string `json:"ports,omitempty"`
	Services []string `json:"services,omitempty"`
	Vulns    []string `json:"vulns,omitempty"`
	Flags    []string `json:"flags,omitempty"`

	RecentTools []ToolCallRecord `json:"recent_tools,omitempty"`

	// KnowledgeContext is the best-effort text retrieved from the knowledge
	// store for this target; empty when the store is absent or failing.
	KnowledgeContext string `json:"knowledge_context,omitempty"`
}

// Port identifies an open port. The discovery key is the (Number, Protocol)
// pair.
type Port struct {
	Number   int    `json:"number"`
	Protocol string `json:"protocol"`
}

// Service describes a service detected behind an open port. Keyed by port.
type Service struct {
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
	Name     string `json:"name"`
	Version  string `json:"version,omitempty"`
}

// Vulnerability is a suspected weakness, keyed by its identifier (CVE or
// scanner-native ID).
type Vulnerability struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	Severity    string `json:"severity,omitempty"`
}

// Credential is a working credential pair, keyed by (Host, User).
type Credential struct {
	Host     string `json:"host"`
	User     string `json:"user"`
	Password string `json:"password,omitempty"`
}

// DiscoveryRecord is the unit persisted to the knowledge store whenever the
// analyzer yields a new discovery.
type DiscoveryRecord struct {
	Target    string    `json:"target"`
	Category  string    `json:"category"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}
