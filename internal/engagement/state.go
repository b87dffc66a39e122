// Package engagement runs the autonomous plan-execute-analyze loop that
// drives one engagement from first contact to a terminal phase.
package engagement

import (
	"time"

	"github.com/redclawsec/redclaw/api/schemas"
	"github.com/redclawsec/redclaw/internal/analyzer"
	"github.com/redclawsec/redclaw/internal/phase"
)

// ToolRing is a bounded FIFO of tool call records. The oldest entry falls off
// when the ring is full.
type ToolRing struct {
	entries []schemas.ToolCallRecord
	cap     int
}

// NewToolRing creates a ring of the given capacity.
func NewToolRing(capacity int) *ToolRing {
	if capacity <= 0 {
		capacity = 50
	}
	return &ToolRing{cap: capacity}
}

// Append adds a record, evicting the oldest when full.
func (r *ToolRing) Append(rec schemas.ToolCallRecord) {
	if len(r.entries) >= r.cap {
		copy(r.entries, r.entries[1:])
		r.entries[len(r.entries)-1] = rec
		return
	}
	r.entries = append(r.entries, rec)
}

// Len reports the number of retained records.
func (r *ToolRing) Len() int { return len(r.entries) }

// Recent returns up to n of the newest records, oldest first.
func (r *ToolRing) Recent(n int) []schemas.ToolCallRecord {
	if n <= 0 || len(r.entries) == 0 {
		return nil
	}
	if n > len(r.entries) {
		n = len(r.entries)
	}
	out := make([]schemas.ToolCallRecord, n)
	copy(out, r.entries[len(r.entries)-n:])
	return out
}

// All returns a copy of every retained record, oldest first.
func (r *ToolRing) All() []schemas.ToolCallRecord {
	out := make([]schemas.ToolCallRecord, len(r.entries))
	copy(out, r.entries)
	return out
}

// State is the mutable engagement state owned by the loop goroutine. It is
// not safe for concurrent use; the loop alone touches it.
type State struct {
	Target      string
	Objective   string
	Iteration   int
	Discoveries analyzer.DiscoverySet
	History     *ToolRing
}

// Outcome classifies how the engagement ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// Result is the JSON-serializable summary returned by Run.
type Result struct {
	Target       string                   `json:"target"`
	Objective    string                   `json:"objective"`
	Outcome      Outcome                  `json:"outcome"`
	Iterations   int                      `json:"iterations"`
	Discoveries  analyzer.DiscoverySet    `json:"discoveries"`
	PhaseHistory []phase.Transition       `json:"phase_history"`
	FinalPhase   phase.Phase              `json:"final_phase"`
	ToolHistory  []schemas.ToolCallRecord `json:"tool_history,omitempty"`
	Summary      string                   `json:"summary,omitempty"`
	StartedAt    time.Time                `json:"started_at"`
	FinishedAt   time.Time                `json:"finished_at"`
	Err          string                   `json:"error,omitempty"`
}
