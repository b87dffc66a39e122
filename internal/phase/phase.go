// Package phase models engagement progress as a finite state machine with a
// fixed transition table, per-phase retry accounting and exponential backoff.
package phase

import "time"

// Phase is a named stage of an engagement's progress.
type Phase string

const (
	Idle                  Phase = "idle"
	Reconnaissance        Phase = "reconnaissance"
	Scanning              Phase = "scanning"
	Enumeration           Phase = "enumeration"
	VulnerabilityAnalysis Phase = "vulnerability_analysis"
	Exploitation          Phase = "exploitation"
	PostExploitation      Phase = "post_exploitation"
	Reporting             Phase = "reporting"
	Completed             Phase = "completed"
	Error                 Phase = "error"
)

// successors is the static transition table. It is total: every phase maps to
// a (possibly empty) successor list. Completed is terminal. The Error row is
// consulted only by Recover; normal transitions never exit the Error phase.
var successors = map[Phase][]Phase{
	Idle:                  {Reconnaissance},
	Reconnaissance:        {Scanning},
	Scanning:              {Enumeration, Exploitation},
	Enumeration:           {VulnerabilityAnalysis, Exploitation},
	VulnerabilityAnalysis: {Exploitation, Enumeration},
	Exploitation:          {PostExploitation, Scanning},
	PostExploitation:      {Reporting, Exploitation},
	Reporting:             {Completed},
	Completed:             {},
	Error:                 {Reconnaissance, Scanning, Enumeration, Exploitation, Reporting, Completed},
}

// Valid reports whether p is a member of the phase enumeration.
func Valid(p Phase) bool {
	_, ok := successors[p]
	return ok
}

// Terminal reports whether p has no outgoing normal transitions.
func Terminal(p Phase) bool {
	return p == Completed || p == Error
}

// Path returns the hops of the shortest legal route from one phase to
// another, excluding from itself. Nil means no route exists. Routes never
// pass through the Error phase.
func Path(from, to Phase) []Phase {
	if from == to || !Valid(from) || !Valid(to) || from == Error {
		return nil
	}

	parent := map[Phase]Phase{from: from}
	queue := []Phase{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range successors[cur] {
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = cur
			if next == to {
				var hops []Phase
				for p := to; p != from; p = parent[p] {
					hops = append([]Phase{p}, hops...)
				}
				return hops
			}
			queue = append(queue, next)
		}
	}
	return nil
}

// Transition is an immutable record of one accepted phase change.
type Transition struct {
	From      Phase     `json:"from"`
	To        Phase     `json:"to"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}
