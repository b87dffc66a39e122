package phase

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Outcome is the verdict of HandleError: retry in place or give up.
type Outcome string

const (
	OutcomeRetry  Outcome = "retry"
	OutcomeFailed Outcome = "failed"
)

// Config holds the retry and backoff constants for a Machine.
type Config struct {
	// MaxRetries is the number of recoverable errors tolerated per phase
	// before the machine is forced into the Error phase.
	MaxRetries int
	// BackoffBase is the delay for attempt zero.
	BackoffBase time.Duration
	// BackoffCap bounds the exponential growth.
	BackoffCap time.Duration
}

// DefaultConfig returns the engagement defaults: three retries per phase,
// one second base backoff capped at thirty seconds.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		BackoffBase: time.Second,
		BackoffCap:  30 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = d.BackoffCap
	}
}

// Machine tracks the current engagement phase, validates transitions against
// the static table and keeps an append-only transition history. It owns the
// per-phase retry counters; callers own when to actually wait (BackoffDelay
// is a pure function of the attempt number).
type Machine struct {
	mu       sync.Mutex
	cfg      Config
	logger   *zap.Logger
	current  Phase
	previous Phase
	history  []Transition
	retries  map[Phase]int
	errMsg   string

	// now is swappable in tests for deterministic timestamps.
	now func() time.Time
}

// NewMachine returns a Machine at the Idle phase.
func NewMachine(logger *zap.Logger, cfg Config) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()
	return &Machine{
		cfg:     cfg,
		logger:  logger.Named("phase_machine"),
		current: Idle,
		retries: make(map[Phase]int),
		now:     time.Now,
	}
}

// Current returns the single current phase.
func (m *Machine) Current() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Previous returns the phase before the most recent accepted transition, or
// the zero value if none has occurred.
func (m *Machine) Previous() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.previous
}

// History returns a copy of the append-only transition records.
func (m *Machine) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}

// Retries returns the recoverable-error count accumulated in the given phase.
func (m *Machine) Retries(p Phase) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retries[p]
}

// ErrorMessage returns the message recorded by the most recent HandleError,
// cleared on any successful transition out of the Error phase.
func (m *Machine) ErrorMessage() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errMsg
}

// CanTransition reports whether target appears in the successor list for the
// current phase. It is always false from Completed, and false from Error:
// leaving the Error phase requires an explicit Recover.
func (m *Machine) CanTransition(target Phase) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canTransitionLocked(target)
}

func (m *Machine) canTransitionLocked(target Phase) bool {
	if m.current == Completed || m.current == Error {
		return false
	}
	for _, next := range successors[m.current] {
		if next == target {
			return true
		}
	}
	return false
}

// Transition moves the machine to target if the table allows it. A rejected
// transition has no side effects: the phase is unchanged and no record is
// appended.
func (m *Machine) Transition(target Phase, reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.canTransitionLocked(target) {
		m.logger.Debug("Rejected phase transition",
			zap.String("from", string(m.current)),
			zap.String("to", string(target)))
		return false
	}
	m.applyLocked(target, reason)
	return true
}

// applyLocked records and applies a transition. Caller holds the lock and has
// already validated (or deliberately bypassed) the table.
func (m *Machine) applyLocked(target Phase, reason string) {
	m.history = append(m.history, Transition{
		From:      m.current,
		To:        target,
		Reason:    reason,
		Timestamp: m.now().UTC(),
	})
	m.previous = m.current
	m.current = target

	if target != Error {
		m.retries[target] = 0
		m.errMsg = ""
	}

	m.logger.Info("Phase transition",
		zap.String("from", string(m.previous)),
		zap.String("to", string(target)),
		zap.String("reason", reason))
}

// HandleError accounts a recoverable or fatal error against the current
// phase. Fatal errors and retry exhaustion force the machine into the Error
// phase; entry into Error is always permitted and bypasses the table.
func (m *Machine) HandleError(message string, recoverable bool) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.errMsg = message
	m.retries[m.current]++

	if !recoverable || m.retries[m.current] > m.cfg.MaxRetries {
		if m.current != Error {
			m.applyLocked(Error, message)
		}
		return OutcomeFailed
	}

	m.logger.Warn("Recoverable error in phase",
		zap.String("phase", string(m.current)),
		zap.Int("attempt", m.retries[m.current]),
		zap.Int("max_retries", m.cfg.MaxRetries),
		zap.String("message", message))
	return OutcomeRetry
}

// BackoffDelay returns min(base << attempt, cap). It is a pure function of
// the attempt number; attempt zero yields the base delay.
func (m *Machine) BackoffDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return m.cfg.BackoffBase
	}
	// Shifts past 62 bits overflow; anything that large is past the cap.
	if attempt >= 62 {
		return m.cfg.BackoffCap
	}
	d := m.cfg.BackoffBase << uint(attempt)
	if d <= 0 || d > m.cfg.BackoffCap {
		return m.cfg.BackoffCap
	}
	return d
}

// Recover resumes from the Error phase into a known-good target. It returns
// false unless the machine is currently in Error and target appears in the
// Error row of the transition table.
func (m *Machine) Recover(target Phase, reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != Error {
		return false
	}
	allowed := false
	for _, next := range successors[Error] {
		if next == target {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}
	m.applyLocked(target, reason)
	return true
}

// Complete forces entry into the Completed terminal phase, recording the
// transition. Like Error entry it is always permitted; it is how the loop
// closes out an engagement whose success condition was met from a phase with
// no legal path to Completed. Returns false if already Completed.
func (m *Machine) Complete(reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == Completed {
		return false
	}
	m.applyLocked(Completed, reason)
	return true
}
