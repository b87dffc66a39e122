package phase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestMachine(t *testing.T) *Machine {
	t.Helper()
	return NewMachine(zap.NewNop(), DefaultConfig())
}

func TestMachine_StartsIdle(t *testing.T) {
	m := newTestMachine(t)
	assert.Equal(t, Idle, m.Current())
	assert.Empty(t, m.History())
}

func TestMachine_TransitionTableIsTotal(t *testing.T) {
	all := []Phase{
		Idle, Reconnaissance, Scanning, Enumeration, VulnerabilityAnalysis,
		Exploitation, PostExploitation, Reporting, Completed, Error,
	}
	for _, p := range all {
		assert.True(t, Valid(p), "phase %s missing from table", p)
	}
	assert.Empty(t, successors[Completed])
}

func TestMachine_ValidTransitionPath(t *testing.T) {
	m := newTestMachine(t)
	path := []Phase{Reconnaissance, Scanning, Enumeration, VulnerabilityAnalysis, Exploitation, PostExploitation, Reporting, Completed}

	for _, next := range path {
		require.True(t, m.CanTransition(next), "expected %s -> %s to be legal", m.Current(), next)
		require.True(t, m.Transition(next, "test"))
	}
	assert.Equal(t, Completed, m.Current())
	assert.Len(t, m.History(), len(path))
}

func TestMachine_RejectedTransitionHasNoSideEffects(t *testing.T) {
	m := newTestMachine(t)
	require.True(t, m.Transition(Reconnaissance, "start"))
	before := len(m.History())

	// Reconnaissance cannot jump straight to Exploitation.
	assert.False(t, m.CanTransition(Exploitation))
	assert.False(t, m.Transition(Exploitation, "illegal"))
	assert.Equal(t, Reconnaissance, m.Current())
	assert.Len(t, m.History(), before)
}

func TestMachine_SelfLoopRejected(t *testing.T) {
	m := newTestMachine(t)
	require.True(t, m.Transition(Reconnaissance, "start"))
	require.True(t, m.Transition(Scanning, "ports"))

	assert.False(t, m.Transition(Scanning, "again"))
	assert.Equal(t, Scanning, m.Current())
}

func TestMachine_CompletedIsTerminal(t *testing.T) {
	m := newTestMachine(t)
	require.True(t, m.Complete("forced"))

	for _, target := range []Phase{Idle, Reconnaissance, Scanning, Error} {
		assert.False(t, m.CanTransition(target))
		assert.False(t, m.Transition(target, "escape"))
	}
	assert.False(t, m.Complete("again"))
}

func TestMachine_HandleErrorRetriesThenFails(t *testing.T) {
	m := newTestMachine(t)
	require.True(t, m.Transition(Reconnaissance, "start"))

	assert.Equal(t, OutcomeRetry, m.HandleError("timeout", true))
	assert.Equal(t, OutcomeRetry, m.HandleError("timeout", true))
	assert.Equal(t, OutcomeRetry, m.HandleError("timeout", true))
	assert.Equal(t, Reconnaissance, m.Current(), "phase unchanged while retrying")
	assert.Equal(t, 3, m.Retries(Reconnaissance))

	// Fourth recoverable error exceeds the default budget of three.
	assert.Equal(t, OutcomeFailed, m.HandleError("timeout", true))
	assert.Equal(t, Error, m.Current())
	assert.Equal(t, "timeout", m.ErrorMessage())
}

func TestMachine_HandleErrorUnrecoverable(t *testing.T) {
	m := newTestMachine(t)
	require.True(t, m.Transition(Reconnaissance, "start"))

	assert.Equal(t, OutcomeFailed, m.HandleError("boom", false))
	assert.Equal(t, Error, m.Current())
}

func TestMachine_RetryCounterResetsOnPhaseEntry(t *testing.T) {
	m := newTestMachine(t)
	require.True(t, m.Transition(Reconnaissance, "start"))
	assert.Equal(t, OutcomeRetry, m.HandleError("blip", true))
	assert.Equal(t, 1, m.Retries(Reconnaissance))

	require.True(t, m.Transition(Scanning, "ports"))
	require.True(t, m.HandleError("blip", false) == OutcomeFailed)
	require.True(t, m.Recover(Reconnaissance, "operator retry"))

	// Re-entering Reconnaissance reset its counter.
	assert.Equal(t, 0, m.Retries(Reconnaissance))
	assert.Empty(t, m.ErrorMessage())
}

func TestMachine_RecoverOnlyFromError(t *testing.T) {
	m := newTestMachine(t)
	require.True(t, m.Transition(Reconnaissance, "start"))

	assert.False(t, m.Recover(Scanning, "not in error"))

	require.Equal(t, OutcomeFailed, m.HandleError("fatal", false))
	assert.False(t, m.Recover(PostExploitation, "not in error row"))
	assert.True(t, m.Recover(Scanning, "resume"))
	assert.Equal(t, Scanning, m.Current())
}

func TestMachine_ErrorPhaseBlocksNormalTransitions(t *testing.T) {
	m := newTestMachine(t)
	require.True(t, m.Transition(Reconnaissance, "start"))
	require.Equal(t, OutcomeFailed, m.HandleError("fatal", false))

	// Even targets in the Error successor row are rejected without Recover.
	assert.False(t, m.CanTransition(Scanning))
	assert.False(t, m.Transition(Scanning, "sneak out"))
	assert.Equal(t, Error, m.Current())
}

func TestMachine_BackoffDelay(t *testing.T) {
	m := NewMachine(zap.NewNop(), Config{BackoffBase: time.Second, BackoffCap: 30 * time.Second})

	assert.Equal(t, time.Second, m.BackoffDelay(0))
	assert.Equal(t, 2*time.Second, m.BackoffDelay(1))
	assert.Equal(t, 4*time.Second, m.BackoffDelay(2))
	assert.Equal(t, 16*time.Second, m.BackoffDelay(4))
	assert.Equal(t, 30*time.Second, m.BackoffDelay(5), "capped")
	assert.Equal(t, 30*time.Second, m.BackoffDelay(100))

	// Non-decreasing over a wide range.
	prev := time.Duration(0)
	for n := 0; n < 70; n++ {
		d := m.BackoffDelay(n)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", n)
		assert.LessOrEqual(t, d, 30*time.Second)
		prev = d
	}
}

func TestMachine_HistoryRecordsReasonAndOrder(t *testing.T) {
	m := newTestMachine(t)
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	require.True(t, m.Transition(Reconnaissance, "engagement started"))
	require.True(t, m.Transition(Scanning, "ports found"))

	h := m.History()
	require.Len(t, h, 2)
	assert.Equal(t, Idle, h[0].From)
	assert.Equal(t, Reconnaissance, h[0].To)
	assert.Equal(t, "engagement started", h[0].Reason)
	assert.Equal(t, fixed, h[0].Timestamp)
	assert.Equal(t, Reconnaissance, h[1].From)
	assert.Equal(t, Scanning, h[1].To)
}

func TestPath(t *testing.T) {
	assert.Equal(t, []Phase{Scanning, Enumeration}, Path(Reconnaissance, Enumeration))
	assert.Equal(t, []Phase{Scanning}, Path(Reconnaissance, Scanning))
	assert.Equal(t, []Phase{Exploitation, PostExploitation},
		Path(Enumeration, PostExploitation))
	assert.Equal(t, []Phase{Reporting, Completed}, Path(PostExploitation, Completed))
}

func TestPathNoRoute(t *testing.T) {
	assert.Nil(t, Path(Completed, Reconnaissance))
	assert.Nil(t, Path(Scanning, Scanning))
	assert.Nil(t, Path(Error, Scanning), "error recovery goes through Recover, not Path")
	assert.Nil(t, Path(Scanning, Idle))
	assert.Nil(t, Path(Scanning, "bogus"))
}

func TestPathNeverVisitsError(t *testing.T) {
	for from := range map[Phase][]Phase{Idle: nil, Reconnaissance: nil, Scanning: nil} {
		for _, hop := range Path(from, Completed) {
			assert.NotEqual(t, Error, hop)
		}
	}
}
