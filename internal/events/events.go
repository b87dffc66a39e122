// Package events carries the engagement's progress stream. Producers publish
// without blocking; slow subscribers lose events rather than stalling the
// loop.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/redclawsec/redclaw/internal/phase"
)

// Kind enumerates every event the loop emits. The set is closed so consumers
// can switch exhaustively.
type Kind string

const (
	KindIterationStart Kind = "iteration_start"
	KindPlanComplete   Kind = "plan_complete"
	KindToolStart      Kind = "tool_start"
	KindToolComplete   Kind = "tool_complete"
	KindPhaseChange    Kind = "phase_change"
	KindFlagFound      Kind = "flag_found"
	KindError          Kind = "error"
	KindIterationEnd   Kind = "iteration_end"
	KindLoopComplete   Kind = "loop_complete"
	KindLoopFailed     Kind = "loop_failed"
)

// Event is one entry in the progress stream. Payload holds one of the typed
// payload structs below, chosen by Kind.
type Event struct {
	Kind      Kind        `json:"kind"`
	Timestamp time.Time   `json:"timestamp"`
	Iteration int         `json:"iteration"`
	Phase     phase.Phase `json:"phase"`
	Payload   interface{} `json:"payload,omitempty"`
}

// ToolPayload accompanies tool_start and tool_complete.
type ToolPayload struct {
	Action   string        `json:"action"`
	Command  string        `json:"command,omitempty"`
	Success  bool          `json:"success,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// PlanPayload accompanies plan_complete.
type PlanPayload struct {
	Actions []string `json:"actions"`
}

// FlagPayload accompanies flag_found.
type FlagPayload struct {
	Flag  string `json:"flag"`
	Total int    `json:"total"`
}

// PhaseChangePayload accompanies phase_change.
type PhaseChangePayload struct {
	From   phase.Phase `json:"from"`
	To     phase.Phase `json:"to"`
	Reason string      `json:"reason"`
}

// ErrorPayload accompanies error events.
type ErrorPayload struct {
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// LoopPayload accompanies loop_complete and loop_failed.
type LoopPayload struct {
	Outcome    string `json:"outcome"`
	Iterations int    `json:"iterations"`
	Flags      int    `json:"flags"`
}

type subscriber struct {
	id    int
	kinds map[Kind]bool
	ch    chan Event
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses that event, which keeps tool execution
// independent of consumer speed.
type Bus struct {
	mu      sync.RWMutex
	logger  *zap.Logger
	nextID  int
	subs    map[int]*subscriber
	closed  bool
	bufSize int
	dropped atomic.Int64
}

// NewBus creates a bus whose subscriber channels buffer bufSize events.
func NewBus(logger *zap.Logger, bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Bus{
		logger:  logger.Named("events"),
		subs:    make(map[int]*subscriber),
		bufSize: bufSize,
	}
}

// Subscribe registers interest in the given kinds, or in everything when no
// kind is passed. The returned cancel func must be called to release the
// channel; after cancel the channel is closed.
func (b *Bus) Subscribe(kinds ...Kind) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{
		id: b.nextID,
		ch: make(chan Event, b.bufSize),
	}
	b.nextID++
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}
	if b.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	b.subs[sub.id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if s, ok := b.subs[sub.id]; ok {
				delete(b.subs, sub.id)
				close(s.ch)
			}
		})
	}
	return sub.ch, cancel
}

// Publish delivers ev to every interested subscriber, stamping the time if
// the caller left it zero.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if sub.kinds != nil && !sub.kinds[ev.Kind] {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			b.dropped.Add(1)
			b.logger.Debug("subscriber buffer full, event dropped",
				zap.String("kind", string(ev.Kind)))
		}
	}
}

// Dropped reports how many events were lost to full subscriber buffers.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Shutdown closes every subscriber channel. Publish and Subscribe become
// no-ops afterwards.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
