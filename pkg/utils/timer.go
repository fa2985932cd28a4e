package utils

import (
	"time"
)

// Phase is one timed pipeline stage.
type Phase struct {
	Name      string
	StartTime time.Time
	Duration  time.Duration
	completed bool
}

// PhaseTimer stops a single phase; use it with defer.
type PhaseTimer struct {
	timer *Timer
	phase *Phase
}

// Stop records the phase duration. Only the first call has effect.
func (pt *PhaseTimer) Stop() time.Duration {
	if pt.phase == nil {
		return 0
	}
	if !pt.phase.completed {
		pt.phase.Duration = pt.timer.clock.Since(pt.phase.StartTime)
		pt.phase.completed = true
	}
	return pt.phase.Duration
}

// Timer records the duration of sequential stages of one run.
// It is not safe for concurrent use; the pipeline is single-threaded.
type Timer struct {
	name      string
	startTime time.Time
	phases    []*Phase
	logger    Logger
	enabled   bool
	clock     Clock
}

// TimerOption configures a Timer instance.
type TimerOption func(*Timer)

// WithLogger sets the logger PrintSummary writes to.
func WithLogger(logger Logger) TimerOption {
	return func(t *Timer) {
		t.logger = logger
	}
}

// WithEnabled sets whether the timer is enabled.
func WithEnabled(enabled bool) TimerOption {
	return func(t *Timer) {
		t.enabled = enabled
	}
}

// WithClock sets a custom clock for testability.
func WithClock(clock Clock) TimerOption {
	return func(t *Timer) {
		t.clock = clock
	}
}

// NewTimer creates a new Timer with the given name and options.
func NewTimer(name string, opts ...TimerOption) *Timer {
	t := &Timer{
		name:    name,
		enabled: true,
		clock:   NewRealClock(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.startTime = t.clock.Now()
	return t
}

// Start begins timing a new phase.
func (t *Timer) Start(phaseName string) *PhaseTimer {
	if !t.enabled {
		return &PhaseTimer{timer: t}
	}
	phase := &Phase{Name: phaseName, StartTime: t.clock.Now()}
	t.phases = append(t.phases, phase)
	return &PhaseTimer{timer: t, phase: phase}
}

// Duration returns the recorded duration of the named phase.
func (t *Timer) Duration(phaseName string) time.Duration {
	for _, p := range t.phases {
		if p.Name == phaseName {
			return p.Duration
		}
	}
	return 0
}

// TotalDuration returns the time since the timer was created.
func (t *Timer) TotalDuration() time.Duration {
	return t.clock.Since(t.startTime)
}

// Phases returns copies of all phases in start order.
func (t *Timer) Phases() []Phase {
	out := make([]Phase, 0, len(t.phases))
	for _, p := range t.phases {
		out = append(out, *p)
	}
	return out
}

// PrintSummary logs every phase at debug level.
func (t *Timer) PrintSummary() {
	if !t.enabled || t.logger == nil {
		return
	}
	t.logger.Debug("=== %s timing ===", t.name)
	for i, p := range t.phases {
		t.logger.Debug("  %d. %-10s %v", i+1, p.Name, p.Duration)
	}
	t.logger.Debug("  total      %v", t.TotalDuration())
}

// ToMap returns phase durations in milliseconds keyed by phase name.
func (t *Timer) ToMap() map[string]int64 {
	out := make(map[string]int64, len(t.phases))
	for _, p := range t.phases {
		out[p.Name] = p.Duration.Milliseconds()
	}
	return out
}
