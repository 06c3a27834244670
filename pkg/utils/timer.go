package utils

import (
	"fmt"
	"sync"
	"time"
)

// Stage is one completed, named span of a StageTimer.
type Stage struct {
	Name     string
	Duration time.Duration
}

// StageTimer measures the sequential stages of a pipeline run: domain,
// encode, hyksort, blocks, refine, balance, redistribute. Stages are
// reported in the order they were stopped.
type StageTimer struct {
	mu      sync.Mutex
	name    string
	clock   Clock
	started time.Time
	stages  []Stage
}

// NewStageTimer starts a timer for one named run using the real clock.
func NewStageTimer(name string) *StageTimer {
	return NewStageTimerWithClock(name, RealClock{})
}

// NewStageTimerWithClock is NewStageTimer with an injected clock.
func NewStageTimerWithClock(name string, clock Clock) *StageTimer {
	return &StageTimer{name: name, clock: clock, started: clock.Now()}
}

// Start begins timing one stage. The returned stop function records
// the stage; calling it more than once records only the first call.
func (t *StageTimer) Start(stage string) (stop func()) {
	begin := t.clock.Now()
	var once sync.Once
	return func() {
		once.Do(func() {
			d := t.clock.Since(begin)
			t.mu.Lock()
			t.stages = append(t.stages, Stage{Name: stage, Duration: d})
			t.mu.Unlock()
		})
	}
}

// Stages returns the completed stages in the order they were stopped.
func (t *StageTimer) Stages() []Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Stage, len(t.stages))
	copy(out, t.stages)
	return out
}

// Total returns the time elapsed since the timer was created.
func (t *StageTimer) Total() time.Duration {
	return t.clock.Since(t.started)
}

// LogSummary writes one line per stage plus a total through logger.
func (t *StageTimer) LogSummary(logger Logger) {
	t.mu.Lock()
	stages := make([]Stage, len(t.stages))
	copy(stages, t.stages)
	t.mu.Unlock()

	for i, s := range stages {
		logger.Debug("%s stage %d/%d %s: %v", t.name, i+1, len(stages), s.Name, s.Duration)
	}
	logger.Info("%s completed in %v (%s)", t.name, t.Total(), summarize(stages))
}

func summarize(stages []Stage) string {
	if len(stages) == 0 {
		return "no stages"
	}
	out := ""
	for i, s := range stages {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s=%v", s.Name, s.Duration)
	}
	return out
}
