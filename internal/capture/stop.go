package capture

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// StopController is the stop state shared by every task of a session: a
// frame countdown, the start time for the duration budget and an external
// cancel flag. It is never locked on the frame path.
type StopController struct {
	budget    int64
	remaining atomic.Int64
	duration  time.Duration
	start     time.Time
	cancelled atomic.Bool

	exhausted   chan struct{}
	exhaustOnce sync.Once

	now func() time.Time
}

// NewStopController starts the clock. A zero count or duration disables that budget.
func NewStopController(count int64, duration time.Duration) *StopController {
	s := &StopController{
		budget:    count,
		duration:  duration,
		exhausted: make(chan struct{}),
		now:       time.Now,
	}
	s.remaining.Store(count)
	s.start = s.now()
	return s
}

// Consume accounts for one accepted frame and reports whether the count
// budget is now exhausted. Without a count budget it always returns false.
func (s *StopController) Consume() bool {
	if s.budget <= 0 {
		return false
	}
	if s.remaining.Dec() > 0 {
		return false
	}
	s.exhaustOnce.Do(func() { close(s.exhausted) })
	return true
}

// Exhausted is closed once the count budget runs out. It never fires without a count budget.
func (s *StopController) Exhausted() <-chan struct{} {
	return s.exhausted
}

// Remaining returns the frames left in the count budget, never below zero.
func (s *StopController) Remaining() int64 {
	n := s.remaining.Load()
	if n < 0 {
		return 0
	}
	return n
}

func (s *StopController) CountExhausted() bool {
	return s.budget > 0 && s.remaining.Load() <= 0
}

// DurationElapsed compares the time since start with the duration budget.
func (s *StopController) DurationElapsed() bool {
	return s.duration > 0 && s.now().Sub(s.start) >= s.duration
}

// BudgetExhausted reports whether either budget ran out.
func (s *StopController) BudgetExhausted() bool {
	return s.CountExhausted() || s.DurationElapsed()
}

// Deadline returns when the duration budget expires.
func (s *StopController) Deadline() (time.Time, bool) {
	if s.duration <= 0 {
		return time.Time{}, false
	}
	return s.start.Add(s.duration), true
}

func (s *StopController) Cancel() {
	s.cancelled.Store(true)
}

func (s *StopController) Cancelled() bool {
	return s.cancelled.Load()
}

// ShouldContinue is the non-blocking check tasks run between receive loops.
func (s *StopController) ShouldContinue() bool {
	return !s.BudgetExhausted() && !s.Cancelled()
}

// HasBudget reports whether any budget is configured.
func (s *StopController) HasBudget() bool {
	return s.budget > 0 || s.duration > 0
}

func (s *StopController) Start() time.Time {
	return s.start
}
