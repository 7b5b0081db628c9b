package capture

import (
	"context"
	"time"

	"firestige.xyz/pcapdump/internal/log"
)

// supervise blocks until a stop condition holds, stops every task and returns
// the reason. It wakes on task completion, count exhaustion, the duration
// deadline and cancellation; the poll ticker is only a safety net.
func (s *Session) supervise(ctx context.Context) StopReason {
	var deadline <-chan time.Time
	if at, ok := s.stop.Deadline(); ok {
		timer := time.NewTimer(time.Until(at))
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if reason := s.checkStop(ctx); reason != StopNone {
			s.stopAll(reason)
			return reason
		}

		select {
		case <-s.completions:
		case <-s.stop.Exhausted():
		case <-deadline:
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

// checkStop evaluates the stop conditions in priority order: a terminal
// task, the count budget, the duration budget, cancellation.
func (s *Session) checkStop(ctx context.Context) StopReason {
	for _, t := range s.tasks {
		state, _ := t.State()
		switch state {
		case Running:
			continue
		case Failed:
			return StopTaskFailed
		case CompletedByBudget:
			if s.stop.CountExhausted() {
				return StopCountBudget
			}
			return StopDuration
		case Cancelled:
			return StopCancelled
		default:
			return StopTaskCompleted
		}
	}
	if s.stop.CountExhausted() {
		return StopCountBudget
	}
	if s.stop.DurationElapsed() {
		return StopDuration
	}
	if ctx.Err() != nil || s.stop.Cancelled() {
		s.stop.Cancel()
		return StopCancelled
	}
	return StopNone
}

// stopAll requests every running task to stop. It does not wait.
func (s *Session) stopAll(reason StopReason) {
	log.GetLogger().WithField("reason", reason.String()).Info("stopping all capture tasks")
	for _, t := range s.tasks {
		if state, _ := t.State(); state == Running {
			s.out.Printf("%s: stop it", t.iface)
			t.cancel()
		}
	}
}
