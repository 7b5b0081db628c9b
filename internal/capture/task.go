package capture

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/gopacket"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/atomic"

	"firestige.xyz/pcapdump/internal/console"
	"firestige.xyz/pcapdump/internal/core"
	"firestige.xyz/pcapdump/internal/log"
	"firestige.xyz/pcapdump/internal/metrics"
	"firestige.xyz/pcapdump/internal/sink"
	"firestige.xyz/pcapdump/internal/source"
)

// Task drives the receive loop of one interface.
type Task struct {
	iface  string
	handle source.Handle
	sink   *sink.FrameSink
	stop   *StopController
	out    *console.Console
	limit  int

	frames    atomic.Int64
	cancelled atomic.Bool

	mu    sync.Mutex
	state State
	err   error
}

func newTask(iface string, h source.Handle, s *sink.FrameSink, stop *StopController, out *console.Console, count int64) *Task {
	limit := source.Unbounded
	if count > 0 {
		limit = int(count)
	}
	return &Task{
		iface:  iface,
		handle: h,
		sink:   s,
		stop:   stop,
		out:    out,
		limit:  limit,
		state:  Running,
	}
}

// Frames returns the number of frames received so far.
func (t *Task) Frames() int64 {
	return t.frames.Load()
}

// State returns the current state and, for Failed, the error.
func (t *Task) State() (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, t.err
}

// Run executes the task and sends it on completions when it terminates.
// A panic in the capture path fails the task instead of the process.
func (t *Task) Run(completions chan<- *Task) {
	metrics.SetTaskState(t.iface, Running.String(), StateNames())
	t.out.Printf("%s: start loop", t.iface)

	var pc panics.Catcher
	pc.Try(t.run)
	if r := pc.Recovered(); r != nil {
		t.finish(Failed, fmt.Errorf("%w: %s: %w", core.ErrCaptureIO, t.iface, r.AsError()))
	}
	completions <- t
}

func (t *Task) run() {
	for {
		if t.cancelled.Load() || !t.stop.ShouldContinue() {
			t.finishStopped()
			return
		}

		err := t.handle.ReceiveLoop(t.limit, t.onFrame)
		switch {
		case errors.Is(err, source.ErrLoopBroken):
			t.finishStopped()
			return
		case errors.Is(err, source.ErrEndOfCapture):
			t.finish(CompletedNormally, nil)
			return
		case err != nil:
			t.finish(Failed, fmt.Errorf("%w: %s: %w", core.ErrCaptureIO, t.iface, err))
			return
		case !t.stop.HasBudget():
			t.finish(CompletedNormally, nil)
			return
		}
	}
}

// finishStopped maps a stop request to its terminal state.
func (t *Task) finishStopped() {
	if t.stop.BudgetExhausted() {
		t.finish(CompletedByBudget, nil)
		return
	}
	t.finish(Cancelled, nil)
}

func (t *Task) onFrame(data []byte, ci gopacket.CaptureInfo) {
	t.frames.Inc()
	metrics.FramesCapturedTotal.WithLabelValues(t.iface).Inc()
	t.sink.Submit(data, ci)
	if t.stop.Consume() {
		t.handle.BreakLoop()
	}
}

// cancel asks the task to stop and breaks a blocked receive loop.
func (t *Task) cancel() {
	t.cancelled.Store(true)
	t.handle.BreakLoop()
}

// finish records the terminal state and closes the sink to further frames.
// Only the first call has an effect.
func (t *Task) finish(state State, err error) bool {
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		return false
	}
	t.state = state
	t.err = err
	t.mu.Unlock()
	t.sink.CloseIntake()

	metrics.SetTaskState(t.iface, state.String(), StateNames())
	logger := log.GetLogger().WithFields(map[string]interface{}{
		"interface": t.iface,
		"state":     state.String(),
		"frames":    t.Frames(),
	})
	switch state {
	case Failed:
		logger.WithError(err).Error("capture task failed")
		t.out.Printf("%s: failed after %d packets: %v", t.iface, t.Frames(), err)
	case CompletedByBudget:
		logger.Info("capture task reached its budget")
		t.out.Printf("%s: reach limit, captured %d packets", t.iface, t.Frames())
	case Cancelled:
		logger.Info("capture task interrupted")
		t.out.Printf("%s: interrupted, captured %d packets", t.iface, t.Frames())
	default:
		logger.Info("capture task finished")
		t.out.Printf("%s: has finished, captured %d packets", t.iface, t.Frames())
	}
	return true
}
