package capture

import (
	"fmt"
	"time"

	"github.com/sourcegraph/conc/panics"
	"go.uber.org/multierr"

	"firestige.xyz/pcapdump/internal/core"
	"firestige.xyz/pcapdump/internal/log"
)

// shutdown releases everything the session acquired and fills report. It runs
// once; each step runs even when an earlier one failed, and failures become
// report diagnostics.
func (s *Session) shutdown(report *Report) {
	s.shutdownOnce.Do(func() {
		var errs error
		step := func(name string, fn func() error) {
			var pc panics.Catcher
			pc.Try(func() {
				if err := fn(); err != nil {
					errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
				}
			})
			if r := pc.Recovered(); r != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, r.AsError()))
			}
		}

		// A running task keeps its sink open until it finishes so the frame it
		// is delivering right now is still persisted.
		step("close sink intake", func() error {
			for _, t := range s.tasks {
				if state, _ := t.State(); state.Terminal() {
					t.sink.CloseIntake()
				}
			}
			return nil
		})
		step("stop tasks", s.stopTasks)
		step("close handles", func() error {
			var err error
			for _, h := range s.handles {
				err = multierr.Append(err, h.Close())
			}
			return err
		})
		step("drain writer", func() error {
			s.writer.CloseIntake()
			report.Flushed = s.cfg.FlushOnShutdown
			report.Unwritten = s.writer.Drain(s.cfg.FlushOnShutdown)
			return nil
		})
		step("close sinks", func() error {
			var err error
			for _, sk := range s.sinks {
				err = multierr.Append(err, sk.Close())
			}
			return err
		})

		report.StoppedAt = time.Now()
		for _, t := range s.tasks {
			state, err := t.State()
			ir := InterfaceReport{
				Interface:   t.iface,
				State:       state,
				Frames:      t.Frames(),
				Destination: t.sink.Destination(),
				Sink:        t.sink.Stats(),
				err:         err,
			}
			if err != nil {
				ir.Error = err.Error()
			}
			report.Interfaces = append(report.Interfaces, ir)
		}

		for _, err := range multierr.Errors(errs) {
			report.Diagnostics = append(report.Diagnostics, err.Error())
			log.GetLogger().WithError(err).Warn("shutdown step failed")
		}
	})
}

// stopTasks cancels running tasks and joins them within the shutdown timeout.
// Tasks that do not return in time are recorded as cancelled.
func (s *Session) stopTasks() error {
	for _, t := range s.tasks {
		if state, _ := t.State(); state == Running {
			t.cancel()
		}
	}

	joined := make(chan struct{})
	go func() {
		s.group.Wait()
		close(joined)
	}()

	timer := time.NewTimer(s.cfg.ShutdownTimeout)
	defer timer.Stop()
	select {
	case <-joined:
		return nil
	case <-timer.C:
	}

	var stuck []string
	for _, t := range s.tasks {
		if t.finish(Cancelled, fmt.Errorf("%w: %s did not stop within %s", core.ErrCancelled, t.iface, s.cfg.ShutdownTimeout)) {
			stuck = append(stuck, t.iface)
		}
	}
	return fmt.Errorf("tasks %v still running after %s", stuck, s.cfg.ShutdownTimeout)
}
