// Package capture orchestrates a multi-interface capture session: it opens one
// handle and one sink per interface, runs one task per interface, stops all of
// them on the first terminal condition and releases every resource on every
// exit path.
package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/atomic"

	"firestige.xyz/pcapdump/internal/config"
	"firestige.xyz/pcapdump/internal/console"
	"firestige.xyz/pcapdump/internal/core"
	"firestige.xyz/pcapdump/internal/log"
	"firestige.xyz/pcapdump/internal/sink"
	"firestige.xyz/pcapdump/internal/source"
)

// Session runs one capture. It is single-use.
type Session struct {
	cfg          config.CaptureConfig
	resolver     source.Resolver
	out          *console.Console
	reportFormat string

	used atomic.Bool

	mu      sync.Mutex
	handles []source.Handle
	sinks   []*sink.FrameSink
	tasks   []*Task
	writer  *sink.Writer
	stop    *StopController

	group        conc.WaitGroup
	completions  chan *Task
	shutdownOnce sync.Once
}

// Option configures a Session.
type Option func(*Session)

// WithReportFormat selects how the summary is printed: text, yaml or json.
func WithReportFormat(format string) Option {
	return func(s *Session) { s.reportFormat = format }
}

// NewSession creates a session for cfg. Frames without a dump file and all
// status lines go to out.
func NewSession(cfg config.CaptureConfig, resolver source.Resolver, out *console.Console, opts ...Option) *Session {
	if out == nil {
		out = console.Discard()
	}
	cfg.Interfaces = config.NormalizeInterfaces(cfg.Interfaces)
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = config.DefaultQueueSize
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = config.DefaultShutdownTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = config.DefaultPollInterval
	}
	s := &Session{
		cfg:          cfg,
		resolver:     resolver,
		out:          out,
		reportFormat: "text",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run captures until a stop condition fires and returns the report.
//
// Resolution, open, filter and sink errors abort before any task starts and
// return no report. Everything after that ends up in the report.
func (s *Session) Run(ctx context.Context) (*Report, error) {
	if !s.used.CAS(false, true) {
		return nil, core.ErrSessionUsed
	}

	descs, err := s.resolve()
	if err != nil {
		return nil, err
	}
	if err := s.open(descs); err != nil {
		s.release()
		return nil, err
	}

	report := &Report{}
	func() {
		defer s.shutdown(report)
		s.launch()
		report.StartedAt = s.stop.Start()
		report.StopReason = s.supervise(ctx)
	}()

	if err := report.Write(s.out, s.reportFormat); err != nil {
		log.GetLogger().WithError(err).Warn("failed to print report")
	}
	return report, nil
}

func (s *Session) resolve() ([]source.Descriptor, error) {
	if len(s.cfg.Interfaces) == 0 {
		d, err := s.resolver.ResolveDefault()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrResolution, err)
		}
		return []source.Descriptor{d}, nil
	}

	descs := make([]source.Descriptor, 0, len(s.cfg.Interfaces))
	for _, name := range s.cfg.Interfaces {
		d, err := s.resolver.ResolveByName(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrResolution, err)
		}
		descs = append(descs, d)
	}
	return descs, nil
}

// open acquires handles and sinks. On error the caller releases whatever was
// acquired.
func (s *Session) open(descs []source.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	opts := source.OpenOptions{
		SnapLen:     s.cfg.SnapLength,
		Promiscuous: s.cfg.Promiscuous,
		ReadTimeout: s.cfg.ReadTimeout,
	}
	for _, d := range descs {
		h, err := d.Open(opts)
		if err != nil {
			return fmt.Errorf("%w: %w", core.ErrOpen, err)
		}
		s.handles = append(s.handles, h)

		if s.cfg.Filter != "" {
			if err := h.SetFilter(s.cfg.Filter); err != nil {
				return fmt.Errorf("%w: %w", core.ErrFilter, err)
			}
		}
	}

	s.writer = sink.NewWriter(s.cfg.QueueSize)
	for i, d := range descs {
		h := s.handles[i]
		var target sink.Target
		if s.cfg.Output != "" {
			dump, err := sink.OpenDump(OutputPath(s.cfg.Output, d.Name()), h.LinkType(), h.SnapLen())
			if err != nil {
				return fmt.Errorf("%w: %w", core.ErrSinkOpen, err)
			}
			target = dump
		} else {
			target = sink.NewConsoleTarget(d.Name(), s.out)
		}
		s.sinks = append(s.sinks, sink.New(d.Name(), target, s.writer))
	}

	s.stop = NewStopController(s.cfg.Count, s.cfg.Duration)
	for i, d := range descs {
		s.tasks = append(s.tasks, newTask(d.Name(), s.handles[i], s.sinks[i], s.stop, s.out, s.cfg.Count))
	}
	s.completions = make(chan *Task, len(s.tasks))
	return nil
}

// release frees what open acquired when the session never started.
func (s *Session) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sk := range s.sinks {
		if err := sk.Close(); err != nil {
			log.GetLogger().WithError(err).Warn("failed to close sink")
		}
	}
	for _, h := range s.handles {
		if err := h.Close(); err != nil {
			log.GetLogger().WithError(err).Warn("failed to close handle")
		}
	}
}

func (s *Session) launch() {
	s.writer.Start()
	for _, t := range s.tasks {
		log.GetLogger().WithFields(map[string]interface{}{
			"interface":   t.iface,
			"destination": t.sink.Destination(),
		}).Info("starting capture task")
		s.group.Go(func() { t.Run(s.completions) })
	}
}

// InterfaceStatus is a live view of one task.
type InterfaceStatus struct {
	Interface string `json:"interface"`
	State     string `json:"state"`
	Frames    int64  `json:"frames"`
}

// Status is a live view of the session.
type Status struct {
	Running    bool              `json:"running"`
	Elapsed    string            `json:"elapsed,omitempty"`
	Remaining  int64             `json:"remaining,omitempty"`
	Pending    int               `json:"pending"`
	Interfaces []InterfaceStatus `json:"interfaces"`
}

// Snapshot returns the live status. It is safe to call at any time.
func (s *Session) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Interfaces: make([]InterfaceStatus, 0, len(s.tasks))}
	if s.stop != nil {
		st.Elapsed = time.Since(s.stop.Start()).Round(time.Millisecond).String()
		st.Remaining = s.stop.Remaining()
	}
	if s.writer != nil {
		st.Pending = s.writer.Pending()
	}
	for _, t := range s.tasks {
		state, _ := t.State()
		if state == Running {
			st.Running = true
		}
		st.Interfaces = append(st.Interfaces, InterfaceStatus{
			Interface: t.iface,
			State:     state.String(),
			Frames:    t.Frames(),
		})
	}
	return st
}
