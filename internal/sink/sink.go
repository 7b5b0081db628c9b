// Package sink decouples frame persistence from capture. Every FrameSink
// funnels its frames through one shared Writer, whose single goroutine is the
// only place targets are written.
package sink

import (
	"sync"

	"github.com/google/gopacket"
	"go.uber.org/atomic"

	"firestige.xyz/pcapdump/internal/core"
	"firestige.xyz/pcapdump/internal/metrics"
)

// Stats are the per-interface persistence counters.
type Stats struct {
	Submitted   int64 `json:"submitted" yaml:"submitted"`
	Persisted   int64 `json:"persisted" yaml:"persisted"`
	Dropped     int64 `json:"dropped" yaml:"dropped"`
	WriteErrors int64 `json:"write_errors" yaml:"write_errors"`
	Unflushed   int64 `json:"unflushed" yaml:"unflushed"`
}

// FrameSink is the per-interface consumer of captured frames.
type FrameSink struct {
	iface  string
	target Target
	writer *Writer

	submitted   atomic.Int64
	persisted   atomic.Int64
	dropped     atomic.Int64
	writeErrors atomic.Int64
	unflushed   atomic.Int64

	sealed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New creates a sink for iface that writes to target through w.
func New(iface string, target Target, w *Writer) *FrameSink {
	return &FrameSink{iface: iface, target: target, writer: w}
}

// Destination describes where frames end up.
func (s *FrameSink) Destination() string {
	return s.target.Destination()
}

// CloseIntake rejects every later Submit on this sink. Frames already queued
// stay queued.
func (s *FrameSink) CloseIntake() {
	s.sealed.Store(true)
}

// Submit queues one frame without blocking. It reports whether the frame was
// accepted; rejected frames are counted as dropped.
func (s *FrameSink) Submit(data []byte, ci gopacket.CaptureInfo) bool {
	s.submitted.Inc()
	reason := metrics.DropClosed
	if !s.sealed.Load() {
		reason = s.writer.submit(item{
			sink:  s,
			frame: core.Frame{Interface: s.iface, Data: data, Info: ci},
		})
	}
	if reason != "" {
		s.dropped.Inc()
		metrics.FramesDroppedTotal.WithLabelValues(s.iface, reason).Inc()
		return false
	}
	return true
}

func (s *FrameSink) write(f *core.Frame) {
	if err := s.target.WriteFrame(f.Data, f.Info); err != nil {
		s.writeErrors.Inc()
		metrics.WriteErrorsTotal.WithLabelValues(s.iface).Inc()
		return
	}
	s.persisted.Inc()
	metrics.FramesPersistedTotal.WithLabelValues(s.iface).Inc()
}

// Stats returns a snapshot of the counters.
func (s *FrameSink) Stats() Stats {
	return Stats{
		Submitted:   s.submitted.Load(),
		Persisted:   s.persisted.Load(),
		Dropped:     s.dropped.Load(),
		WriteErrors: s.writeErrors.Load(),
		Unflushed:   s.unflushed.Load(),
	}
}

// Close closes the target. Only the first call has an effect.
func (s *FrameSink) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.target.Close()
	})
	return s.closeErr
}
