// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesCapturedTotal counts frames delivered by capture handles
	FramesCapturedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcapdump_frames_captured_total",
			Help: "Total number of frames received from capture handles",
		},
		[]string{"interface"},
	)

	// FramesPersistedTotal counts frames written by the sink writer
	FramesPersistedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcapdump_frames_persisted_total",
			Help: "Total number of frames written to dump files or the console",
		},
		[]string{"interface"},
	)

	// FramesDroppedTotal counts frames that never reached the writer
	FramesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcapdump_frames_dropped_total",
			Help: "Total number of frames dropped before persistence",
		},
		[]string{"interface", "reason"},
	)

	// WriteErrorsTotal counts failed frame writes
	WriteErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcapdump_write_errors_total",
			Help: "Total number of frame write failures",
		},
		[]string{"interface"},
	)

	// WriterQueueDepth tracks frames waiting for the writer
	WriterQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pcapdump_writer_queue_depth",
			Help: "Number of frames queued for the sink writer",
		},
	)

	// TaskState tracks the current state of each capture task (1 = current state)
	TaskState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pcapdump_task_state",
			Help: "Current state of capture tasks",
		},
		[]string{"interface", "state"},
	)
)

// Drop reasons.
const (
	DropQueueFull = "queue_full"
	DropClosed    = "closed"
	DropUnflushed = "unflushed"
)

// SetTaskState marks state as the only current state of iface.
func SetTaskState(iface, state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		TaskState.WithLabelValues(iface, s).Set(v)
	}
}
