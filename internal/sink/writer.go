package sink

import (
	"sync"

	"go.uber.org/atomic"

	"firestige.xyz/pcapdump/internal/core"
	"firestige.xyz/pcapdump/internal/log"
	"firestige.xyz/pcapdump/internal/metrics"
)

type item struct {
	sink  *FrameSink
	frame core.Frame
}

// Writer owns the frame queue and the single goroutine writing it.
//
// Sinks close their own intake when their task ends. The session then
// closes the writer intake and drains it.
type Writer struct {
	queue chan item

	mu     sync.RWMutex
	closed bool

	stop      chan struct{}
	done      chan struct{}
	started   atomic.Bool
	stopOnce  sync.Once
	drainOnce sync.Once
	drained   int

	depth atomic.Int64
}

// NewWriter creates a writer with room for queueSize pending frames.
func NewWriter(queueSize int) *Writer {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Writer{
		queue: make(chan item, queueSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start launches the writer goroutine. Later calls are no-ops.
func (w *Writer) Start() {
	if !w.started.CAS(false, true) {
		return
	}
	go w.run()
}

func (w *Writer) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case it := <-w.queue:
			w.write(it)
		}
	}
}

func (w *Writer) write(it item) {
	metrics.WriterQueueDepth.Set(float64(w.depth.Dec()))
	it.sink.write(&it.frame)
}

// submit returns an empty reason when the item was queued.
func (w *Writer) submit(it item) string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return metrics.DropClosed
	}
	// Count before the send so the writer never sees a negative depth.
	metrics.WriterQueueDepth.Set(float64(w.depth.Inc()))
	select {
	case w.queue <- it:
		return ""
	default:
		metrics.WriterQueueDepth.Set(float64(w.depth.Dec()))
		return metrics.DropQueueFull
	}
}

// CloseIntake rejects every later submission. It waits for in-flight
// submissions to finish.
func (w *Writer) CloseIntake() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

// Pending returns the number of queued frames.
func (w *Writer) Pending() int {
	return int(w.depth.Load())
}

// Stop stops the writer goroutine and waits for the frame in progress.
// Frames still queued stay queued for Drain.
func (w *Writer) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		if w.started.Load() {
			<-w.done
		}
	})
}

// Drain stops the writer, empties the queue and returns how many frames were
// still pending. With flush set they are written synchronously, otherwise they
// are counted as unflushed on their sink. Only the first call drains.
func (w *Writer) Drain(flush bool) int {
	w.Stop()
	w.drainOnce.Do(func() {
		for {
			select {
			case it := <-w.queue:
				w.drained++
				if flush {
					w.write(it)
					continue
				}
				metrics.WriterQueueDepth.Set(float64(w.depth.Dec()))
				it.sink.unflushed.Inc()
				metrics.FramesDroppedTotal.WithLabelValues(it.sink.iface, metrics.DropUnflushed).Inc()
			default:
				if w.drained > 0 {
					log.GetLogger().WithFields(map[string]interface{}{
						"pending": w.drained,
						"flushed": flush,
					}).Info("writer queue drained")
				}
				return
			}
		}
	})
	return w.drained
}
