package capture

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"firestige.xyz/pcapdump/internal/sink"
)

// State is the lifecycle state of a capture task.
type State int

const (
	Running State = iota
	CompletedNormally
	CompletedByBudget
	Cancelled
	Failed
)

var stateNames = map[State]string{
	Running:           "running",
	CompletedNormally: "completed",
	CompletedByBudget: "completed-by-budget",
	Cancelled:         "cancelled",
	Failed:            "failed",
}

// StateNames lists every state name, for metrics.
func StateNames() []string {
	return []string{
		Running.String(), CompletedNormally.String(), CompletedByBudget.String(),
		Cancelled.String(), Failed.String(),
	}
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s != Running
}

// StopReason names the condition that ended the session.
type StopReason int

const (
	StopNone StopReason = iota
	StopTaskCompleted
	StopTaskFailed
	StopCountBudget
	StopDuration
	StopCancelled
)

var stopReasonNames = map[StopReason]string{
	StopNone:          "none",
	StopTaskCompleted: "task completed",
	StopTaskFailed:    "task failed",
	StopCountBudget:   "count budget reached",
	StopDuration:      "duration elapsed",
	StopCancelled:     "cancelled",
}

func (r StopReason) String() string {
	if name, ok := stopReasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

func (r StopReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// InterfaceReport is the outcome of one interface.
type InterfaceReport struct {
	Interface   string     `json:"interface" yaml:"interface"`
	State       State      `json:"state" yaml:"state"`
	Error       string     `json:"error,omitempty" yaml:"error,omitempty"`
	Frames      int64      `json:"frames" yaml:"frames"`
	Destination string     `json:"destination" yaml:"destination"`
	Sink        sink.Stats `json:"sink" yaml:"sink"`

	err error
}

// Err returns the failure of a Failed interface.
func (r *InterfaceReport) Err() error {
	return r.err
}

// Report summarizes a finished session.
type Report struct {
	StartedAt   time.Time         `json:"started_at" yaml:"started_at"`
	StoppedAt   time.Time         `json:"stopped_at" yaml:"stopped_at"`
	StopReason  StopReason        `json:"stop_reason" yaml:"stop_reason"`
	Interfaces  []InterfaceReport `json:"interfaces" yaml:"interfaces"`
	Unwritten   int               `json:"unwritten" yaml:"unwritten"`
	Flushed     bool              `json:"flushed" yaml:"flushed"`
	Diagnostics []string          `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
}

// TotalFrames sums the frames received on every interface.
func (r *Report) TotalFrames() int64 {
	var n int64
	for i := range r.Interfaces {
		n += r.Interfaces[i].Frames
	}
	return n
}

// NotPersisted counts frames accepted from a handle that never reached a target.
func (r *Report) NotPersisted() int64 {
	var n int64
	for i := range r.Interfaces {
		st := r.Interfaces[i].Sink
		n += st.Dropped + st.WriteErrors + st.Unflushed
	}
	return n
}

// Interface returns the report of iface, or nil.
func (r *Report) Interface(iface string) *InterfaceReport {
	for i := range r.Interfaces {
		if r.Interfaces[i].Interface == iface {
			return &r.Interfaces[i]
		}
	}
	return nil
}

// Write renders the report as text, yaml or json.
func (r *Report) Write(w io.Writer, format string) error {
	switch format {
	case "", "text":
		_, err := io.WriteString(w, r.text())
		return err
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	default:
		return fmt.Errorf("unknown report format: %s", format)
	}
}

func (r *Report) text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Capture finished after %s: %s\n",
		r.StoppedAt.Sub(r.StartedAt).Round(time.Millisecond), r.StopReason)
	for i := range r.Interfaces {
		ir := &r.Interfaces[i]
		fmt.Fprintf(&b, "  %-12s %-20s %8d frames  -> %s", ir.Interface, ir.State, ir.Frames, ir.Destination)
		if ir.Sink.Dropped > 0 || ir.Sink.WriteErrors > 0 || ir.Sink.Unflushed > 0 {
			fmt.Fprintf(&b, " (dropped %d, write errors %d, unflushed %d)",
				ir.Sink.Dropped, ir.Sink.WriteErrors, ir.Sink.Unflushed)
		}
		b.WriteString("\n")
		if ir.Error != "" {
			fmt.Fprintf(&b, "    error: %s\n", ir.Error)
		}
	}
	fmt.Fprintf(&b, "Total %d frames, %d not persisted\n", r.TotalFrames(), r.NotPersisted())
	if r.Unwritten > 0 {
		if r.Flushed {
			fmt.Fprintf(&b, "Flushed %d queued frames at shutdown\n", r.Unwritten)
		} else {
			fmt.Fprintf(&b, "Still %d packets not dumped!\n", r.Unwritten)
		}
	}
	for _, d := range r.Diagnostics {
		fmt.Fprintf(&b, "  diagnostic: %s\n", d)
	}
	return b.String()
}
