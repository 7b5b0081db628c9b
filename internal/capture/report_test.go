package capture

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"firestige.xyz/pcapdump/internal/sink"
)

func sampleReport() *Report {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	return &Report{
		StartedAt:  start,
		StoppedAt:  start.Add(1500 * time.Millisecond),
		StopReason: StopTaskFailed,
		Interfaces: []InterfaceReport{
			{Interface: "eth0", State: Failed, Error: "read failed", Frames: 4, Destination: "out_eth0.pcap",
				Sink: sink.Stats{Submitted: 4, Persisted: 3, WriteErrors: 1}},
			{Interface: "eth1", State: Cancelled, Frames: 6, Destination: "out_eth1.pcap",
				Sink: sink.Stats{Submitted: 6, Persisted: 4, Unflushed: 2}},
		},
		Unwritten:   2,
		Diagnostics: []string{"close handles: boom"},
	}
}

func TestReportTotals(t *testing.T) {
	r := sampleReport()
	assert.Equal(t, int64(10), r.TotalFrames())
	assert.Equal(t, int64(3), r.NotPersisted())
	assert.Nil(t, r.Interface("eth9"))
	assert.Equal(t, Cancelled, r.Interface("eth1").State)
}

func TestReportText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleReport().Write(&buf, "text"))
	out := buf.String()

	assert.Contains(t, out, "Capture finished after 1.5s: task failed\n")
	assert.Contains(t, out, "eth0")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "    error: read failed\n")
	assert.Contains(t, out, "(dropped 0, write errors 0, unflushed 2)")
	assert.Contains(t, out, "Total 10 frames, 3 not persisted\n")
	assert.Contains(t, out, "Still 2 packets not dumped!\n")
	assert.Contains(t, out, "diagnostic: close handles: boom")
}

func TestReportYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleReport().Write(&buf, "yaml"))

	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "task failed", decoded["stop_reason"])
	ifaces := decoded["interfaces"].([]interface{})
	require.Len(t, ifaces, 2)
	assert.Equal(t, "failed", ifaces[0].(map[string]interface{})["state"])
	assert.Equal(t, "cancelled", ifaces[1].(map[string]interface{})["state"])
}

func TestReportJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleReport().Write(&buf, "json"))

	var decoded struct {
		StopReason string `json:"stop_reason"`
		Unwritten  int    `json:"unwritten"`
		Interfaces []struct {
			State string `json:"state"`
			Sink  struct {
				Unflushed int `json:"unflushed"`
			} `json:"sink"`
		} `json:"interfaces"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "task failed", decoded.StopReason)
	assert.Equal(t, 2, decoded.Unwritten)
	assert.Equal(t, "completed-by-budget", CompletedByBudget.String())
	assert.Equal(t, 2, decoded.Interfaces[1].Sink.Unflushed)
}

func TestReportUnknownFormat(t *testing.T) {
	assert.Error(t, sampleReport().Write(&bytes.Buffer{}, "xml"))
}

func TestStateStrings(t *testing.T) {
	assert.Len(t, StateNames(), 5)
	assert.False(t, Running.Terminal())
	assert.True(t, Failed.Terminal())
	assert.Equal(t, "state(42)", State(42).String())
	assert.Equal(t, "reason(42)", StopReason(42).String())
}
