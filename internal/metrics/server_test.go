package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServerServesMetricsAndStatus(t *testing.T) {
	FramesCapturedTotal.WithLabelValues("test0").Add(3)

	s := NewServer("127.0.0.1:0", "", func() interface{} {
		return map[string]int{"eth0": 7}
	})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	code, body := get(t, "http://"+s.Addr()+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `pcapdump_frames_captured_total{interface="test0"} 3`)

	code, body = get(t, "http://"+s.Addr()+"/status")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"eth0":7}`, body)
}

func TestServerListenError(t *testing.T) {
	s := NewServer("256.0.0.1:bad", "/m", nil)
	assert.Error(t, s.Start(context.Background()))
	assert.NoError(t, s.Stop(context.Background()))
}

func TestSetTaskState(t *testing.T) {
	all := []string{"running", "failed"}
	SetTaskState("eth9", "running", all)
	SetTaskState("eth9", "failed", all)

	s := NewServer("127.0.0.1:0", "/m", nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	_, body := get(t, "http://"+s.Addr()+"/m")
	assert.Contains(t, body, `pcapdump_task_state{interface="eth9",state="failed"} 1`)
	assert.Contains(t, body, `pcapdump_task_state{interface="eth9",state="running"} 0`)

	_, body = get(t, "http://"+s.Addr()+"/status")
	assert.JSONEq(t, `{}`, body)
}
