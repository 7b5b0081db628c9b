package console

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/stretchr/testify/assert"
)

func frameInfo(n int) gopacket.CaptureInfo {
	return gopacket.CaptureInfo{
		Timestamp:     time.Date(2024, 5, 1, 12, 30, 45, 123456000, time.UTC),
		CaptureLength: n,
		Length:        n + 10,
	}
}

func TestPrintfAddsNewline(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf)
	c.Printf("start loop on %s", "eth0")
	c.Printf("done\n")
	c.Println("captured", 3)
	assert.Equal(t, "start loop on eth0\ndone\ncaptured 3\n", buf.String())
}

func TestFrameLine(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf)
	c.Frame("eth0", []byte{1, 2, 3}, frameInfo(3))
	assert.Equal(t, "12:30:45.123456 eth0 length 13 captured 3\n", buf.String())
}

func TestFrameHexdumpPlain(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, WithHexdump(true))
	c.Frame("eth0", []byte("ABCD"), frameInfo(4))

	out := buf.String()
	assert.Contains(t, out, "00000000  41 42 43 44")
	assert.Contains(t, out, "|ABCD|")
	assert.NotContains(t, out, "\x1b[")
}

func TestFrameHexdumpColor(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf, WithHexdump(true), WithColor(true))
	c.Frame("eth0", []byte("ABCD"), frameInfo(4))
	assert.Contains(t, buf.String(), "\x1b[")
}

func TestFrameHexdumpHighlightFailure(t *testing.T) {
	orig := highlight
	defer func() { highlight = orig }()
	highlight = func(w io.Writer, source, lexer, formatter, style string) error {
		_, _ = io.WriteString(w, source[:10])
		return errors.New("formatter broke mid-way")
	}

	var buf bytes.Buffer
	c := New(&buf, WithHexdump(true), WithColor(true))
	c.Frame("eth0", []byte("ABCD"), frameInfo(4))

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "00000000"))
	assert.Contains(t, out, "|ABCD|")
	assert.NotContains(t, out, "\x1b[")
}

func TestConcurrentLinesDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.Printf("%s", strings.Repeat("x", 64))
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 400)
	for _, l := range lines {
		assert.Len(t, l, 64)
	}
}

func TestNewNonTerminalHasNoColor(t *testing.T) {
	c := New(&bytes.Buffer{})
	assert.False(t, c.color)
}
