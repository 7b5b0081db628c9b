// Package console is the operator-facing reporting surface: status lines,
// frame lines and the session summary. It is independent of the diagnostic
// logger, so quiet mode never silences it.
package console

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/quick"
	"github.com/google/gopacket"
	"github.com/mattn/go-isatty"
)

const timestampLayout = "15:04:05.000000"

// highlight is swapped in tests.
var highlight = quick.Highlight

// Console serializes line output to one writer.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	color   bool
	hexdump bool
}

// Option configures a Console.
type Option func(*Console)

// WithHexdump prints a hex dump under every frame line.
func WithHexdump(enabled bool) Option {
	return func(c *Console) { c.hexdump = enabled }
}

// WithColor forces hex dump colouring on or off.
func WithColor(enabled bool) Option {
	return func(c *Console) { c.color = enabled }
}

// New creates a Console writing to out. Colour is enabled when out is a terminal.
func New(out io.Writer, opts ...Option) *Console {
	c := &Console{out: out, color: isTerminal(out)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Discard creates a Console that drops everything.
func Discard() *Console {
	return New(io.Discard)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Write writes p as one unit.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}

// Printf writes one formatted line. A trailing newline is added when missing.
func (c *Console) Printf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	if len(line) == 0 || line[len(line)-1] != '\n' {
		line += "\n"
	}
	c.Write([]byte(line))
}

// Println writes the operands as one line.
func (c *Console) Println(args ...interface{}) {
	c.Write([]byte(fmt.Sprintln(args...)))
}

// Frame prints a summary line for one captured frame and, when enabled, its hex dump.
func (c *Console) Frame(iface string, data []byte, ci gopacket.CaptureInfo) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s length %d captured %d\n",
		ci.Timestamp.Format(timestampLayout), iface, ci.Length, ci.CaptureLength)
	if c.hexdump && len(data) > 0 {
		buf.WriteString(c.dump(data))
	}
	c.Write(buf.Bytes())
}

// dump renders data as a hex dump, coloured when enabled. A failed highlight
// falls back to the plain dump.
func (c *Console) dump(data []byte) string {
	plain := hex.Dump(data)
	if !c.color {
		return plain
	}
	var colored strings.Builder
	if err := highlight(&colored, plain, "hexdump", "terminal16", "base16-snazzy"); err != nil {
		return plain
	}
	return colored.String() + "\x1b[0m"
}
