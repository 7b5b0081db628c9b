package sink

import (
	"bufio"
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"go.uber.org/multierr"

	"firestige.xyz/pcapdump/internal/console"
)

// Target persists frames of one interface. It is only used from the writer
// goroutine, so implementations need no locking.
type Target interface {
	WriteFrame(data []byte, ci gopacket.CaptureInfo) error
	Destination() string
	Close() error
}

const dumpBufferSize = 64 * 1024

// DumpTarget writes frames to a pcap savefile.
type DumpTarget struct {
	path string
	file *os.File
	buf  *bufio.Writer
	w    *pcapgo.Writer
}

// OpenDump creates path and writes the pcap file header.
func OpenDump(path string, linkType layers.LinkType, snapLen int) (*DumpTarget, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create dump file %s: %w", path, err)
	}
	buf := bufio.NewWriterSize(f, dumpBufferSize)
	w := pcapgo.NewWriter(buf)
	if err := w.WriteFileHeader(uint32(snapLen), linkType); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write dump header %s: %w", path, err)
	}
	return &DumpTarget{path: path, file: f, buf: buf, w: w}, nil
}

func (d *DumpTarget) WriteFrame(data []byte, ci gopacket.CaptureInfo) error {
	return d.w.WritePacket(ci, data)
}

func (d *DumpTarget) Destination() string {
	return d.path
}

// Close flushes buffered frames and closes the file.
func (d *DumpTarget) Close() error {
	err := d.buf.Flush()
	err = multierr.Append(err, d.file.Close())
	if err != nil {
		return fmt.Errorf("failed to close dump file %s: %w", d.path, err)
	}
	return nil
}

// ConsoleTarget prints frames on the reporting surface.
type ConsoleTarget struct {
	iface string
	out   *console.Console
}

func NewConsoleTarget(iface string, out *console.Console) *ConsoleTarget {
	return &ConsoleTarget{iface: iface, out: out}
}

func (c *ConsoleTarget) WriteFrame(data []byte, ci gopacket.CaptureInfo) error {
	c.out.Frame(c.iface, data, ci)
	return nil
}

func (c *ConsoleTarget) Destination() string {
	return "console"
}

func (c *ConsoleTarget) Close() error {
	return nil
}
