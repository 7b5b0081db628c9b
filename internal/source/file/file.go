// Package file implements an offline source that replays pcap savefiles.
// Interface names are file paths.
package file

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"go.uber.org/atomic"

	"firestige.xyz/pcapdump/internal/log"
	"firestige.xyz/pcapdump/internal/source"
	"firestige.xyz/pcapdump/internal/source/bpf"
)

// Name is the backend name used in configuration.
const Name = "file"

// New is the registry factory for the savefile backend.
func New() (source.Resolver, error) {
	return NewResolver(), nil
}

// Resolver treats interface names as savefile paths.
type Resolver struct{}

// NewResolver creates a savefile resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// ResolveByName checks that path is a readable regular file.
func (r *Resolver) ResolveByName(path string) (source.Descriptor, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("no such capture file: %w", err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &Descriptor{path: path}, nil
}

// ResolveDefault always fails: a savefile must be named.
func (r *Resolver) ResolveDefault() (source.Descriptor, error) {
	return nil, errors.New("file source requires an explicit path")
}

// Descriptor is a resolved savefile.
type Descriptor struct {
	path string
}

// Name returns the file path.
func (d *Descriptor) Name() string {
	return d.path
}

// Open opens the savefile. Only SnapLen from opts is honoured; a value of
// zero keeps the file's own snap length.
func (d *Descriptor) Open(opts source.OpenOptions) (source.Handle, error) {
	f, err := os.Open(d.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file %s: %w", d.path, err)
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read capture file header %s: %w", d.path, err)
	}

	snapLen := int(r.Snaplen())
	if opts.SnapLen > 0 && opts.SnapLen < snapLen {
		snapLen = opts.SnapLen
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"file":      d.path,
		"link_type": r.LinkType().String(),
		"snap_len":  snapLen,
	}).Debug("capture file opened")

	return &Handle{path: d.path, file: f, reader: r, snapLen: snapLen}, nil
}

// Handle replays frames from a savefile.
type Handle struct {
	path    string
	file    *os.File
	reader  *pcapgo.Reader
	snapLen int
	matcher *bpf.Matcher

	breakReq  atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
}

// SetFilter compiles expr for the file's link type. Non-matching frames are
// skipped during replay.
func (h *Handle) SetFilter(expr string) error {
	m, err := bpf.NewMatcher(h.reader.LinkType(), h.snapLen, expr)
	if err != nil {
		return fmt.Errorf("failed to set filter %q on %s: %w", expr, h.path, err)
	}
	h.matcher = m
	log.GetLogger().WithFields(map[string]interface{}{
		"file":   h.path,
		"filter": m.String(),
	}).Debug("replay filter attached")
	return nil
}

// ReceiveLoop replays frames until maxFrames were delivered, the file ends or
// the loop is broken.
func (h *Handle) ReceiveLoop(maxFrames int, fn source.FrameFunc) error {
	delivered := 0
	for maxFrames < 0 || delivered < maxFrames {
		if h.breakReq.CAS(true, false) || h.closed.Load() {
			return source.ErrLoopBroken
		}

		data, ci, err := h.reader.ReadPacketData()
		if err != nil {
			if h.closed.Load() {
				return source.ErrLoopBroken
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return source.ErrEndOfCapture
			}
			return fmt.Errorf("read on %s failed: %w", h.path, err)
		}

		if h.matcher != nil && !h.matcher.Matches(data) {
			continue
		}
		if len(data) > h.snapLen {
			data = data[:h.snapLen]
			ci.CaptureLength = h.snapLen
		}
		delivered++
		fn(data, ci)
	}
	return nil
}

// BreakLoop interrupts ReceiveLoop before its next frame.
func (h *Handle) BreakLoop() {
	h.breakReq.Store(true)
}

// LinkType returns the link type recorded in the file header.
func (h *Handle) LinkType() layers.LinkType {
	return h.reader.LinkType()
}

// SnapLen returns the effective snap length.
func (h *Handle) SnapLen() int {
	return h.snapLen
}

// Close closes the underlying file.
func (h *Handle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		err = h.file.Close()
	})
	return err
}
