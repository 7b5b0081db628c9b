//go:build linux

// Package afpacket implements a live capture backend on Linux AF_PACKET
// TPACKET_V3 rings.
package afpacket

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"go.uber.org/atomic"

	"firestige.xyz/pcapdump/internal/log"
	"firestige.xyz/pcapdump/internal/source"
	"firestige.xyz/pcapdump/internal/source/bpf"
)

const (
	// Name is the backend name used in configuration.
	Name = "afpacket"

	defaultRingBufferMB = 16
	minPollTimeout      = 100 * time.Millisecond
)

// New is the registry factory for the AF_PACKET backend.
func New() (source.Resolver, error) {
	return NewResolver(), nil
}

// Resolver resolves kernel network interfaces.
type Resolver struct {
	interfaces    func() ([]net.Interface, error)
	interfaceByID func(name string) (*net.Interface, error)
}

// NewResolver creates an AF_PACKET resolver.
func NewResolver() *Resolver {
	return &Resolver{interfaces: net.Interfaces, interfaceByID: net.InterfaceByName}
}

// ResolveByName returns the interface called name.
func (r *Resolver) ResolveByName(name string) (source.Descriptor, error) {
	ifi, err := r.interfaceByID(name)
	if err != nil {
		return nil, fmt.Errorf("no such device: %s: %w", name, err)
	}
	return &Descriptor{name: ifi.Name}, nil
}

// ResolveDefault returns the first interface that is up and not a loopback.
func (r *Resolver) ResolveDefault() (source.Descriptor, error) {
	ifs, err := r.interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}
	for _, ifi := range ifs {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		return &Descriptor{name: ifi.Name}, nil
	}
	return nil, errors.New("no capture device available")
}

// Descriptor is a resolved kernel interface.
type Descriptor struct {
	name string
}

// Name returns the interface name.
func (d *Descriptor) Name() string {
	return d.name
}

// Open creates a TPACKET_V3 ring bound to the interface.
func (d *Descriptor) Open(opts source.OpenOptions) (source.Handle, error) {
	frameSize, blockSize, numBlocks, err := recomputeSize(defaultRingBufferMB, opts.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, fmt.Errorf("failed to size ring for %s: %w", d.name, err)
	}

	timeout := opts.ReadTimeout
	if timeout < minPollTimeout {
		timeout = minPollTimeout
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(d.name),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(timeout),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", d.name, err)
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"interface":  d.name,
		"frame_size": frameSize,
		"block_size": blockSize,
		"num_blocks": numBlocks,
	}).Debug("af_packet ring opened")

	return &Handle{name: d.name, tpacket: tp, snapLen: opts.SnapLen}, nil
}

// Handle wraps a TPACKET_V3 ring.
//
// TPacket.Close is not synchronized with reads, so readMu is held for the
// whole ReceiveLoop and Close takes it after breaking the loop.
type Handle struct {
	name    string
	tpacket *afpacket.TPacket
	snapLen int

	readMu    sync.Mutex
	breakReq  atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
}

// SetFilter compiles expr for Ethernet framing and attaches it to the socket.
func (h *Handle) SetFilter(expr string) error {
	raw, err := bpf.Compile(layers.LinkTypeEthernet, h.snapLen, expr)
	if err != nil {
		return fmt.Errorf("failed to compile filter %q on %s: %w", expr, h.name, err)
	}
	if err := h.tpacket.SetBPF(raw); err != nil {
		return fmt.Errorf("failed to set filter %q on %s: %w", expr, h.name, err)
	}
	return nil
}

// ReceiveLoop reads frames until maxFrames were delivered or the loop is broken.
func (h *Handle) ReceiveLoop(maxFrames int, fn source.FrameFunc) error {
	h.readMu.Lock()
	defer h.readMu.Unlock()

	delivered := 0
	for maxFrames < 0 || delivered < maxFrames {
		if h.breakReq.CAS(true, false) || h.closed.Load() {
			return source.ErrLoopBroken
		}

		data, ci, err := h.tpacket.ReadPacketData()
		if err != nil {
			if errors.Is(err, afpacket.ErrTimeout) {
				continue
			}
			if h.closed.Load() {
				return source.ErrLoopBroken
			}
			return fmt.Errorf("read on %s failed: %w", h.name, err)
		}

		if h.snapLen > 0 && len(data) > h.snapLen {
			data = data[:h.snapLen]
			ci.CaptureLength = h.snapLen
		}
		delivered++
		fn(data, ci)
	}
	return nil
}

// BreakLoop interrupts a running ReceiveLoop at its next poll timeout.
func (h *Handle) BreakLoop() {
	h.breakReq.Store(true)
}

// LinkType is always Ethernet for AF_PACKET raw sockets.
func (h *Handle) LinkType() layers.LinkType {
	return layers.LinkTypeEthernet
}

// SnapLen returns the snap length the handle was opened with.
func (h *Handle) SnapLen() int {
	return h.snapLen
}

// Close breaks any running loop, waits for it to leave the ring and releases it.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.breakReq.Store(true)
		h.readMu.Lock()
		h.tpacket.Close()
		h.readMu.Unlock()
		log.GetLogger().WithField("interface", h.name).Debug("af_packet ring closed")
	})
	return nil
}
