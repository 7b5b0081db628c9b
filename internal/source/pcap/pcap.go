// Package pcap implements the live capture backend on top of libpcap.
package pcap

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"go.uber.org/atomic"

	"firestige.xyz/pcapdump/internal/log"
	"firestige.xyz/pcapdump/internal/source"
)

const (
	// Name is the backend name used in configuration.
	Name = "pcap"

	// minReadTimeout bounds how long a BreakLoop may go unnoticed when the
	// configured read timeout is zero.
	minReadTimeout = 100 * time.Millisecond
)

// New is the registry factory for the libpcap backend.
func New() (source.Resolver, error) {
	return NewResolver(), nil
}

// Resolver resolves interfaces from the libpcap device list.
type Resolver struct {
	findAllDevs func() ([]pcap.Interface, error)
}

// NewResolver creates a libpcap resolver.
func NewResolver() *Resolver {
	return &Resolver{findAllDevs: pcap.FindAllDevs}
}

// ResolveByName returns the device called name.
func (r *Resolver) ResolveByName(name string) (source.Descriptor, error) {
	devs, err := r.findAllDevs()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	for _, dev := range devs {
		if dev.Name == name {
			return &Descriptor{iface: dev}, nil
		}
	}
	return nil, fmt.Errorf("no such device: %s", name)
}

// ResolveDefault returns the first device libpcap reports.
func (r *Resolver) ResolveDefault() (source.Descriptor, error) {
	devs, err := r.findAllDevs()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	if len(devs) == 0 {
		return nil, errors.New("no capture device available")
	}
	return &Descriptor{iface: devs[0]}, nil
}

// Interfaces returns every device libpcap can open.
func (r *Resolver) Interfaces() ([]pcap.Interface, error) {
	return r.findAllDevs()
}

// Version returns the libpcap version string.
func Version() string {
	return pcap.Version()
}

// Descriptor is a resolved libpcap device.
type Descriptor struct {
	iface pcap.Interface
}

// Name returns the device name.
func (d *Descriptor) Name() string {
	return d.iface.Name
}

// Open opens the device for live capture.
func (d *Descriptor) Open(opts source.OpenOptions) (source.Handle, error) {
	timeout := opts.ReadTimeout
	if timeout <= 0 {
		timeout = minReadTimeout
	}
	h, err := pcap.OpenLive(d.iface.Name, int32(opts.SnapLen), opts.Promiscuous, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", d.iface.Name, err)
	}
	log.GetLogger().WithFields(map[string]interface{}{
		"interface": d.iface.Name,
		"snap_len":  opts.SnapLen,
		"timeout":   timeout,
	}).Debug("pcap handle opened")
	return &Handle{name: d.iface.Name, handle: h, snapLen: opts.SnapLen}, nil
}

// Handle wraps a live libpcap handle.
type Handle struct {
	name    string
	handle  *pcap.Handle
	snapLen int

	breakReq  atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
}

// SetFilter attaches a BPF filter expression to the handle.
func (h *Handle) SetFilter(expr string) error {
	if err := h.handle.SetBPFFilter(expr); err != nil {
		return fmt.Errorf("failed to set filter %q on %s: %w", expr, h.name, err)
	}
	return nil
}

// ReceiveLoop reads frames until maxFrames were delivered or the loop is broken.
func (h *Handle) ReceiveLoop(maxFrames int, fn source.FrameFunc) error {
	delivered := 0
	for maxFrames < 0 || delivered < maxFrames {
		if h.breakReq.CAS(true, false) || h.closed.Load() {
			return source.ErrLoopBroken
		}

		data, ci, err := h.handle.ReadPacketData()
		if err != nil {
			if err == pcap.NextErrorTimeoutExpired {
				continue
			}
			if h.closed.Load() || errors.Is(err, io.EOF) {
				return source.ErrLoopBroken
			}
			return fmt.Errorf("read on %s failed: %w", h.name, err)
		}

		delivered++
		fn(data, ci)
	}
	return nil
}

// BreakLoop interrupts a running ReceiveLoop at its next read timeout.
func (h *Handle) BreakLoop() {
	h.breakReq.Store(true)
}

// LinkType returns the link type of the device.
func (h *Handle) LinkType() layers.LinkType {
	return h.handle.LinkType()
}

// SnapLen returns the snap length the handle was opened with.
func (h *Handle) SnapLen() int {
	return h.snapLen
}

// Close releases the libpcap handle. It waits for an in-flight read to return.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.handle.Close()
		log.GetLogger().WithField("interface", h.name).Debug("pcap handle closed")
	})
	return nil
}
