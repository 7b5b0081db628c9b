// Package source defines the capture primitive consumed by the capture session:
// interface resolution, live handles and the blocking receive loop.
package source

import (
	"errors"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var (
	// ErrLoopBroken is returned by ReceiveLoop when BreakLoop interrupted it
	// or the handle was closed underneath it.
	ErrLoopBroken = errors.New("source: receive loop broken")

	// ErrEndOfCapture is returned by ReceiveLoop when an offline source has no
	// more frames.
	ErrEndOfCapture = errors.New("source: end of capture")

	// ErrUnsupported is returned by backends not available on this platform.
	ErrUnsupported = errors.New("source: backend not supported on this platform")
)

// Unbounded as maxFrames makes ReceiveLoop run until broken or failed.
const Unbounded = -1

// FrameFunc receives one frame. data is owned by the callee after the call.
type FrameFunc func(data []byte, ci gopacket.CaptureInfo)

// OpenOptions are the parameters used to open a live capture handle.
type OpenOptions struct {
	SnapLen     int
	Promiscuous bool
	ReadTimeout time.Duration
}

// Resolver maps interface names to descriptors.
type Resolver interface {
	ResolveByName(name string) (Descriptor, error)
	ResolveDefault() (Descriptor, error)
}

// Descriptor is a resolved interface that can be opened.
type Descriptor interface {
	Name() string
	Open(opts OpenOptions) (Handle, error)
}

// Handle is an open capture endpoint for exactly one interface.
//
// ReceiveLoop blocks until maxFrames frames were delivered (nil), BreakLoop
// was called (ErrLoopBroken), the source ran dry (ErrEndOfCapture) or a read
// failed. A BreakLoop issued while no loop runs makes the next ReceiveLoop
// return ErrLoopBroken immediately. BreakLoop is safe to call from any
// goroutine. Close is idempotent.
type Handle interface {
	SetFilter(expr string) error
	ReceiveLoop(maxFrames int, fn FrameFunc) error
	BreakLoop()
	LinkType() layers.LinkType
	SnapLen() int
	Close() error
}
