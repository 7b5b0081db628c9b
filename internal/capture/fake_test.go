package capture

import (
	"errors"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/mock"
	"go.uber.org/atomic"

	"firestige.xyz/pcapdump/internal/source"
)

// fakeHandle emits a 60 byte frame every interval.
type fakeHandle struct {
	interval    time.Duration
	limit       int64 // frames available, -1 for unlimited
	eof         bool  // return ErrEndOfCapture once limit is reached
	failAfter   int64
	panicAfter  int64
	ignoreBreak bool
	filterErr   error
	snapLen     int

	mu     sync.Mutex
	filter string

	delivered  atomic.Int64
	breakReq   atomic.Bool
	closed     atomic.Bool
	closeCalls atomic.Int32
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{interval: time.Millisecond, limit: -1}
}

func (h *fakeHandle) SetFilter(expr string) error {
	if h.filterErr != nil {
		return h.filterErr
	}
	h.mu.Lock()
	h.filter = expr
	h.mu.Unlock()
	return nil
}

func (h *fakeHandle) ReceiveLoop(maxFrames int, fn source.FrameFunc) error {
	n := 0
	for maxFrames < 0 || n < maxFrames {
		if h.closed.Load() {
			return source.ErrLoopBroken
		}
		if !h.ignoreBreak && h.breakReq.CAS(true, false) {
			return source.ErrLoopBroken
		}

		total := h.delivered.Load()
		if h.failAfter > 0 && total >= h.failAfter {
			return errors.New("device went down")
		}
		if h.panicAfter > 0 && total >= h.panicAfter {
			panic("driver bug")
		}
		time.Sleep(h.interval)
		if h.limit >= 0 && total >= h.limit {
			if h.eof {
				return source.ErrEndOfCapture
			}
			continue
		}

		data := make([]byte, 60)
		data[0] = byte(total)
		ci := gopacket.CaptureInfo{Timestamp: time.Now(), CaptureLength: len(data), Length: len(data)}
		h.delivered.Inc()
		n++
		fn(data, ci)
	}
	return nil
}

func (h *fakeHandle) BreakLoop() {
	h.breakReq.Store(true)
}

func (h *fakeHandle) LinkType() layers.LinkType {
	return layers.LinkTypeEthernet
}

func (h *fakeHandle) SnapLen() int {
	return h.snapLen
}

func (h *fakeHandle) Close() error {
	h.closeCalls.Inc()
	h.closed.Store(true)
	return nil
}

type fakeDescriptor struct {
	name    string
	handle  *fakeHandle
	openErr error
	opened  atomic.Int32
}

func newFakeDescriptor(name string, h *fakeHandle) *fakeDescriptor {
	return &fakeDescriptor{name: name, handle: h}
}

func (d *fakeDescriptor) Name() string {
	return d.name
}

func (d *fakeDescriptor) Open(opts source.OpenOptions) (source.Handle, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.opened.Inc()
	d.handle.snapLen = opts.SnapLen
	return d.handle, nil
}

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) ResolveByName(name string) (source.Descriptor, error) {
	args := m.Called(name)
	d, _ := args.Get(0).(source.Descriptor)
	return d, args.Error(1)
}

func (m *mockResolver) ResolveDefault() (source.Descriptor, error) {
	args := m.Called()
	d, _ := args.Get(0).(source.Descriptor)
	return d, args.Error(1)
}

// resolverFor returns a resolver knowing every descriptor by name.
func resolverFor(descs ...*fakeDescriptor) *mockResolver {
	r := &mockResolver{}
	for _, d := range descs {
		r.On("ResolveByName", d.name).Return(d, nil)
	}
	return r
}
