package file

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pcapdump/internal/source"
)

func udpFrame(t *testing.T, dstPort uint16) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP{10, 0, 0, 1},
		DstIP:    net.IP{10, 0, 0, 2},
	}
	udp := &layers.UDP{SrcPort: 40000, DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload("hello")))
	return buf.Bytes()
}

func writeCapture(t *testing.T, ports ...uint16) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))
	ts := time.Unix(1700000000, 0)
	for i, p := range ports {
		data := udpFrame(t, p)
		ci := gopacket.CaptureInfo{
			Timestamp:     ts.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(data),
			Length:        len(data),
		}
		require.NoError(t, w.WritePacket(ci, data))
	}
	return path
}

func openCapture(t *testing.T, path string, snapLen int) source.Handle {
	t.Helper()
	desc, err := NewResolver().ResolveByName(path)
	require.NoError(t, err)
	assert.Equal(t, path, desc.Name())
	h, err := desc.Open(source.OpenOptions{SnapLen: snapLen})
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestResolver(t *testing.T) {
	r := NewResolver()

	_, err := r.ResolveByName(filepath.Join(t.TempDir(), "missing.pcap"))
	assert.Error(t, err)

	_, err = r.ResolveByName(t.TempDir())
	assert.Error(t, err)

	_, err = r.ResolveDefault()
	assert.Error(t, err)
}

func TestReplayUntilEnd(t *testing.T) {
	h := openCapture(t, writeCapture(t, 53, 80, 53), 0)
	assert.Equal(t, layers.LinkTypeEthernet, h.LinkType())
	assert.Equal(t, 65535, h.SnapLen())

	var n int
	err := h.ReceiveLoop(source.Unbounded, func(data []byte, ci gopacket.CaptureInfo) {
		n++
		assert.Equal(t, len(data), ci.CaptureLength)
	})
	assert.ErrorIs(t, err, source.ErrEndOfCapture)
	assert.Equal(t, 3, n)
}

func TestReplayMaxFrames(t *testing.T) {
	h := openCapture(t, writeCapture(t, 1, 2, 3, 4), 0)

	var n int
	err := h.ReceiveLoop(2, func([]byte, gopacket.CaptureInfo) { n++ })
	assert.NoError(t, err)
	assert.Equal(t, 2, n)

	err = h.ReceiveLoop(source.Unbounded, func([]byte, gopacket.CaptureInfo) { n++ })
	assert.ErrorIs(t, err, source.ErrEndOfCapture)
	assert.Equal(t, 4, n)
}

func TestReplayFilter(t *testing.T) {
	h := openCapture(t, writeCapture(t, 53, 80, 53, 443), 0)
	require.NoError(t, h.SetFilter("udp dst port 53"))

	var n int
	err := h.ReceiveLoop(source.Unbounded, func([]byte, gopacket.CaptureInfo) { n++ })
	assert.ErrorIs(t, err, source.ErrEndOfCapture)
	assert.Equal(t, 2, n)
}

func TestReplayInvalidFilter(t *testing.T) {
	h := openCapture(t, writeCapture(t, 53), 0)
	assert.Error(t, h.SetFilter("not a (valid filter"))
}

func TestReplaySnapLen(t *testing.T) {
	h := openCapture(t, writeCapture(t, 53), 20)
	assert.Equal(t, 20, h.SnapLen())

	err := h.ReceiveLoop(source.Unbounded, func(data []byte, ci gopacket.CaptureInfo) {
		assert.Len(t, data, 20)
		assert.Equal(t, 20, ci.CaptureLength)
		assert.Greater(t, ci.Length, 20)
	})
	assert.ErrorIs(t, err, source.ErrEndOfCapture)
}

func TestBreakLoop(t *testing.T) {
	h := openCapture(t, writeCapture(t, 1, 2, 3), 0)

	// A break requested before the loop starts is honoured on entry.
	h.BreakLoop()
	var n int
	err := h.ReceiveLoop(source.Unbounded, func([]byte, gopacket.CaptureInfo) { n++ })
	assert.ErrorIs(t, err, source.ErrLoopBroken)
	assert.Zero(t, n)

	// Breaking from inside the callback stops before the next frame.
	err = h.ReceiveLoop(source.Unbounded, func([]byte, gopacket.CaptureInfo) {
		n++
		h.BreakLoop()
	})
	assert.ErrorIs(t, err, source.ErrLoopBroken)
	assert.Equal(t, 1, n)
}

func TestCloseIdempotent(t *testing.T) {
	h := openCapture(t, writeCapture(t, 1), 0)
	assert.NoError(t, h.Close())
	assert.NoError(t, h.Close())

	err := h.ReceiveLoop(source.Unbounded, func([]byte, gopacket.CaptureInfo) {})
	assert.ErrorIs(t, err, source.ErrLoopBroken)
}
