package bpf

import (
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildUDP(t *testing.T, dstPort uint16) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       []byte{0, 1, 2, 3, 4, 5},
		DstMAC:       []byte{6, 7, 8, 9, 10, 11},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    []byte{10, 0, 0, 1},
		DstIP:    []byte{10, 0, 0, 2},
	}
	udp := &layers.UDP{SrcPort: 40000, DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload([]byte("hello"))))
	return buf.Bytes()
}

func TestCompile(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		hasErr bool
	}{
		{name: "protocol", filter: "udp", hasErr: false},
		{name: "port", filter: "udp port 53", hasErr: false},
		{name: "host", filter: "host 10.0.0.1", hasErr: false},
		{name: "garbage", filter: "not a ( filter", hasErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			insns, err := Compile(layers.LinkTypeEthernet, 65536, tt.filter)
			if tt.hasErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.NotEmpty(t, insns)
		})
	}
}

func TestMatcher(t *testing.T) {
	m, err := NewMatcher(layers.LinkTypeEthernet, 65536, "udp dst port 53")
	require.NoError(t, err)

	assert.True(t, m.Matches(buildUDP(t, 53)))
	assert.False(t, m.Matches(buildUDP(t, 80)))
	assert.Equal(t, "udp dst port 53", m.String())
}
