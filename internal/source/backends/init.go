// Package backends registers all built-in capture backends.
package backends

import (
	"firestige.xyz/pcapdump/internal/source"
	"firestige.xyz/pcapdump/internal/source/afpacket"
	"firestige.xyz/pcapdump/internal/source/file"
	"firestige.xyz/pcapdump/internal/source/pcap"
)

// Default is the backend used when none is configured.
const Default = pcap.Name

func init() {
	source.RegisterResolver(pcap.Name, pcap.New)
	source.RegisterResolver(afpacket.Name, afpacket.New)
	source.RegisterResolver(file.Name, file.New)
}
