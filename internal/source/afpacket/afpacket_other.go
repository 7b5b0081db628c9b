//go:build !linux

package afpacket

import (
	"firestige.xyz/pcapdump/internal/source"
)

// Name is the backend name used in configuration.
const Name = "afpacket"

// New reports that AF_PACKET is only available on Linux.
func New() (source.Resolver, error) {
	return nil, source.ErrUnsupported
}
