package core

import (
	"github.com/google/gopacket"
)

// Frame is one captured frame handed from a capture task to its sink.
// Data must not alias a capture ring buffer; backends copy before delivery.
type Frame struct {
	Interface string
	Data      []byte
	Info      gopacket.CaptureInfo
}

// Len returns the captured length of the frame.
func (f *Frame) Len() int {
	return len(f.Data)
}
