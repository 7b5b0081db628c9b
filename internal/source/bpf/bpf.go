// Package bpf compiles tcpdump-style filter expressions into classic BPF
// programs usable outside libpcap handles.
package bpf

import (
	"fmt"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"
)

// Compile compiles filter for the given link type and snap length.
func Compile(linkType layers.LinkType, snapLen int, filter string) ([]bpf.RawInstruction, error) {
	pcapBpf, err := pcap.CompileBPFFilter(linkType, snapLen, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to compile BPF filter %q: %w", filter, err)
	}

	rawBpf := make([]bpf.RawInstruction, len(pcapBpf))
	for i, ins := range pcapBpf {
		rawBpf[i] = bpf.RawInstruction{Op: ins.Code, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	return rawBpf, nil
}

// Matcher evaluates a compiled program against frames in process.
type Matcher struct {
	filter string
	vm     *bpf.VM
}

// NewMatcher compiles filter and loads it into a BPF virtual machine.
func NewMatcher(linkType layers.LinkType, snapLen int, filter string) (*Matcher, error) {
	raw, err := Compile(linkType, snapLen, filter)
	if err != nil {
		return nil, err
	}
	insns, ok := bpf.Disassemble(raw)
	if !ok {
		return nil, fmt.Errorf("failed to decode BPF program for %q", filter)
	}
	vm, err := bpf.NewVM(insns)
	if err != nil {
		return nil, fmt.Errorf("failed to load BPF program for %q: %w", filter, err)
	}
	return &Matcher{filter: filter, vm: vm}, nil
}

// Matches reports whether the program accepts frame.
func (m *Matcher) Matches(frame []byte) bool {
	n, err := m.vm.Run(frame)
	return err == nil && n > 0
}

// String returns the source expression.
func (m *Matcher) String() string {
	return m.filter
}
