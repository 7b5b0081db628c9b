package pcap

import (
	"fmt"
	"net"
	"strings"

	"github.com/google/gopacket/pcap"
)

// pcapIfLoopback mirrors PCAP_IF_LOOPBACK.
const pcapIfLoopback = 0x00000001

// Describe renders devices in an ifconfig-like layout.
func Describe(devs []pcap.Interface) string {
	var sb strings.Builder
	for _, dev := range devs {
		encap := "Ethernet"
		if dev.Flags&pcapIfLoopback != 0 {
			encap = "Local loopback"
		}
		fmt.Fprintf(&sb, "%-10sLink encap: %s", dev.Name, encap)
		if dev.Description != "" {
			fmt.Fprintf(&sb, "  (%s)", dev.Description)
		}
		sb.WriteString("\n")

		for _, addr := range dev.Addresses {
			if addr.IP.To4() != nil {
				fmt.Fprintf(&sb, "%10sinet addr:%s", "", addr.IP)
				if addr.Broadaddr != nil {
					fmt.Fprintf(&sb, " Bcast:%s", addr.Broadaddr)
				}
				if addr.Netmask != nil {
					fmt.Fprintf(&sb, " Mask:%s", net.IP(addr.Netmask))
				}
				sb.WriteString("\n")
				continue
			}
			fmt.Fprintf(&sb, "%10sinet6 addr: %s\n", "", addr.IP)
		}
	}
	return sb.String()
}
