package capture

import (
	"path/filepath"
	"strings"
)

const defaultDumpExt = ".pcap"

var ifaceNameReplacer = strings.NewReplacer("/", "_", "\\", "_")

// OutputPath derives the dump file of iface from output by inserting the
// interface name before the extension: out.pcap and eth0 give out_eth0.pcap.
// An output without extension gets .pcap.
func OutputPath(output, iface string) string {
	dir, base := filepath.Split(output)
	ext := filepath.Ext(base)
	if ext == "" || ext == base {
		ext = defaultDumpExt
	} else {
		base = strings.TrimSuffix(base, ext)
	}
	return filepath.Join(dir, base+"_"+ifaceNameReplacer.Replace(iface)+ext)
}
