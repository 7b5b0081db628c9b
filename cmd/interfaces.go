package cmd

import (
	"fmt"
	"io"

	gopcap "github.com/google/gopacket/pcap"
	"github.com/spf13/cobra"

	"firestige.xyz/pcapdump/internal/source/pcap"
)

// interfacesCmd represents the interfaces command
var interfacesCmd = &cobra.Command{
	Use:     "interfaces",
	Aliases: []string{"list"},
	Short:   "List interfaces available for capture",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInterfaces(defaultLister, cmd.OutOrStdout())
	},
}

type deviceLister func() ([]gopcap.Interface, error)

func defaultLister() ([]gopcap.Interface, error) {
	return pcap.NewResolver().Interfaces()
}

func runInterfaces(list deviceLister, out io.Writer) error {
	devs, err := list()
	if err != nil {
		return fmt.Errorf("failed to list interfaces: %w", err)
	}
	if len(devs) == 0 {
		fmt.Fprintln(out, "no capture interfaces available")
		return nil
	}
	_, err = io.WriteString(out, pcap.Describe(devs))
	return err
}
