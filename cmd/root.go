// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is the tool version, overridden at link time.
var Version = "0.1.0"

var (
	// Global flags
	configFile string
	listOnly   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pcapdump",
	Short: "pcapdump - capture traffic from several interfaces into per-interface dump files",
	Long: `pcapdump captures live traffic from one or more network interfaces at once.

Every interface gets its own capture loop and its own dump file, derived from
the output path: -w out.pcap on eth0 and eth1 writes out_eth0.pcap and
out_eth1.pcap. The capture stops for all interfaces when the packet count or
duration budget runs out, when one interface fails, or on SIGINT/SIGTERM.
Without -w frames are printed on the console.

Running pcapdump without a subcommand is the same as "pcapdump capture".`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if listOnly {
			return runInterfaces(defaultLister, cmd.OutOrStdout())
		}
		return captureFromFlags(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().BoolP("quiet", "S", true, "silence diagnostic logging")
	rootCmd.PersistentFlags().String("log-level", "info", "diagnostic log level (trace/debug/info/warn/error)")
	rootCmd.PersistentFlags().String("log-file", "", "also write diagnostics to this rotated file")

	rootCmd.Flags().BoolVarP(&listOnly, "list", "l", false, "list capture interfaces and exit")
	addCaptureFlags(rootCmd)

	// Add subcommands
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(interfacesCmd)
	rootCmd.AddCommand(versionCmd)
}

// Main runs the CLI and exits with a code derived from the error.
func Main() {
	err := Execute()
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(exitCode(err))
}
