package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/pcapdump/internal/capture"
	"firestige.xyz/pcapdump/internal/config"
	"firestige.xyz/pcapdump/internal/console"
	"firestige.xyz/pcapdump/internal/core"
	"firestige.xyz/pcapdump/internal/log"
	"firestige.xyz/pcapdump/internal/metrics"
	"firestige.xyz/pcapdump/internal/source"
	_ "firestige.xyz/pcapdump/internal/source/backends"
)

// captureCmd represents the capture command
var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture packets until a budget runs out or the capture is interrupted",
	Long: `Capture packets on one or more interfaces.

Examples:
  pcapdump capture -i eth0 -i eth1 -c 1000 -w /tmp/out.pcap
  pcapdump capture -i eth0 -d 30s -f "tcp port 443" -w trace.pcap
  pcapdump capture --source file -i input.pcap -f "udp" -w filtered.pcap
  pcapdump capture -i lo -x`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return captureFromFlags(cmd)
	},
}

func init() {
	addCaptureFlags(captureCmd)
}

func addCaptureFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringSliceP("interface", "i", nil, "interface to capture on, repeatable (default: first available)")
	fs.IntP("snaplen", "s", config.DefaultSnapLength, "bytes captured per frame")
	fs.DurationP("timeout", "t", config.DefaultReadTimeout, "read timeout of live handles")
	fs.Int64P("count", "c", 0, "stop after this many frames across all interfaces (0 = unbounded)")
	fs.DurationP("duration", "d", 0, "stop after this long (0 = unbounded)")
	fs.StringP("filter", "f", "", "BPF filter expression")
	fs.StringP("write", "w", "", "dump file path; each interface gets <base>_<iface><ext>")
	fs.Bool("promisc", true, "capture in promiscuous mode")
	fs.String("source", config.DefaultSource, "capture backend (pcap, afpacket, file)")
	fs.Int("queue-size", config.DefaultQueueSize, "frames buffered for the dump writer")
	fs.Bool("flush-on-shutdown", true, "write frames still queued at shutdown")
	fs.Duration("shutdown-timeout", config.DefaultShutdownTimeout, "how long to wait for capture loops to stop")
	fs.String("report-format", "text", "summary format (text, yaml, json)")
	fs.BoolP("hexdump", "x", false, "print a hex dump of frames shown on the console")
	fs.String("metrics-listen", "", "serve /metrics and /status on this address")
}

func captureFromFlags(cmd *cobra.Command) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := log.Init(&cfg.Log); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCapture(ctx, cfg, cmd.OutOrStdout())
}

// runCapture runs one capture session and reports a failed interface as an error.
func runCapture(ctx context.Context, cfg *config.GlobalConfig, out io.Writer) error {
	resolver, err := source.NewResolver(cfg.Capture.Source)
	if err != nil {
		return err
	}

	con := console.New(out, console.WithHexdump(cfg.Report.Hexdump))
	session := capture.NewSession(cfg.Capture, resolver, con, capture.WithReportFormat(cfg.Report.Format))

	if cfg.Metrics.Listen != "" {
		server := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path, func() interface{} {
			return session.Snapshot()
		})
		if err := server.Start(ctx); err != nil {
			return err
		}
		defer server.Stop(context.Background())
	}

	report, err := session.Run(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for i := range report.Interfaces {
		if report.Interfaces[i].State == capture.Failed {
			errs = append(errs, report.Interfaces[i].Err())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("capture failed: %w", errors.Join(errs...))
	}
	return nil
}

// exitCode maps errors to process exit codes.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, core.ErrConfigInvalid):
		return 2
	case errors.Is(err, core.ErrResolution), errors.Is(err, core.ErrOpen),
		errors.Is(err, core.ErrFilter), errors.Is(err, core.ErrSinkOpen):
		return 3
	default:
		return 1
	}
}
