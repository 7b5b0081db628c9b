// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"firestige.xyz/pcapdump/internal/core"
	"firestige.xyz/pcapdump/internal/log"
)

// EnvPrefix prefixes environment overrides, e.g. PCAPDUMP_CAPTURE_COUNT.
const EnvPrefix = "PCAPDUMP"

// GlobalConfig is the root of the configuration file.
type GlobalConfig struct {
	Log     log.LoggerConfig `mapstructure:"log"`
	Capture CaptureConfig    `mapstructure:"capture"`
	Metrics MetricsConfig    `mapstructure:"metrics"`
	Report  ReportConfig     `mapstructure:"report"`
}

// CaptureConfig holds the parameters of one capture run.
// It is treated as immutable once Load returns.
type CaptureConfig struct {
	Interfaces  []string      `mapstructure:"interfaces"`   // empty = backend default
	SnapLength  int           `mapstructure:"snap_length"`  // bytes per frame
	ReadTimeout time.Duration `mapstructure:"read_timeout"` // per read on live handles
	Count       int64         `mapstructure:"count"`        // 0 = unbounded
	Duration    time.Duration `mapstructure:"duration"`     // 0 = unbounded
	Filter      string        `mapstructure:"filter"`
	Output      string        `mapstructure:"output"` // empty = frames go to the console
	Promiscuous bool          `mapstructure:"promiscuous"`
	Source      string        `mapstructure:"source"` // pcap | afpacket | file

	QueueSize       int           `mapstructure:"queue_size"`
	FlushOnShutdown bool          `mapstructure:"flush_on_shutdown"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
}

// MetricsConfig controls the optional HTTP endpoint.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"` // empty = disabled
	Path   string `mapstructure:"path"`
}

// ReportConfig controls how the session summary is printed.
type ReportConfig struct {
	Format  string `mapstructure:"format"` // text | yaml | json
	Hexdump bool   `mapstructure:"hexdump"`
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"interface":         "capture.interfaces",
	"snaplen":           "capture.snap_length",
	"timeout":           "capture.read_timeout",
	"count":             "capture.count",
	"duration":          "capture.duration",
	"filter":            "capture.filter",
	"write":             "capture.output",
	"promisc":           "capture.promiscuous",
	"source":            "capture.source",
	"queue-size":        "capture.queue_size",
	"flush-on-shutdown": "capture.flush_on_shutdown",
	"shutdown-timeout":  "capture.shutdown_timeout",
	"quiet":             "log.quiet",
	"log-level":         "log.level",
	"log-file":          "log.file.filename",
	"metrics-listen":    "metrics.listen",
	"report-format":     "report.format",
	"hexdump":           "report.hexdump",
}

// Load reads the optional config file at path, applies PCAPDUMP_ environment
// overrides and the changed flags in flags, then validates the result.
func Load(path string, flags *pflag.FlagSet) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg GlobalConfig
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can see it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", log.DefaultLevel)
	v.SetDefault("log.pattern", log.DefaultPattern)
	v.SetDefault("log.time", log.DefaultTime)
	v.SetDefault("log.quiet", true)
	v.SetDefault("log.file.filename", "")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.compress", false)

	v.SetDefault("capture.interfaces", []string{})
	v.SetDefault("capture.snap_length", DefaultSnapLength)
	v.SetDefault("capture.read_timeout", DefaultReadTimeout)
	v.SetDefault("capture.count", 0)
	v.SetDefault("capture.duration", 0)
	v.SetDefault("capture.filter", "")
	v.SetDefault("capture.output", "")
	v.SetDefault("capture.promiscuous", true)
	v.SetDefault("capture.source", DefaultSource)
	v.SetDefault("capture.queue_size", DefaultQueueSize)
	v.SetDefault("capture.flush_on_shutdown", true)
	v.SetDefault("capture.shutdown_timeout", DefaultShutdownTimeout)
	v.SetDefault("capture.poll_interval", DefaultPollInterval)

	v.SetDefault("metrics.listen", "")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("report.format", "text")
	v.SetDefault("report.hexdump", false)
}

const (
	DefaultSnapLength      = 65536
	DefaultReadTimeout     = 10 * time.Millisecond
	DefaultSource          = "pcap"
	DefaultQueueSize       = 65536
	DefaultShutdownTimeout = 5 * time.Second
	DefaultPollInterval    = 200 * time.Millisecond
)

var (
	validSources       = map[string]bool{"pcap": true, "afpacket": true, "file": true}
	validReportFormats = map[string]bool{"text": true, "yaml": true, "json": true}
)

// DefaultCaptureConfig returns a CaptureConfig with every default applied.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		SnapLength:      DefaultSnapLength,
		ReadTimeout:     DefaultReadTimeout,
		Promiscuous:     true,
		Source:          DefaultSource,
		QueueSize:       DefaultQueueSize,
		FlushOnShutdown: true,
		ShutdownTimeout: DefaultShutdownTimeout,
		PollInterval:    DefaultPollInterval,
	}
}

// ValidateAndApplyDefaults validates the configuration and normalizes it.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	if err := cfg.Capture.Validate(); err != nil {
		return err
	}
	if cfg.Report.Format == "" {
		cfg.Report.Format = "text"
	}
	if !validReportFormats[cfg.Report.Format] {
		return fmt.Errorf("%w: invalid report format: %s (must be text/yaml/json)", core.ErrConfigInvalid, cfg.Report.Format)
	}
	if cfg.Metrics.Listen != "" && cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	return nil
}

// Validate checks the capture parameters and removes duplicate interfaces,
// keeping the first occurrence of each.
func (c *CaptureConfig) Validate() error {
	if c.SnapLength <= 0 {
		return fmt.Errorf("%w: snap length must be positive, got %d", core.ErrConfigInvalid, c.SnapLength)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("%w: read timeout must not be negative, got %s", core.ErrConfigInvalid, c.ReadTimeout)
	}
	if c.Count < 0 {
		return fmt.Errorf("%w: count must not be negative, got %d", core.ErrConfigInvalid, c.Count)
	}
	if c.Duration < 0 {
		return fmt.Errorf("%w: duration must not be negative, got %s", core.ErrConfigInvalid, c.Duration)
	}
	if c.Source == "" {
		c.Source = DefaultSource
	}
	if !validSources[c.Source] {
		return fmt.Errorf("%w: unknown source %q (must be pcap/afpacket/file)", core.ErrConfigInvalid, c.Source)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("%w: queue size must be positive, got %d", core.ErrConfigInvalid, c.QueueSize)
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	c.Interfaces = NormalizeInterfaces(c.Interfaces)
	return nil
}

// NormalizeInterfaces trims names, drops empty ones and removes duplicates,
// keeping the first occurrence. It returns a new slice.
func NormalizeInterfaces(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
