package log

const (
	DefaultPattern = "%time [%level] %msg %field\n"
	DefaultTime    = "2006-01-02 15:04:05.000"
	DefaultLevel   = "info"
)

type LoggerConfig struct {
	Level   string `mapstructure:"level"`
	Pattern string `mapstructure:"pattern"`
	Time    string `mapstructure:"time"`

	// Quiet suppresses diagnostics on stderr. File appenders keep working.
	Quiet bool `mapstructure:"quiet"`

	File FileAppenderOpt `mapstructure:"file"`
}
