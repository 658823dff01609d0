package waypoint

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"

	wlog "github.com/kzs0/waypoint/log"
	"github.com/kzs0/waypoint/trace"
)

// EnvVarPrefix is prepended to every flag name to form its environment
// variable, e.g. WAYPOINT_APPLICATION_NAME.
const EnvVarPrefix = "WAYPOINT"

// Config configures an Agent.
type Config struct {
	// ApplicationName identifies this service to downstream peers.
	ApplicationName string
	// AgentID identifies this process. Defaults to a fresh ULID.
	AgentID string
	// ServiceType is the tag recorded on spans started by this agent.
	ServiceType trace.ServiceType

	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string
	// LogFormat is "json" or "text".
	LogFormat string
	// LogOutput is the log output writer. Defaults to os.Stderr.
	LogOutput io.Writer

	// ExportBatchSize is the number of spans handed to the exporter at once.
	ExportBatchSize int
	// ExportQueueSize bounds the spans buffered ahead of the exporter.
	ExportQueueSize int
	// ExportTimeout is the longest a partial batch waits before export.
	ExportTimeout time.Duration

	// ObserverAddr is the listen address of the observer server. Empty
	// disables it.
	ObserverAddr string

	// ShutdownTimeout bounds Agent.Shutdown when the caller's context has no
	// deadline.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ApplicationName: "unknown",
		AgentID:         ulid.Make().String(),
		ServiceType:     trace.ServiceTypeHTTPServer,
		LogLevel:        "info",
		LogFormat:       "json",
		ExportBatchSize: 512,
		ExportQueueSize: 2048,
		ExportTimeout:   5 * time.Second,
		ObserverAddr:    ":9090",
		ShutdownTimeout: 30 * time.Second,
	}
}

// RegisterFlags adds a flag for every field except LogOutput, using the
// current field values as defaults.
func (c *Config) RegisterFlags(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{
		LongName: "application-name",
		Value:    ffval.NewValueDefault(&c.ApplicationName, c.ApplicationName),
		Usage:    "name reported to downstream services",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "agent-id",
		Value:    ffval.NewValueDefault(&c.AgentID, c.AgentID),
		Usage:    "unique id of this agent process",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "service-type",
		Value:    &c.ServiceType,
		Usage:    "service type recorded on spans, by name or code",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "log-level",
		Value:    ffval.NewValueDefault(&c.LogLevel, c.LogLevel),
		Usage:    "log level: debug, info, warn, error",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "log-format",
		Value:    ffval.NewValueDefault(&c.LogFormat, c.LogFormat),
		Usage:    "log format: json, text",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "export-batch-size",
		Value:    ffval.NewValueDefault(&c.ExportBatchSize, c.ExportBatchSize),
		Usage:    "spans per export batch",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "export-queue-size",
		Value:    ffval.NewValueDefault(&c.ExportQueueSize, c.ExportQueueSize),
		Usage:    "maximum spans queued for export",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "export-timeout",
		Value:    ffval.NewValueDefault(&c.ExportTimeout, c.ExportTimeout),
		Usage:    "maximum wait before a partial batch is exported",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "observer-addr",
		Value:    ffval.NewValueDefault(&c.ObserverAddr, c.ObserverAddr),
		Usage:    "listen address for metrics, health and pprof (empty disables)",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName: "shutdown-timeout",
		Value:    ffval.NewValueDefault(&c.ShutdownTimeout, c.ShutdownTimeout),
		Usage:    "maximum time spent flushing on shutdown",
	})
}

// FromEnv loads configuration from WAYPOINT_* environment variables, starting
// from DefaultConfig.
func FromEnv() (Config, error) {
	return ParseArgs(nil)
}

// ParseArgs loads configuration from command line arguments and WAYPOINT_*
// environment variables, starting from DefaultConfig. Flags take precedence.
func ParseArgs(args []string) (Config, error) {
	cfg := DefaultConfig()
	fs := ff.NewFlagSet("waypoint")
	cfg.RegisterFlags(fs)
	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix(EnvVarPrefix)); err != nil {
		return Config{}, fmt.Errorf("waypoint: failed to parse config: %w", err)
	}
	return cfg, nil
}

// MustFromEnv loads configuration from environment variables, panicking on error.
func MustFromEnv() Config {
	cfg, err := FromEnv()
	if err != nil {
		panic(err)
	}
	return cfg
}

// logLevel returns the parsed slog.Level from the string LogLevel field.
func (c Config) logLevel() slog.Level {
	return wlog.ParseLevel(c.LogLevel)
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ApplicationName == "" {
		c.ApplicationName = def.ApplicationName
	}
	if c.AgentID == "" {
		c.AgentID = def.AgentID
	}
	if c.ServiceType == trace.ServiceTypeUnknown {
		c.ServiceType = def.ServiceType
	}
	if c.LogFormat == "" {
		c.LogFormat = def.LogFormat
	}
	if c.ExportBatchSize <= 0 {
		c.ExportBatchSize = def.ExportBatchSize
	}
	if c.ExportQueueSize <= 0 {
		c.ExportQueueSize = def.ExportQueueSize
	}
	if c.ExportTimeout <= 0 {
		c.ExportTimeout = def.ExportTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	return c
}
