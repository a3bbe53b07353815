package check

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/upicheck/internal/export"
	"github.com/ethpandaops/upicheck/internal/export/http"
	"github.com/ethpandaops/upicheck/internal/latency"
	"github.com/ethpandaops/upicheck/internal/linkcheck"
	"github.com/ethpandaops/upicheck/internal/report"
	"github.com/ethpandaops/upicheck/internal/topology"
)

// Config is the top-level configuration for upicheck.
type Config struct {
	// LogLevel sets the logging verbosity (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// Topology is the expected socket and link layout.
	Topology topology.Topology `yaml:"topology"`

	// DownLinks lists links known to be down, as "s-u:s-u,...".
	DownLinks string `yaml:"down_links"`

	// DownPorts lists ports known to be down, as "s-u,...".
	DownPorts string `yaml:"down_ports"`

	// Thresholds are the pass/fail limits.
	Thresholds linkcheck.Thresholds `yaml:"thresholds"`

	// Output controls what is printed on stdout.
	Output OutputConfig `yaml:"output"`

	// MLC configures the memory latency pass-through.
	MLC latency.Config `yaml:"mlc"`

	// Sinks configures where results are exported.
	Sinks SinksConfig `yaml:"sinks"`

	// Meta holds identifying metadata attached to exported results.
	Meta MetaConfig `yaml:"meta"`
}

// OutputConfig controls result rendering.
type OutputConfig struct {
	// Format is one of text, table, json or prometheus. Defaults to text.
	Format string `yaml:"format"`

	// Verbose prints the statistics and per-link rates in text mode.
	Verbose bool `yaml:"verbose"`

	// MetricsTextfile, when set, receives the verdict metrics in the
	// node_exporter textfile format.
	MetricsTextfile string `yaml:"metrics_textfile"`
}

// SinksConfig configures result export.
type SinksConfig struct {
	ClickHouse export.ClickHouseConfig `yaml:"clickhouse"`
	HTTP       http.Config             `yaml:"http"`
}

// MetaConfig holds result metadata.
type MetaConfig struct {
	// HostName overrides the system hostname in exported results.
	HostName string `yaml:"host_name"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:   "warn",
		Topology:   topology.Default(),
		Thresholds: linkcheck.DefaultThresholds(),
		Output: OutputConfig{
			Format: string(report.FormatText),
		},
		MLC: latency.DefaultConfig(),
		Sinks: SinksConfig{
			HTTP: http.DefaultConfig(),
		},
	}
}

// LoadConfig reads and parses a YAML configuration file. An empty path
// returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for consistency. The exclusion lists
// are checked separately when a run starts so that their errors name the
// expected format.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	if err := c.Topology.Validate(); err != nil {
		return fmt.Errorf("topology: %w", err)
	}

	if err := c.Thresholds.Validate(); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}

	if _, err := report.ParseFormat(c.Output.Format); err != nil {
		return fmt.Errorf("output: %w", err)
	}

	if c.MLC.Timeout < 0 {
		return fmt.Errorf("mlc.timeout must not be negative")
	}

	if err := c.Sinks.ClickHouse.Validate(); err != nil {
		return fmt.Errorf("sinks.clickhouse: %w", err)
	}

	if err := c.Sinks.HTTP.Validate(); err != nil {
		return fmt.Errorf("sinks.http: %w", err)
	}

	return nil
}
