// Package config loads the eRPC process configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (ERPC_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// No command-line flag is bound into the configuration; the CLI only
// chooses the file.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config represents the eRPC process configuration: the per-process Nexus,
// the datapath transport, logging, and the metrics listener.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Nexus configures the per-process management plane
	Nexus NexusConfig `mapstructure:"nexus" yaml:"nexus"`

	// Transport configures the datapath transport
	Transport TransportConfig `mapstructure:"transport" yaml:"transport"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls log level, format, and destination.
type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR
	Level string `mapstructure:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR" yaml:"level"`

	// Format is "text" or "json"
	Format string `mapstructure:"format" validate:"omitempty,oneof=text json" yaml:"format"`

	// Output is "stdout", "stderr", or a file path
	Output string `mapstructure:"output" yaml:"output"`
}

// NexusConfig configures the management plane of one process.
type NexusConfig struct {
	// Host is the hostname peers use to reach this process
	Host string `mapstructure:"host" validate:"required" yaml:"host"`

	// MgmtPort is the cluster-wide management UDP port
	MgmtPort int `mapstructure:"mgmt_port" validate:"required,gte=1,lte=65535" yaml:"mgmt_port"`

	// DropProb injects management packet loss for testing. Zero in
	// production.
	DropProb float64 `mapstructure:"drop_prob" validate:"gte=0,lt=1" yaml:"drop_prob"`
}

// URI returns the Nexus management endpoint as "host:port".
func (c *NexusConfig) URI() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.MgmtPort))
}

// TransportConfig configures the datapath transport.
type TransportConfig struct {
	// Kind selects the transport implementation
	Kind string `mapstructure:"kind" validate:"oneof=udp" yaml:"kind"`

	// Port is the local datapath port; zero picks a random port
	Port int `mapstructure:"port" validate:"gte=0,lte=65535" yaml:"port"`

	// RingSize bounds the sessions the transport admits; zero uses the
	// transport default
	RingSize int `mapstructure:"ring_size" validate:"gte=0" yaml:"ring_size"`
}

// MetricsConfig configures the Prometheus metrics listener.
type MetricsConfig struct {
	// Enabled turns metrics collection and the /metrics listener on
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ListenAddr is the metrics HTTP listen address
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// Load reads configuration from the given file (optional), the ERPC_*
// environment, and defaults, then validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("ERPC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %q: %w", path, err)
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration against its struct tags, plus the
// cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("invalid config: field %s fails %q", e.Namespace(), e.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("invalid config: metrics.listen_addr required when metrics are enabled")
	}
	return nil
}
