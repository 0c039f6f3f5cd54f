// Package config holds the runtime settings of the scanner and the loaders
// that populate them.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Default values applied before any source is read.
const (
	DefaultChunkSize     = 64 * 1024
	DefaultProgressEvery = 250 * time.Millisecond
	DefaultLogLevel      = "info"
	DefaultServiceName   = "frostfile"
	DefaultSamplingRatio = 1.0
)

// Config represents the top-level configuration.
type Config struct {
	Scanner    ScannerConfig    `yaml:"scanner" mapstructure:"scanner"`
	Signatures SignaturesConfig `yaml:"signatures" mapstructure:"signatures"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" mapstructure:"telemetry"`
}

// ScannerConfig tunes the scanning engine.
type ScannerConfig struct {
	// Workers is the size of the worker pool. Zero uses GOMAXPROCS.
	Workers int `yaml:"workers" mapstructure:"workers" validate:"gte=0,lte=1024"`

	// ChunkSize is the read buffer size used while hashing.
	ChunkSize int `yaml:"chunk_size" mapstructure:"chunk_size" validate:"gte=4096,lte=67108864"`

	// ProgressEvery is the minimum interval between two progress lines
	// printed by the CLI. Zero prints every update.
	ProgressEvery time.Duration `yaml:"progress_every" mapstructure:"progress_every" validate:"gte=0"`
}

// SignaturesConfig selects the signature source. An empty Path uses the
// database bundled with the binary.
type SignaturesConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json" mapstructure:"json"`
}

// TelemetryConfig controls trace and metric export. Export is disabled when
// Endpoint is empty.
type TelemetryConfig struct {
	Endpoint      string  `yaml:"endpoint" mapstructure:"endpoint" validate:"omitempty,hostname_port"`
	ServiceName   string  `yaml:"service_name" mapstructure:"service_name" validate:"required"`
	SamplingRatio float64 `yaml:"sampling_ratio" mapstructure:"sampling_ratio" validate:"gte=0,lte=1"`
	Insecure      bool    `yaml:"insecure" mapstructure:"insecure"`
}

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		Scanner: ScannerConfig{
			ChunkSize:     DefaultChunkSize,
			ProgressEvery: DefaultProgressEvery,
		},
		Log: LogConfig{Level: DefaultLogLevel},
		Telemetry: TelemetryConfig{
			ServiceName:   DefaultServiceName,
			SamplingRatio: DefaultSamplingRatio,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field constraint and reports all violations at once.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
