// Package viperloader layers configuration from defaults, an optional file
// and FROSTFILE_* environment variables.
package viperloader

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ahrav/frostfile/internal/config"
)

// EnvPrefix is prepended to every environment override, e.g.
// FROSTFILE_SCANNER_WORKERS.
const EnvPrefix = "FROSTFILE"

// Loader resolves configuration through viper. Precedence from lowest to
// highest: defaults, config file, environment, explicitly set flags.
type Loader struct {
	fs    afero.Fs
	path  string
	env   func(string) (string, bool)
	flags map[string]*pflag.Flag
}

// Option configures a Loader.
type Option func(*Loader)

// WithFile reads the given config file. The format is taken from its
// extension.
func WithFile(path string) Option {
	return func(l *Loader) { l.path = path }
}

// WithEnvLookup replaces the environment lookup, which defaults to the
// process environment.
func WithEnvLookup(fn func(string) (string, bool)) Option {
	return func(l *Loader) { l.env = fn }
}

// WithFlag binds a command-line flag to a configuration key such as
// "scanner.workers". Nil flags are ignored.
func WithFlag(key string, flag *pflag.Flag) Option {
	return func(l *Loader) {
		if flag == nil {
			return
		}
		if l.flags == nil {
			l.flags = make(map[string]*pflag.Flag)
		}
		l.flags[key] = flag
	}
}

// New creates a Loader reading files from fs.
func New(fs afero.Fs, opts ...Option) *Loader {
	l := &Loader{fs: fs}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var keys = []string{
	"scanner.workers",
	"scanner.chunk_size",
	"scanner.progress_every",
	"signatures.path",
	"log.level",
	"log.json",
	"telemetry.endpoint",
	"telemetry.service_name",
	"telemetry.sampling_ratio",
	"telemetry.insecure",
}

// Load resolves and validates the configuration.
func (l *Loader) Load(ctx context.Context) (*config.Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetFs(l.fs)
	setDefaults(v, config.Default())

	if l.path != "" {
		v.SetConfigFile(l.path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	l.applyEnv(v)
	for key, flag := range l.flags {
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("failed to bind flag %q: %w", flag.Name, err)
		}
	}

	cfg := new(config.Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *config.Config) {
	v.SetDefault("scanner.workers", d.Scanner.Workers)
	v.SetDefault("scanner.chunk_size", d.Scanner.ChunkSize)
	v.SetDefault("scanner.progress_every", d.Scanner.ProgressEvery)
	v.SetDefault("signatures.path", d.Signatures.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("telemetry.endpoint", d.Telemetry.Endpoint)
	v.SetDefault("telemetry.service_name", d.Telemetry.ServiceName)
	v.SetDefault("telemetry.sampling_ratio", d.Telemetry.SamplingRatio)
	v.SetDefault("telemetry.insecure", d.Telemetry.Insecure)
}

// applyEnv copies FROSTFILE_* variables over the file values. With the
// default lookup viper's own AutomaticEnv is used. A custom lookup writes
// overrides, so keys whose flag was set explicitly are left to the flag.
func (l *Loader) applyEnv(v *viper.Viper) {
	if l.env == nil {
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
		return
	}

	for _, key := range keys {
		if f, ok := l.flags[key]; ok && f.Changed {
			continue
		}
		name := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if val, ok := l.env(name); ok {
			v.Set(key, val)
		}
	}
}
